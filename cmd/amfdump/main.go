// Package main provides amfdump, a tool that decodes AMF0 or AMF3 data and
// prints the resulting value graph.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/DMA-Software/dma-goamf/internal/protocol"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/classmap"
	"github.com/DMA-Software/dma-goamf/pkg/codec"
)

// Config holds the tool configuration
type Config struct {
	Version     int
	MappingFile string
	All         bool
	Offset      int
	MessageType int
	Input       string
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("amfdump: ")

	// Parse command line arguments
	config := parseFlags()

	if err := run(config, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

// parseFlags parses command line arguments
func parseFlags() *Config {
	config := &Config{}

	flag.IntVar(&config.Version, "version", 3, "AMF version of the input (0 or 3)")
	flag.StringVar(&config.MappingFile, "mapping", "", "YAML class mapping file (optional)")
	flag.BoolVar(&config.All, "all", false, "Decode values until the input is exhausted")
	flag.IntVar(&config.Offset, "offset", 0, "Byte offset of the first value")
	flag.IntVar(&config.MessageType, "message", 0, "Treat the input as an RTMP message payload of this type id (15, 17, 18 or 20)")

	flag.Parse()
	config.Input = flag.Arg(0)

	return config
}

// run decodes the configured input and writes the dump to out
func run(config *Config, out io.Writer) error {
	version, err := codec.ParseVersion(config.Version)
	if err != nil {
		return err
	}

	registry := classmap.NewRegistry()
	if config.MappingFile != "" {
		if err := registry.Load(config.MappingFile); err != nil {
			return fmt.Errorf("failed to load mappings: %w", err)
		}
	}
	mapper := classmap.NewMapper(registry)

	data, err := readInput(config.Input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if config.MessageType != 0 {
		return dumpMessage(protocol.MessageType(config.MessageType), data, mapper, out)
	}

	cursor := amf.NewCursor(data)
	if err := cursor.Seek(config.Offset); err != nil {
		return fmt.Errorf("invalid offset: %w", err)
	}

	deserializer := codec.NewDeserializer(mapper)
	value, err := deserializer.DeserializeFrom(version, cursor)
	if err != nil {
		return fmt.Errorf("failed to decode value at offset %d: %w", config.Offset, err)
	}

	dumper := newDumper(out, mapper)
	dumper.Dump(value)

	for config.All && cursor.Len() > 0 {
		offset := cursor.Pos()
		value, err := deserializer.ReadObject()
		if err != nil {
			return fmt.Errorf("failed to decode value at offset %d: %w", offset, err)
		}
		dumper.Dump(value)
	}

	if cursor.Len() > 0 {
		log.Printf("%d trailing bytes not decoded", cursor.Len())
	}
	return nil
}

// dumpMessage decodes an RTMP command or data message payload
func dumpMessage(msgType protocol.MessageType, data []byte, mapper *classmap.Mapper, out io.Writer) error {
	parser := protocol.NewCommandParser(mapper)
	msg := protocol.NewMessage(0, msgType, data)
	dumper := newDumper(out, mapper)

	if !msgType.IsCommand() {
		values, err := parser.ParseData(msg)
		if err != nil {
			return fmt.Errorf("failed to parse data message: %w", err)
		}
		for _, value := range values {
			dumper.Dump(value)
		}
		return nil
	}

	cmd, err := parser.ParseMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to parse command: %w", err)
	}
	fmt.Fprintf(out, "%s %s transaction=%v\n", msgType, cmd.Name, cmd.TransactionID)
	dumper.Dump(cmd.CommandObject)
	for _, arg := range cmd.AdditionalArgs {
		dumper.Dump(arg)
	}
	return nil
}

// readInput reads the named file, or stdin when name is empty or "-"
func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no such file: %s", name)
	}
	return data, err
}

// Example usage:
//
// Dump the first AMF3 value of a file:
// go run ./cmd/amfdump payload.amf3
//
// Dump every AMF0 value of an RTMP command payload, skipping the format byte:
// go run ./cmd/amfdump -version 0 -offset 1 -all command.bin
//
// Dump an AMF3 command message (type 17) as name, transaction and arguments:
// go run ./cmd/amfdump -message 17 command.bin
//
// Map wire classes to built-in types first:
// go run ./cmd/amfdump -mapping mappings.yaml payload.amf3
