// Package protocol reads and writes RTMP command payloads: a command name,
// a transaction ID, a command object and trailing arguments written back to
// back as AMF values.
package protocol

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/codec"
)

// CommandName represents the name of an RTMP command.
type CommandName string

// Common RTMP command names
const (
	CommandConnect      CommandName = "connect"
	CommandCall         CommandName = "call"
	CommandClose        CommandName = "close"
	CommandCreateStream CommandName = "createStream"
	CommandPlay         CommandName = "play"
	CommandDeleteStream CommandName = "deleteStream"
	CommandPublish      CommandName = "publish"
	CommandResult       CommandName = "_result"
	CommandError        CommandName = "_error"
	CommandOnStatus     CommandName = "onStatus"
)

// Encoding is the object encoding of a command message.
type Encoding int

const (
	// EncodingAMF0 is a plain AMF0 payload (message type 20).
	EncodingAMF0 Encoding = 0
	// EncodingAMF3 is an AMF3 command payload (message type 17): a format
	// byte, then AMF0 values that switch to AMF3 where needed.
	EncodingAMF3 Encoding = 3
)

// Command represents a parsed RTMP command message.
type Command struct {
	Name           CommandName
	TransactionID  float64
	CommandObject  any
	AdditionalArgs []any
}

// ConnectCommand represents the connect command parameters.
type ConnectCommand struct {
	App            string         `amf:"app"`
	Type           string         `amf:"type"`
	FlashVer       string         `amf:"flashVer"`
	SwfUrl         string         `amf:"swfUrl"`
	TcUrl          string         `amf:"tcUrl"`
	Fpad           bool           `amf:"fpad"`
	AudioCodecs    float64        `amf:"audioCodecs"`
	VideoCodecs    float64        `amf:"videoCodecs"`
	VideoFunction  float64        `amf:"videoFunction"`
	PageUrl        string         `amf:"pageUrl"`
	ObjectEncoding float64        `amf:"objectEncoding"`
	Capabilities   float64        `amf:"capabilities"`
	Additional     map[string]any `amf:",remain"`
}

// PublishCommand represents the publish command parameters.
type PublishCommand struct {
	StreamName string
	Type       string // "live", "record", "append"
}

// PlayCommand represents the play command parameters.
type PlayCommand struct {
	StreamName string
	Start      float64 // Start time in seconds, -2 for live
	Duration   float64 // Duration in seconds, -1 for unlimited
	Reset      bool    // Whether to reset the playlist
}

// StatusCode represents RTMP status codes.
type StatusCode string

// Common RTMP status codes
const (
	StatusNetConnectionConnectSuccess  StatusCode = "NetConnection.Connect.Success"
	StatusNetConnectionConnectRejected StatusCode = "NetConnection.Connect.Rejected"
	StatusNetStreamPublishStart        StatusCode = "NetStream.Publish.Start"
	StatusNetStreamPlayStart           StatusCode = "NetStream.Play.Start"
	StatusNetStreamPlayStreamNotFound  StatusCode = "NetStream.Play.StreamNotFound"
)

// StatusLevel represents the level of a status message.
type StatusLevel string

// Status levels
const (
	StatusLevelStatus StatusLevel = "status"
	StatusLevelError  StatusLevel = "error"
)

// StatusObject represents a status object in RTMP responses.
type StatusObject struct {
	Level       StatusLevel `amf:"level"`
	Code        StatusCode  `amf:"code"`
	Description string      `amf:"description"`
}

// CommandParser parses RTMP command messages from AMF data.
type CommandParser struct {
	mapper amf.ClassMapper
}

// NewCommandParser creates a new command parser. Typed objects in commands
// are built through mapper.
func NewCommandParser(mapper amf.ClassMapper) *CommandParser {
	return &CommandParser{mapper: mapper}
}

// ParseCommand parses a command payload.
func (p *CommandParser) ParseCommand(data []byte, encoding Encoding) (*Command, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty command data")
	}

	cursor, err := payloadCursor(data, encoding)
	if err != nil {
		return nil, err
	}

	deserializer := codec.NewDeserializer(p.mapper)

	// First element: command name (string)
	nameValue, err := deserializer.DeserializeFrom(codec.AMF0, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode command name: %w", err)
	}

	name, ok := nameValue.(string)
	if !ok {
		return nil, fmt.Errorf("command name is not a string: %T", nameValue)
	}

	// Second element: transaction ID (number)
	transactionValue, err := deserializer.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction ID: %w", err)
	}

	transactionID, err := toNumber(transactionValue)
	if err != nil {
		return nil, fmt.Errorf("transaction ID: %w", err)
	}

	command := &Command{
		Name:          CommandName(name),
		TransactionID: transactionID,
	}

	// Third element: command object (maybe null)
	if cursor.Len() == 0 {
		return command, nil
	}
	if command.CommandObject, err = deserializer.ReadObject(); err != nil {
		return nil, fmt.Errorf("failed to decode command object: %w", err)
	}

	// Additional arguments
	for i := 0; cursor.Len() > 0; i++ {
		arg, err := deserializer.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("failed to decode argument %d: %w", i, err)
		}
		command.AdditionalArgs = append(command.AdditionalArgs, arg)
	}

	return command, nil
}

// payloadCursor positions a cursor at the first value of a payload.
func payloadCursor(data []byte, encoding Encoding) (*amf.Cursor, error) {
	cursor := amf.NewCursor(data)
	if encoding == EncodingAMF3 {
		// Skip the format byte
		if _, err := cursor.ReadByte(); err != nil {
			return nil, fmt.Errorf("failed to read format byte: %w", err)
		}
	}
	return cursor, nil
}

// parseValues decodes every value of a payload in one session.
func (p *CommandParser) parseValues(data []byte, encoding Encoding) ([]any, error) {
	cursor, err := payloadCursor(data, encoding)
	if err != nil {
		return nil, err
	}

	deserializer := codec.NewDeserializer(p.mapper)
	var values []any
	for cursor.Len() > 0 {
		var value any
		if values == nil {
			value, err = deserializer.DeserializeFrom(codec.AMF0, cursor)
		} else {
			value, err = deserializer.ReadObject()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode value %d: %w", len(values), err)
		}
		values = append(values, value)
	}
	return values, nil
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

// ParseConnectCommand parses a connect command from the command object.
// Fields outside the known set are collected in Additional.
func (p *CommandParser) ParseConnectCommand(commandObj any) (*ConnectCommand, error) {
	var props *amf.Properties
	switch obj := commandObj.(type) {
	case *amf.Object:
		props = obj.Members
	case *amf.Mapping:
		props = obj.Assoc
	default:
		return nil, fmt.Errorf("connect command object is not an object: %T", commandObj)
	}

	input := make(map[string]any, props.Len())
	for key, value := range props.AllFromFront() {
		input[key] = value
	}

	connect := &ConnectCommand{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "amf",
		Result:           connect,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return nil, fmt.Errorf("failed to decode connect command: %w", err)
	}
	return connect, nil
}

// ParsePublishCommand parses a publish command from arguments.
func (p *CommandParser) ParsePublishCommand(args []any) (*PublishCommand, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("publish command requires at least 2 arguments")
	}

	streamName, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("publish stream name is not a string")
	}

	publishType, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("publish type is not a string")
	}

	return &PublishCommand{
		StreamName: streamName,
		Type:       publishType,
	}, nil
}

// ParsePlayCommand parses a play command from arguments.
func (p *CommandParser) ParsePlayCommand(args []any) (*PlayCommand, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("play command requires at least 1 argument")
	}

	streamName, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("play stream name is not a string")
	}

	play := &PlayCommand{
		StreamName: streamName,
		Start:      -2, // Default to live
		Duration:   -1, // Default to unlimited
		Reset:      true,
	}

	// Optional start parameter
	if len(args) > 1 {
		if start, err := toNumber(args[1]); err == nil {
			play.Start = start
		}
	}

	// Optional duration parameter
	if len(args) > 2 {
		if duration, err := toNumber(args[2]); err == nil {
			play.Duration = duration
		}
	}

	// Optional reset parameter
	if len(args) > 3 {
		if reset, ok := args[3].(bool); ok {
			play.Reset = reset
		}
	}

	return play, nil
}

// CommandBuilder builds RTMP command messages.
type CommandBuilder struct {
	serializer *codec.Serializer
	encoding   Encoding
}

// NewCommandBuilder creates a command builder. With EncodingAMF3 the
// command object and arguments are embedded as AMF3 behind the switch
// marker and the payload starts with the format byte.
func NewCommandBuilder(resolver amf.ClassResolver, encoding Encoding) *CommandBuilder {
	return &CommandBuilder{serializer: codec.NewSerializer(resolver), encoding: encoding}
}

// BuildCommand builds a command message.
func (b *CommandBuilder) BuildCommand(name CommandName, transactionID float64, commandObj any, args ...any) ([]byte, error) {
	if b.encoding == EncodingAMF0 {
		values := append([]any{string(name), transactionID, commandObj}, args...)
		data, err := b.serializer.SerializeAll(codec.AMF0, values...)
		if err != nil {
			return nil, fmt.Errorf("failed to encode command %s: %w", name, err)
		}
		return data, nil
	}

	// Format byte, then the name and transaction ID in AMF0
	head, err := b.serializer.SerializeAll(codec.AMF0, string(name), transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command %s: %w", name, err)
	}
	buf := append([]byte{0x00}, head...)

	for i, v := range append([]any{commandObj}, args...) {
		data, err := b.serializer.SerializeAVMPlus(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		buf = append(buf, data...)
	}
	return buf, nil
}

// BuildConnectResult builds a connect result message.
func (b *CommandBuilder) BuildConnectResult(transactionID float64, properties, information map[string]any) ([]byte, error) {
	return b.BuildCommand(CommandResult, transactionID, properties, information)
}

// BuildCreateStreamResult builds a createStream result message.
func (b *CommandBuilder) BuildCreateStreamResult(transactionID float64, streamID float64) ([]byte, error) {
	return b.BuildCommand(CommandResult, transactionID, nil, streamID)
}

// BuildOnStatus builds an onStatus message.
func (b *CommandBuilder) BuildOnStatus(transactionID float64, status StatusObject) ([]byte, error) {
	return b.BuildCommand(CommandOnStatus, transactionID, nil, &status)
}

// BuildError builds a generic error response.
func (b *CommandBuilder) BuildError(transactionID float64, code StatusCode, description string) ([]byte, error) {
	status := StatusObject{
		Level:       StatusLevelError,
		Code:        code,
		Description: description,
	}
	return b.BuildCommand(CommandError, transactionID, nil, &status)
}
