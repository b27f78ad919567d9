package protocol

import (
	"testing"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/classmap"
)

func newMapper() *classmap.Mapper {
	return classmap.NewMapper(classmap.NewRegistry())
}

func TestParseConnectCommand(t *testing.T) {
	mapper := newMapper()
	connectObj := map[string]any{
		"app":            "live",
		"flashVer":       "FMLE/3.0",
		"tcUrl":          "rtmp://localhost/live",
		"fpad":           false,
		"audioCodecs":    3191.0,
		"objectEncoding": 3.0,
		"customField":    "custom",
	}

	for _, encoding := range []Encoding{EncodingAMF0, EncodingAMF3} {
		builder := NewCommandBuilder(mapper, encoding)
		data, err := builder.BuildCommand(CommandConnect, 1, connectObj)
		if err != nil {
			t.Fatalf("BuildCommand failed: %v", err)
		}
		if encoding == EncodingAMF3 && data[0] != 0x00 {
			t.Errorf("format byte = %#x", data[0])
		}

		parser := NewCommandParser(mapper)
		cmd, err := parser.ParseCommand(data, encoding)
		if err != nil {
			t.Fatalf("ParseCommand failed: %v", err)
		}
		if cmd.Name != CommandConnect || cmd.TransactionID != 1 {
			t.Errorf("parsed %s/%v", cmd.Name, cmd.TransactionID)
		}

		connect, err := parser.ParseConnectCommand(cmd.CommandObject)
		if err != nil {
			t.Fatalf("ParseConnectCommand failed: %v", err)
		}
		if connect.App != "live" || connect.TcUrl != "rtmp://localhost/live" || connect.FlashVer != "FMLE/3.0" {
			t.Errorf("parsed %+v", connect)
		}
		if connect.AudioCodecs != 3191 || connect.ObjectEncoding != 3 {
			t.Errorf("numbers parsed as %v, %v", connect.AudioCodecs, connect.ObjectEncoding)
		}
		if connect.Additional["customField"] != "custom" {
			t.Errorf("Additional = %v", connect.Additional)
		}
	}
}

func TestParseConnectCommandRejectsScalar(t *testing.T) {
	if _, err := NewCommandParser(newMapper()).ParseConnectCommand("live"); err == nil {
		t.Error("expected an error for a non-object")
	}
}

func TestParsePublishAndPlay(t *testing.T) {
	mapper := newMapper()
	parser := NewCommandParser(mapper)
	builder := NewCommandBuilder(mapper, EncodingAMF0)

	data, err := builder.BuildCommand(CommandPublish, 5, nil, "stream", "live")
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := parser.ParseCommand(data, EncodingAMF0)
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if cmd.CommandObject != nil {
		t.Errorf("CommandObject = %v, want nil", cmd.CommandObject)
	}
	publish, err := parser.ParsePublishCommand(cmd.AdditionalArgs)
	if err != nil {
		t.Fatalf("ParsePublishCommand failed: %v", err)
	}
	if publish.StreamName != "stream" || publish.Type != "live" {
		t.Errorf("parsed %+v", publish)
	}

	play, err := parser.ParsePlayCommand([]any{"stream", int32(10)})
	if err != nil {
		t.Fatalf("ParsePlayCommand failed: %v", err)
	}
	if play.Start != 10 || play.Duration != -1 || !play.Reset {
		t.Errorf("parsed %+v", play)
	}

	if _, err := parser.ParsePublishCommand([]any{"stream"}); err == nil {
		t.Error("expected an error for a missing publish type")
	}
	if _, err := parser.ParsePlayCommand(nil); err == nil {
		t.Error("expected an error for a missing stream name")
	}
}

func TestBuildOnStatus(t *testing.T) {
	mapper := newMapper()
	for _, encoding := range []Encoding{EncodingAMF0, EncodingAMF3} {
		data, err := NewCommandBuilder(mapper, encoding).BuildOnStatus(0, StatusObject{
			Level:       StatusLevelStatus,
			Code:        StatusNetStreamPublishStart,
			Description: "Publishing stream",
		})
		if err != nil {
			t.Fatalf("BuildOnStatus failed: %v", err)
		}

		cmd, err := NewCommandParser(mapper).ParseCommand(data, encoding)
		if err != nil {
			t.Fatalf("ParseCommand failed: %v", err)
		}
		if cmd.Name != CommandOnStatus || len(cmd.AdditionalArgs) != 1 {
			t.Fatalf("parsed %+v", cmd)
		}
		status, ok := cmd.AdditionalArgs[0].(*amf.Object)
		if !ok {
			t.Fatalf("status decoded as %T", cmd.AdditionalArgs[0])
		}
		if code, _ := status.Get("code"); code != string(StatusNetStreamPublishStart) {
			t.Errorf("code = %v", code)
		}
		if level, _ := status.Get("level"); level != "status" {
			t.Errorf("level = %v", level)
		}
	}
}

func TestBuildCreateStreamResult(t *testing.T) {
	mapper := newMapper()
	data, err := NewCommandBuilder(mapper, EncodingAMF0).BuildCreateStreamResult(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := NewCommandParser(mapper).ParseCommand(data, EncodingAMF0)
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if cmd.Name != CommandResult || cmd.TransactionID != 4 {
		t.Errorf("parsed %s/%v", cmd.Name, cmd.TransactionID)
	}
	if len(cmd.AdditionalArgs) != 1 || cmd.AdditionalArgs[0] != 1.0 {
		t.Errorf("args = %v", cmd.AdditionalArgs)
	}
}

func TestParseCommandErrors(t *testing.T) {
	parser := NewCommandParser(newMapper())
	tests := []struct {
		name     string
		data     []byte
		encoding Encoding
	}{
		{"empty", nil, EncodingAMF0},
		{"format byte only", []byte{0x00}, EncodingAMF3},
		{"name not a string", []byte{0x00, 0, 0, 0, 0, 0, 0, 0, 0}, EncodingAMF0},
		{"missing transaction", []byte{0x02, 0x00, 0x01, 'x'}, EncodingAMF0},
		{"transaction not a number", []byte{0x02, 0x00, 0x01, 'x', 0x05}, EncodingAMF0},
		{"bad argument", []byte{0x02, 0x00, 0x01, 'x', 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0x05, 0x04}, EncodingAMF0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parser.ParseCommand(tt.data, tt.encoding); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
