package messaging

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// flagContinue marks a flag byte that is followed by another one.
const flagContinue = 0x80

// reservedFlags is the number of low bits a newer peer may use for fields
// this version does not know; bit 6 is never read as an unknown value.
const reservedFlags = 6

// AsyncMessageExt is the externalizable small form of AsyncMessage (DSA).
type AsyncMessageExt struct {
	AsyncMessage
}

// CommandMessageExt is the externalizable small form of CommandMessage (DSC).
type CommandMessageExt struct {
	CommandMessage
}

// AcknowledgeMessageExt is the externalizable small form of
// AcknowledgeMessage (DSK).
type AcknowledgeMessageExt struct {
	AcknowledgeMessage
}

// ReadExternal implements amf.Externalizable.
func (m *AsyncMessageExt) ReadExternal(in amf.Input) error {
	return m.AsyncMessage.readExternal(in)
}

// WriteExternal implements amf.ExternalWriter.
func (m *AsyncMessageExt) WriteExternal(out amf.Output) error {
	return m.AsyncMessage.writeExternal(out)
}

// ReadExternal implements amf.Externalizable.
func (m *AcknowledgeMessageExt) ReadExternal(in amf.Input) error {
	if err := m.AsyncMessage.readExternal(in); err != nil {
		return err
	}
	// acknowledge messages define no fields of their own
	return readFlagged(in, nil)
}

// WriteExternal implements amf.ExternalWriter.
func (m *AcknowledgeMessageExt) WriteExternal(out amf.Output) error {
	if err := m.AsyncMessage.writeExternal(out); err != nil {
		return err
	}
	return out.WriteByte(0)
}

// ReadExternal implements amf.Externalizable.
func (m *CommandMessageExt) ReadExternal(in amf.Input) error {
	if err := m.AsyncMessage.readExternal(in); err != nil {
		return err
	}
	return readFlagged(in, [][]func(any) error{{
		func(v any) error {
			op, err := toInt(v)
			m.Operation = op
			return errors.WithMessage(err, "operation")
		},
	}})
}

// WriteExternal implements amf.ExternalWriter.
func (m *CommandMessageExt) WriteExternal(out amf.Output) error {
	if err := m.AsyncMessage.writeExternal(out); err != nil {
		return err
	}
	return writeFlagged(out, []any{m.Operation}, []bool{true})
}

func (m *AbstractMessage) readExternal(in amf.Input) error {
	return readFlagged(in, [][]func(any) error{
		{
			func(v any) error { m.Body = v; return nil },
			func(v any) error { return setString(&m.ClientID, v, "clientId") },
			func(v any) error { return setString(&m.Destination, v, "destination") },
			func(v any) error { m.Headers = v; return nil },
			func(v any) error { return setString(&m.MessageID, v, "messageId") },
			func(v any) error { return setFloat(&m.Timestamp, v, "timestamp") },
			func(v any) error { return setFloat(&m.TimeToLive, v, "timeToLive") },
		},
		{
			func(v any) error { return setUUID(&m.ClientID, v, "clientIdBytes") },
			func(v any) error { return setUUID(&m.MessageID, v, "messageIdBytes") },
		},
	})
}

func (m *AbstractMessage) writeExternal(out amf.Output) error {
	return writeFlagged(out,
		[]any{m.Body, m.ClientID, m.Destination, m.Headers, m.MessageID, m.Timestamp, m.TimeToLive},
		[]bool{m.Body != nil, m.ClientID != "", m.Destination != "", m.Headers != nil, m.MessageID != "", m.Timestamp != 0, m.TimeToLive != 0},
	)
}

func (m *AsyncMessage) readExternal(in amf.Input) error {
	if err := m.AbstractMessage.readExternal(in); err != nil {
		return err
	}
	return readFlagged(in, [][]func(any) error{{
		func(v any) error { return setString(&m.CorrelationID, v, "correlationId") },
		func(v any) error { return setUUID(&m.CorrelationID, v, "correlationIdBytes") },
	}})
}

func (m *AsyncMessage) writeExternal(out amf.Output) error {
	if err := m.AbstractMessage.writeExternal(out); err != nil {
		return err
	}
	return writeFlagged(out, []any{m.CorrelationID}, []bool{m.CorrelationID != ""})
}

// readFlags reads flag bytes until one without the continuation bit.
func readFlags(in amf.Input) ([]byte, error) {
	var flags []byte
	for {
		flag, err := in.Cursor().ReadByte()
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
		if flag&flagContinue == 0 {
			return flags, nil
		}
	}
}

// readFlagged reads one group of flag bytes and one value per set bit.
// setters[i][j] receives the value flagged by bit j of flag byte i. Values
// flagged past the known setters are read and discarded.
func readFlagged(in amf.Input, setters [][]func(any) error) error {
	flags, err := readFlags(in)
	if err != nil {
		return err
	}
	for i, flag := range flags {
		var known []func(any) error
		if i < len(setters) {
			known = setters[i]
		}
		for j := 0; j < 7; j++ {
			if flag&(1<<j) == 0 || (j >= len(known) && j >= reservedFlags) {
				continue
			}
			v, err := in.ReadObject()
			if err != nil {
				return err
			}
			if j < len(known) {
				if err := known[j](v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// writeFlagged writes a single flag byte followed by the flagged values.
func writeFlagged(out amf.Output, values []any, present []bool) error {
	var flag byte
	for j := range values {
		if present[j] {
			flag |= 1 << j
		}
	}
	if err := out.WriteByte(flag); err != nil {
		return err
	}
	for j, v := range values {
		if !present[j] {
			continue
		}
		if err := out.WriteObject(v); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, v any, name string) error {
	switch s := v.(type) {
	case nil:
		*dst = ""
	case string:
		*dst = s
	default:
		return errors.Errorf("%s: expected string, got %T", name, v)
	}
	return nil
}

func setFloat(dst *float64, v any, name string) error {
	switch n := v.(type) {
	case nil:
		*dst = 0
	case float64:
		*dst = n
	case int32:
		*dst = float64(n)
	default:
		return errors.Errorf("%s: expected number, got %T", name, v)
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int32:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, errors.Errorf("expected number, got %T", v)
}

// setUUID formats a 16-byte identifier as an upper-case UUID string.
func setUUID(dst *string, v any, name string) error {
	if v == nil {
		return nil
	}
	b, ok := v.([]byte)
	if !ok {
		return errors.Errorf("%s: expected byte array, got %T", name, v)
	}
	id, err := FormatUUID(b)
	if err != nil {
		return errors.WithMessage(err, name)
	}
	*dst = id
	return nil
}

// FormatUUID renders 16 bytes as XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX.
func FormatUUID(b []byte) (string, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return "", errors.Wrapf(amf.ErrInvalidArgument, "uuid of %d bytes", len(b))
	}
	return strings.ToUpper(u.String()), nil
}
