package protocol

import (
	"fmt"
)

// MessageType is the RTMP message type id of a payload carrying AMF values.
type MessageType uint8

const (
	// MessageTypeDataMessageAMF3 sends data in AMF3 format.
	MessageTypeDataMessageAMF3 MessageType = 15

	// MessageTypeSharedObjectAMF3 sends shared object in AMF3 format.
	MessageTypeSharedObjectAMF3 MessageType = 16

	// MessageTypeCommandMessageAMF3 sends command in AMF3 format.
	MessageTypeCommandMessageAMF3 MessageType = 17

	// MessageTypeDataMessageAMF0 sends data in AMF0 format.
	MessageTypeDataMessageAMF0 MessageType = 18

	// MessageTypeSharedObjectAMF0 sends shared object in AMF0 format.
	MessageTypeSharedObjectAMF0 MessageType = 19

	// MessageTypeCommandMessageAMF0 sends command in AMF0 format.
	MessageTypeCommandMessageAMF0 MessageType = 20
)

// String returns the string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeDataMessageAMF3:
		return "DataMessageAMF3"
	case MessageTypeSharedObjectAMF3:
		return "SharedObjectAMF3"
	case MessageTypeCommandMessageAMF3:
		return "CommandMessageAMF3"
	case MessageTypeDataMessageAMF0:
		return "DataMessageAMF0"
	case MessageTypeSharedObjectAMF0:
		return "SharedObjectAMF0"
	case MessageTypeCommandMessageAMF0:
		return "CommandMessageAMF0"
	default:
		return "Unknown"
	}
}

// Encoding returns the object encoding a message of this type uses.
// Shared object messages are not supported.
func (mt MessageType) Encoding() (Encoding, bool) {
	switch mt {
	case MessageTypeCommandMessageAMF0, MessageTypeDataMessageAMF0:
		return EncodingAMF0, true
	case MessageTypeCommandMessageAMF3, MessageTypeDataMessageAMF3:
		return EncodingAMF3, true
	}
	return 0, false
}

// IsCommand reports whether messages of this type carry a command.
func (mt MessageType) IsCommand() bool {
	return mt == MessageTypeCommandMessageAMF0 || mt == MessageTypeCommandMessageAMF3
}

// Message is an RTMP message payload together with its type.
type Message struct {
	// MessageStreamID identifies the message stream.
	MessageStreamID uint32

	// Type represents the message type.
	Type MessageType

	// Data contains the message payload.
	Data []byte
}

// NewMessage creates a new RTMP message.
func NewMessage(messageStreamID uint32, msgType MessageType, data []byte) *Message {
	return &Message{
		MessageStreamID: messageStreamID,
		Type:            msgType,
		Data:            data,
	}
}

// ParseMessage parses the payload of a command message.
func (p *CommandParser) ParseMessage(msg *Message) (*Command, error) {
	encoding, ok := msg.Type.Encoding()
	if !ok || !msg.Type.IsCommand() {
		return nil, fmt.Errorf("message type %s (%d) is not a command", msg.Type, uint8(msg.Type))
	}
	return p.ParseCommand(msg.Data, encoding)
}

// ParseData parses the payload of a data message (for example
// @setDataFrame or onMetaData) into its sequence of values.
func (p *CommandParser) ParseData(msg *Message) ([]any, error) {
	encoding, ok := msg.Type.Encoding()
	if !ok || msg.Type.IsCommand() {
		return nil, fmt.Errorf("message type %s (%d) is not a data message", msg.Type, uint8(msg.Type))
	}
	return p.parseValues(msg.Data, encoding)
}
