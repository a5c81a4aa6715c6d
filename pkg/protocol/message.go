// Package protocol defines the chat messages carried as duplex frames.
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageType represents the type of message
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypeJoin
	MessageTypeLeave
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeText:
		return "TEXT"
	case MessageTypeJoin:
		return "JOIN"
	case MessageTypeLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// ParseMessageType maps a wire name back to its MessageType. Unknown names
// read as text so that newer peers stay readable.
func ParseMessageType(s string) MessageType {
	switch s {
	case "JOIN":
		return MessageTypeJoin
	case "LEAVE":
		return MessageTypeLeave
	default:
		return MessageTypeText
	}
}

const (
	fieldType    = "type"
	fieldSender  = "sender"
	fieldContent = "content"
)

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// Message represents a chat message
type Message struct {
	Type    MessageType
	Sender  string
	Content string
}

// Encode encodes the message as a protobuf Struct.
func (m *Message) Encode() ([]byte, error) {
	data, err := marshalOptions.Marshal(m.toProto())
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes bytes produced by Encode.
func (m *Message) Decode(data []byte) error {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(data, st); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if _, ok := st.GetFields()[fieldType]; !ok {
		return fmt.Errorf("failed to decode message: missing %q", fieldType)
	}
	m.fromProto(st)
	return nil
}

func (m *Message) toProto() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType:    structpb.NewStringValue(m.Type.String()),
		fieldSender:  structpb.NewStringValue(m.Sender),
		fieldContent: structpb.NewStringValue(m.Content),
	}}
}

func (m *Message) fromProto(st *structpb.Struct) {
	fields := st.GetFields()
	m.Type = ParseMessageType(fields[fieldType].GetStringValue())
	m.Sender = fields[fieldSender].GetStringValue()
	m.Content = fields[fieldContent].GetStringValue()
}
