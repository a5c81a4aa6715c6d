package protocol

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestMessage_toProto(t *testing.T) {
	msg := Message{Type: MessageTypeJoin, Sender: "user2", Content: "hi"}
	got := msg.toProto().GetFields()

	want := map[string]string{
		fieldType:    "JOIN",
		fieldSender:  "user2",
		fieldContent: "hi",
	}
	if len(got) != len(want) {
		t.Fatalf("toProto() has %d fields, want %d", len(got), len(want))
	}
	for k, v := range want {
		if s := got[k].GetStringValue(); s != v {
			t.Errorf("toProto()[%q] = %q, want %q", k, s, v)
		}
	}
}

func TestMessage_fromProtoUnknownType(t *testing.T) {
	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType:   structpb.NewStringValue("WHISPER"),
		fieldSender: structpb.NewStringValue("user1"),
	}}

	var m Message
	m.fromProto(st)
	if m.Type != MessageTypeText {
		t.Errorf("Type = %v, want %v", m.Type, MessageTypeText)
	}
	if m.Sender != "user1" || m.Content != "" {
		t.Errorf("fromProto() = %+v", m)
	}
}
