package chat_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/omochice/framed-duplex/internal/chat"
	"github.com/omochice/framed-duplex/internal/testutil/testlog"
	"github.com/omochice/framed-duplex/pkg/duplex"
	"github.com/omochice/framed-duplex/pkg/protocol"
)

// connect serves one end of a pipe pair on hub and returns the other end.
func connect(t *testing.T, hub *chat.Hub) *duplex.Conn {
	t.Helper()
	srvIn, cliOut := io.Pipe()
	cliIn, srvOut := io.Pipe()
	hub.Serve(duplex.NewStreams(srvIn, srvOut, duplex.Options{}), "pipe")

	c := duplex.NewStreams(cliIn, cliOut, duplex.Options{})
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(c.Release)
	return c
}

func send(t *testing.T, c *duplex.Conn, msg protocol.Message) {
	t.Helper()
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.SendWait(ctx, data); err != nil {
		t.Fatalf("SendWait: %v", err)
	}
}

func receive(t *testing.T, c *duplex.Conn) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := c.ReceiveWait(ctx)
	if err != nil {
		t.Fatalf("ReceiveWait: %v", err)
	}
	var msg protocol.Message
	if err := msg.Decode(data); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return msg
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_Serve_MultipleClients(t *testing.T) {
	hub := chat.NewHub(testlog.Start(t))
	defer hub.Close()

	for range 3 {
		connect(t, hub)
	}

	if got := hub.ClientCount(); got != 3 {
		t.Errorf("ClientCount() = %d, want 3", got)
	}
}

func TestHub_BroadcastSkipsSender(t *testing.T) {
	hub := chat.NewHub(testlog.Start(t))
	defer hub.Close()
	alice := connect(t, hub)
	bob := connect(t, hub)

	send(t, alice, protocol.Message{Type: protocol.MessageTypeJoin, Sender: "alice"})
	if got := receive(t, bob); got.Type != protocol.MessageTypeJoin || got.Sender != "alice" {
		t.Fatalf("bob got %+v, want alice's join", got)
	}
	send(t, bob, protocol.Message{Type: protocol.MessageTypeJoin, Sender: "bob"})
	if got := receive(t, alice); got.Sender != "bob" {
		t.Fatalf("alice got %+v, want bob's join", got)
	}

	send(t, alice, protocol.Message{Type: protocol.MessageTypeText, Sender: "alice", Content: "hi bob"})
	if got := receive(t, bob); got.Content != "hi bob" {
		t.Fatalf("bob got %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if data, err := alice.ReceiveWait(ctx); err == nil {
		t.Fatalf("sender got its own message back: %x", data)
	}

	names := hub.Usernames()
	slices.Sort(names)
	if !slices.Equal(names, []string{"alice", "bob"}) {
		t.Errorf("Usernames() = %v", names)
	}
}

func TestHub_UndecodableMessageIsSkipped(t *testing.T) {
	hub := chat.NewHub(testlog.Start(t))
	defer hub.Close()
	alice := connect(t, hub)
	bob := connect(t, hub)

	if err := alice.SendWait(context.Background(), []byte{0xff, 0xff}); err != nil {
		t.Fatal(err)
	}
	send(t, alice, protocol.Message{Type: protocol.MessageTypeText, Sender: "alice", Content: "after"})
	if got := receive(t, bob); got.Content != "after" {
		t.Fatalf("bob got %+v", got)
	}
}

func TestHub_PeerCloseWriteRemovesMember(t *testing.T) {
	hub := chat.NewHub(testlog.Start(t))
	defer hub.Close()
	alice := connect(t, hub)
	connect(t, hub)

	alice.CloseWrite()

	// The hub closes its side once it has seen the end of alice's stream.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := alice.ReceiveWait(ctx); !errors.Is(err, duplex.ErrConnectionClosed) {
		t.Fatalf("ReceiveWait = %v, want ErrConnectionClosed", err)
	}
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestHub_LeaveMessage(t *testing.T) {
	hub := chat.NewHub(testlog.Start(t))
	defer hub.Close()
	alice := connect(t, hub)
	bob := connect(t, hub)

	send(t, alice, protocol.Message{Type: protocol.MessageTypeLeave, Sender: "alice"})
	if got := receive(t, bob); got.Type != protocol.MessageTypeLeave || got.Sender != "alice" {
		t.Fatalf("bob got %+v, want alice's leave", got)
	}
	eventually(t, "alice to be removed", func() bool { return hub.ClientCount() == 1 })
}

func TestHub_CloseReleasesMembers(t *testing.T) {
	hub := chat.NewHub(testlog.Start(t))
	alice := connect(t, hub)

	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := alice.ReceiveWait(ctx); !errors.Is(err, duplex.ErrConnectionClosed) {
		t.Fatalf("ReceiveWait = %v, want ErrConnectionClosed", err)
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}
