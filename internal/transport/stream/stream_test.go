package stream_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/omochice/framed-duplex/internal/transport/stream"
)

type openingPipe struct {
	*io.PipeReader
	opened int
	err    error
}

func (p *openingPipe) Open(context.Context) error {
	p.opened++
	return p.err
}

func TestChannel_ReadWrite(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ch := stream.New(inR, outW)
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	go func() {
		inW.Write([]byte("ping"))
	}()
	buf := make([]byte, 8)
	n, err := ch.Read(buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("Read = (%q, %v)", buf[:n], err)
	}

	go func() {
		ch.Write([]byte("pong"))
	}()
	n, err = outR.Read(buf)
	if err != nil || string(buf[:n]) != "pong" {
		t.Fatalf("peer read = (%q, %v)", buf[:n], err)
	}
}

func TestChannel_OpensPrimitives(t *testing.T) {
	inR, _ := io.Pipe()
	_, outW := io.Pipe()
	in := &openingPipe{PipeReader: inR}
	ch := stream.New(in, outW)

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if in.opened != 1 {
		t.Fatalf("input opened %d times, want 1", in.opened)
	}
}

func TestChannel_OpenError(t *testing.T) {
	inR, _ := io.Pipe()
	_, outW := io.Pipe()
	want := errors.New("no such file")
	ch := stream.New(&openingPipe{PipeReader: inR, err: want}, outW)

	if err := ch.Open(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Open = %v, want %v", err, want)
	}
}

func TestChannel_CloseReadUnblocksRead(t *testing.T) {
	inR, _ := io.Pipe()
	_, outW := io.Pipe()
	ch := stream.New(inR, outW)

	errc := make(chan error, 1)
	go func() {
		_, err := ch.Read(make([]byte, 1))
		errc <- err
	}()
	if err := ch.CloseRead(); err != nil {
		t.Fatalf("CloseRead: %v", err)
	}
	if err := <-errc; !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Read after CloseRead = %v, want ErrClosedPipe", err)
	}

	// The write side stays usable.
	if err := ch.CloseRead(); err != nil {
		t.Fatalf("second CloseRead: %v", err)
	}
}

func TestChannel_CloseWriteSignalsEOF(t *testing.T) {
	inR, _ := io.Pipe()
	outR, outW := io.Pipe()
	ch := stream.New(inR, outW)

	if err := ch.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	if _, err := outR.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("peer read = %v, want EOF", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
