package duplex

import (
	"io"

	"github.com/omochice/framed-duplex/internal/transport/stream"
	"github.com/omochice/framed-duplex/internal/transport/tcp"
)

// NewStreams builds a Conn reading from in and writing to out. Neither may be
// opened yet; primitives with an Open(context.Context) error method are
// opened by Open. CloseRead closes in and CloseWrite closes out.
func NewStreams(in io.ReadCloser, out io.WriteCloser, opts Options) *Conn {
	return New(stream.New(in, out), opts)
}

// Dial builds a Conn that resolves and connects to host:port on Open,
// bounded by Config.DialTimeout.
func Dial(host string, port int, opts Options) *Conn {
	cfg := opts.Config.WithDefaults()
	return New(tcp.Dial(host, port, cfg.DialTimeout), opts)
}
