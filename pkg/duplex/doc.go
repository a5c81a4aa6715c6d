// Package duplex implements a framed, bidirectional message transport on top
// of a raw byte channel.
//
// A Conn carries one message stream in each direction. Send and Receive never
// block; each takes a completion that fires exactly once, with a result or an
// error. Completions of one direction fire in the order the operations were
// issued. The two directions are independent of each other.
//
// Every completion and delegate notification of a Conn runs on its Executor,
// one at a time. Code running there may call back into the Conn freely; such
// calls are queued behind the current task.
//
// Each direction can be closed on its own with CloseRead and CloseWrite. A
// read or write failure on the channel, or a malformed frame, is fatal to the
// whole connection: every pending operation in both directions fails with
// that error and the Conn moves to StateFailed.
//
// Send and Receive issued before Open are queued and start once the channel
// is open.
package duplex
