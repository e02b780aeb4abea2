// Package protocol wraps a DAP transport: a read loop on its own
// goroutine decoding framed messages via go-dap and handing them to the
// VM-thread consumer over a channel, plus a mutex-guarded write path for
// outgoing responses/events. Content-Length framing itself is owned by
// google/go-dap; this package only picks stdio vs. a socket connection
// and owns sequence-number assignment for outgoing messages.
package protocol

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
)

// Conn is a framed DAP connection: an io.Reader paired with an
// io.Writer, either stdio or a socket, closable as a unit.
type Conn struct {
	r      io.Reader
	w      io.Writer
	closer io.Closer
}

// NewStdio builds a Conn over the given stdin/stdout pair (the process's
// own, in the common case).
func NewStdio(in io.Reader, out io.Writer) *Conn {
	return &Conn{r: in, w: out, closer: nil}
}

// NewSocketConn builds a Conn over an already-accepted net.Conn.
func NewSocketConn(c net.Conn) *Conn {
	return &Conn{r: c, w: c, closer: c}
}

// Transport reads and writes framed DAP messages over a Conn. Receive
// must only be called from the single reader goroutine that owns this
// Transport; Send is safe to call concurrently with it.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex
	closer io.Closer

	seq int64
}

// New wraps conn as a Transport.
func New(conn *Conn) *Transport {
	return &Transport{
		reader: bufio.NewReader(conn.r),
		writer: conn.w,
		closer: conn.closer,
	}
}

// NextSeq returns the next outgoing message's sequence number.
func (t *Transport) NextSeq() int {
	return int(atomic.AddInt64(&t.seq, 1))
}

// Receive blocks for the next framed message.
func (t *Transport) Receive() (dap.Message, error) {
	return dap.ReadProtocolMessage(t.reader)
}

// Send writes a single framed message. Safe for concurrent use.
func (t *Transport) Send(msg dap.Message) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return dap.WriteProtocolMessage(t.writer, msg)
}

// Close releases the underlying connection, if it owns one (stdio has
// nothing to close).
func (t *Transport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// ReadLoop decodes messages from t until Receive errors (typically EOF
// on disconnect), sending each onto out. It closes out before returning,
// so the consumer's range loop terminates cleanly.
func ReadLoop(t *Transport, out chan<- dap.Message) error {
	defer close(out)
	for {
		msg, err := t.Receive()
		if err != nil {
			return err
		}
		out <- msg
	}
}
