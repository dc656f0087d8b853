package hostadapter

import (
	"errors"
	"io"
	"net/netip"
	"time"

	"github.com/palainp/utcp/internal"
	"github.com/palainp/utcp/tcp"
)

var (
	errDeadlineExceeded = errors.New("hostadapter: i/o deadline exceeded")
	errDialTimeout      = errors.New("hostadapter: dial timed out waiting for handshake")
)

// Conn is the blocking net.Conn-shaped handle a caller gets back from Dial
// or Accept. Read and Write poll the underlying Engine with an
// exponential backoff (Close is a single call), grounded directly on the teacher's
// tcp.Conn.Write/Read poll loops (conn.go): lock, attempt the synchronous
// call, back off on "nothing to do yet", repeat until data moves or a
// deadline fires.
type Conn struct {
	host *Host
	id   tcp.ConnID

	rdead time.Time
	wdead time.Time
}

// Dial performs an active open and blocks until the Engine reports an
// event for the new connection (the handshake established, or the
// connection dropped), or returns errDialTimeout once timeout elapses.
func Dial(h *Host, remoteAddr netip.Addr, remotePort uint16, cfg tcp.ConnConfig, timeout time.Duration) (*Conn, error) {
	h.engineMu.Lock()
	id, outs, err := h.engine.Connect(time.Now(), h.localAddr, remoteAddr, remotePort, cfg)
	h.engineMu.Unlock()
	if err != nil {
		return nil, err
	}
	h.markOutbound(id)
	wake := h.waiterFor(id)
	h.send(outs)

	select {
	case <-wake:
	case <-time.After(timeout):
		return nil, errDialTimeout
	}

	h.engineMu.Lock()
	exists := h.engine.Exists(id)
	h.engineMu.Unlock()
	if !exists {
		return nil, errors.New("hostadapter: connection reset during handshake")
	}

	return &Conn{host: h, id: id}, nil
}

// Write appends b to the connection's send queue, blocking with backoff
// until every byte is accepted or a write deadline expires.
func (c *Conn) Write(b []byte) (int, error) {
	if c.deadlineExceeded(c.wdead) {
		return 0, errDeadlineExceeded
	}
	if len(b) == 0 {
		return 0, nil
	}
	backoff := internal.NewPollBackoff()
	n := 0
	for n < len(b) {
		c.host.engineMu.Lock()
		outs, got, err := c.host.engine.Send(time.Now(), c.id, b[n:])
		c.host.engineMu.Unlock()
		if err != nil {
			return n, err
		}
		c.host.send(outs)
		n += got
		if got > 0 {
			backoff.Hit()
		} else {
			if c.deadlineExceeded(c.wdead) {
				return n, errDeadlineExceeded
			}
			backoff.Miss()
		}
	}
	return n, nil
}

// Read blocks (with backoff) until data is available, the peer has closed
// and all buffered data is drained (io.EOF), or the read deadline expires.
func (c *Conn) Read(b []byte) (int, error) {
	backoff := internal.NewPollBackoff()
	for {
		c.host.engineMu.Lock()
		data, eof, outs, err := c.host.engine.Recv(time.Now(), c.id)
		c.host.engineMu.Unlock()
		if err != nil {
			return 0, err
		}
		c.host.send(outs)
		if len(data) > 0 {
			n := copy(b, data)
			return n, nil
		}
		if eof {
			return 0, io.EOF
		}
		if c.deadlineExceeded(c.rdead) {
			return 0, errDeadlineExceeded
		}
		backoff.Miss()
	}
}

// Close begins an active close and returns once the Engine has accepted
// it; it does not wait for the FIN handshake to complete.
func (c *Conn) Close() error {
	c.host.engineMu.Lock()
	outs, err := c.host.engine.Close(time.Now(), c.id)
	c.host.engineMu.Unlock()
	if err != nil {
		return err
	}
	c.host.send(outs)
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error  { c.rdead = t; return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { c.wdead = t; return nil }

func (c *Conn) deadlineExceeded(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}
