package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// pollInterval paces the blocking-read emulation over the non-blocking Recv.
const pollInterval = 5 * time.Millisecond

// Conn presents the transport as a net.Conn so a stock MQTT client can sit
// on top of it: Read polls Recv until payload arrives, Write maps to Send,
// Close tears the link down. The ESP8266 owns the real socket, so the
// address methods return placeholders.
type Conn struct {
	t *Transport

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
}

// NetConn wraps the transport in a net.Conn. The caller must have connected
// the transport already; reads fail with io.EOF once the link goes down.
func (t *Transport) NetConn() *Conn {
	return &Conn{t: t}
}

var _ net.Conn = (*Conn)(nil)

func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n := c.t.Recv(p); n > 0 {
			return n, nil
		}
		if c.t.State() != StateConnected {
			return 0, io.EOF
		}
		c.mu.Lock()
		deadline := c.readDeadline
		c.mu.Unlock()
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, os.ErrDeadlineExceeded
		}
		time.Sleep(pollInterval)
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.t.State() != StateConnected {
		return 0, ErrNotConnected
	}
	return c.t.Send(p), nil
}

func (c *Conn) Close() error {
	c.t.Disconnect()
	return nil
}

func (c *Conn) LocalAddr() net.Addr  { return espAddr{} }
func (c *Conn) RemoteAddr() net.Addr { return espAddr{} }

func (c *Conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	c.writeDeadline = t
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

// SetWriteDeadline records the deadline but Send never blocks on the socket
// itself, only on the fixed settle delays, so it is not enforced.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	return nil
}

type espAddr struct{}

func (espAddr) Network() string { return "esp8266" }
func (espAddr) String() string  { return "esp8266" }
