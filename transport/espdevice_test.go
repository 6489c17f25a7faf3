package transport

import (
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/esplink/espat/uart"
)

// espDevice is a scripted ESP8266: it answers the minimal AT vocabulary the
// transport speaks and records everything the host sends. Read blocks until
// the device has produced bytes, like a real UART.
type espDevice struct {
	mu      sync.Mutex
	rx      chan byte
	line    []byte // command bytes accumulated up to CRLF
	rawLeft int    // raw payload bytes still owed after AT+CIPSEND
	cmds    []string
	payload []byte
	closed  bool

	// Reply overrides, settable per test before connecting.
	echoOffReply string
	startReply   string
}

func newESPDevice() *espDevice {
	return &espDevice{
		rx:           make(chan byte, 4096),
		echoOffReply: "\r\nOK\r\n",
		startReply:   "CONNECT",
	}
}

func (d *espDevice) Read(p []byte) (int, error) {
	c, ok := <-d.rx
	if !ok {
		return 0, io.EOF
	}
	p[0] = c
	return 1, nil
}

func (d *espDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	for _, c := range p {
		if d.rawLeft > 0 {
			d.payload = append(d.payload, c)
			d.rawLeft--
			continue
		}
		d.line = append(d.line, c)
		if n := len(d.line); n >= 2 && d.line[n-2] == '\r' && d.line[n-1] == '\n' {
			d.handleCommand(string(d.line[:n-2]))
			d.line = nil
		}
	}
	return len(p), nil
}

func (d *espDevice) handleCommand(cmd string) {
	d.cmds = append(d.cmds, cmd)
	switch {
	case cmd == "ATE0":
		d.reply(d.echoOffReply)
	case cmd == "AT+CIPCLOSE":
		// No stale socket to close; the transport discards this reply anyway.
	case strings.HasPrefix(cmd, "AT+CIPSTART="):
		d.reply(d.startReply)
	case strings.HasPrefix(cmd, "AT+CIPSEND="):
		n, _ := strconv.Atoi(strings.TrimPrefix(cmd, "AT+CIPSEND="))
		d.rawLeft = n
	}
}

func (d *espDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.rx)
	return nil
}

// reply queues device output for the host. Callers must hold d.mu.
func (d *espDevice) reply(s string) {
	for i := 0; i < len(s); i++ {
		d.rx <- s[i]
	}
}

// send queues unsolicited device output, e.g. an inbound +IPD frame.
func (d *espDevice) send(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.reply(s)
	}
}

// commands returns the CRLF-terminated commands seen so far, in order.
func (d *espDevice) commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.cmds))
	copy(out, d.cmds)
	return out
}

// received returns the raw payload delivered through CIPSEND chunks.
func (d *espDevice) received() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.payload))
	copy(out, d.payload)
	return out
}

// openerFunc adapts a function to the uart.Opener interface.
type openerFunc func() (uart.Device, error)

func (f openerFunc) Open() (uart.Device, error) { return f() }

// singleOpener always hands out the same device.
func singleOpener(d *espDevice) uart.Opener {
	return openerFunc(func() (uart.Device, error) { return d, nil })
}
