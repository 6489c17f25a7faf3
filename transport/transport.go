// Package transport drives a single TCP connection through an ESP8266
// Wi-Fi module speaking the Espressif AT command language over a UART.
//
// One serial link carries three interleaved streams: AT replies and status
// tokens, unsolicited notifications, and inbound TCP payload framed by
// +IPD headers. A classifier goroutine demultiplexes the raw bytes into a
// control queue and a data queue; a staged state machine drives connection
// setup over the control queue, and Send/Recv move payload. The resulting
// connect/disconnect/send/recv contract is what an MQTT client consumes,
// usually through the net.Conn adapter in this package.
package transport

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/esplink/espat/at"
	"github.com/esplink/espat/uart"
)

// Status is the result code reported to the protocol layer above.
type Status int

const (
	// Success means the operation completed.
	Success Status = iota + 1
	// InvalidParameter means at least one argument was rejected before any
	// device I/O took place.
	InvalidParameter
	// ConnectFailure means the device or the remote end refused the
	// connection attempt.
	ConnectFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case InvalidParameter:
		return "invalid parameter"
	case ConnectFailure:
		return "connect failure"
	default:
		return "unknown status"
	}
}

// ConnState tracks progress through the staged connection setup. It only
// moves forward during Connect; Disconnect resets it to StateUninitialized,
// and StateError sticks until Disconnect clears it.
type ConnState int

const (
	StateUninitialized ConnState = iota
	StateQueuesReady
	StateClassifierReady
	StateATReady
	StateConnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateQueuesReady:
		return "queues ready"
	case StateClassifierReady:
		return "classifier ready"
	case StateATReady:
		return "at ready"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown state"
	}
}

const (
	// maxChunk is the AT+CIPSEND payload ceiling.
	maxChunk = 2048
	// replyWait bounds a single control-queue read during Connect so a
	// dead device cannot park the caller forever.
	replyWait = 5 * time.Second
)

// Config carries the knobs for one Transport.
type Config struct {
	// Opener produces the serial device on the first Connect. Required.
	Opener uart.Opener
	// BufferLen sizes the serial driver's receive and transmit buffers.
	BufferLen int
	// ControlLen sizes the control queue; short tokens only, so small.
	ControlLen int
	// DataLen sizes the data queue holding de-framed TCP payload.
	DataLen int
	// SettleDelay is the fixed pause around each CIPSEND chunk.
	SettleDelay time.Duration
	// Logger receives connection lifecycle events. Optional.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Opener == nil {
		return ErrNoOpener
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.BufferLen == 0 {
		c.BufferLen = uart.DefaultBufferLen
	}
	if c.ControlLen == 0 {
		c.ControlLen = 64
	}
	if c.DataLen == 0 {
		c.DataLen = 2048
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 100 * time.Millisecond
	}
}

// Transport owns one ESP8266 TCP link: the serial driver, the classifier
// goroutine and the two queues it feeds, and the connection state machine.
// At most one connection is live at a time.
type Transport struct {
	mu     sync.Mutex
	config Config
	logger *slog.Logger

	state ConnState
	port  *uart.Port
	ctrl  chan byte
	data  chan byte

	classifierStop chan struct{}
	classifierDone chan struct{}
}

// New creates a Transport. No device I/O happens until Connect.
func New(config Config) (*Transport, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{
		config: config,
		logger: logger,
		state:  StateUninitialized,
	}, nil
}

// State reports the current connection stage.
func (t *Transport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect brings the link up to an open TCP socket. host must be a quoted
// IPv4 address (`"192.168.0.10"`) and port a nonzero decimal string.
//
// Connect is idempotent once connected. Stages completed by an earlier
// failed attempt are not repeated on retry, with one exception: after a
// protocol failure the state machine is in StateError and only Disconnect
// makes further attempts possible.
func (t *Transport) Connect(host, port string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateConnected {
		return Success
	}
	if !strings.HasPrefix(host, `"`) {
		return InvalidParameter
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return InvalidParameter
	}
	if t.state == StateError {
		t.logger.Warn("connect refused, disconnect required first", "state", t.state)
		return ConnectFailure
	}

	if t.state == StateUninitialized {
		dev, err := t.config.Opener.Open()
		if err != nil {
			t.logger.Error("open serial device", "error", err)
			return ConnectFailure
		}
		t.port = uart.Open(dev, t.config.BufferLen)
		t.state = StateQueuesReady
	}
	if t.state == StateQueuesReady {
		t.ctrl = make(chan byte, t.config.ControlLen)
		t.data = make(chan byte, t.config.DataLen)
		t.state = StateClassifierReady
	}
	if t.state == StateClassifierReady {
		t.classifierStop = make(chan struct{})
		t.classifierDone = make(chan struct{})
		go t.classify()
		t.state = StateATReady
	}

	// Disable command echo and verify the literal reply.
	t.port.Write([]byte(at.CmdEchoOff))
	reply := make([]byte, 0, len(at.ReplyOK))
	for len(reply) < len(at.ReplyOK) {
		c, ok := t.readControl(replyWait)
		if !ok {
			t.logger.Error("no reply to ATE0", "got", string(reply))
			t.state = StateError
			return ConnectFailure
		}
		reply = append(reply, c)
	}
	if string(reply) != at.ReplyOK {
		t.logger.Error("unexpected ATE0 reply", "reply", string(reply))
		t.state = StateError
		return ConnectFailure
	}

	// Best-effort close of a stale socket. The reply, if any, is discarded
	// so it cannot be mistaken for the CIPSTART notification.
	t.port.Write([]byte(at.CmdClose))
	time.Sleep(t.config.SettleDelay)
	t.drainControl()

	t.port.Write([]byte(at.CmdStart(host, port)))
	c, ok := t.readControl(replyWait)
	if !ok || c != at.ConnectHead {
		t.logger.Error("TCP open rejected", "host", host, "port", port)
		t.state = StateError
		return ConnectFailure
	}

	t.state = StateConnected
	t.logger.Info("connected", "host", host, "port", port)
	return Success
}

// Disconnect tears the link down: classifier stopped, queues dropped,
// serial driver closed, state reset so the next Connect redoes every stage.
// Safe to call in any state, repeatedly.
func (t *Transport) Disconnect() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.classifierStop != nil {
		close(t.classifierStop)
	}
	if t.port != nil {
		t.port.Close()
	}
	if t.classifierDone != nil {
		<-t.classifierDone
	}
	t.classifierStop, t.classifierDone = nil, nil
	t.port = nil
	t.ctrl, t.data = nil, nil

	if t.state != StateUninitialized {
		t.logger.Info("disconnected")
	}
	t.state = StateUninitialized
	return Success
}

// Send pushes p to the open socket in CIPSEND-sized chunks. Delivery is
// best effort: the return value is len(p) and a failed chunk surfaces only
// as a stalled link, never here. Reliability belongs to the protocol layer
// above.
func (t *Transport) Send(p []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateConnected {
		return 0
	}

	for off := 0; off < len(p); off += maxChunk {
		chunk := p[off:min(off+maxChunk, len(p))]
		t.port.Write([]byte(at.CmdSend(len(chunk))))
		time.Sleep(t.config.SettleDelay)
		t.port.Write(chunk)
		time.Sleep(t.config.SettleDelay)
		// Discard whatever acknowledgment the module produced.
		t.drainControl()
	}
	return len(p)
}

// Recv drains up to len(p) bytes of TCP payload that have already arrived.
// It never blocks; an empty data queue yields 0.
func (t *Transport) Recv(p []byte) int {
	t.mu.Lock()
	data := t.data
	t.mu.Unlock()
	if data == nil {
		return 0
	}

	n := 0
	for n < len(p) {
		select {
		case c := <-data:
			p[n] = c
			n++
		default:
			return n
		}
	}
	return n
}

// classify pulls raw bytes off the serial driver, one blocking read at a
// time, and routes each byte to the control or data queue. It exits when
// the driver stops or Disconnect runs.
func (t *Transport) classify() {
	defer close(t.classifierDone)
	var d at.Demux
	for {
		c, ok := t.port.GetChar(true)
		if !ok {
			return
		}
		ctrl, data := d.Feed(c)
		for _, b := range ctrl {
			select {
			case t.ctrl <- b:
			case <-t.classifierStop:
				return
			}
		}
		for _, b := range data {
			select {
			case t.data <- b:
			case <-t.classifierStop:
				return
			}
		}
	}
}

func (t *Transport) readControl(wait time.Duration) (byte, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c := <-t.ctrl:
		return c, true
	case <-timer.C:
		return 0, false
	}
}

func (t *Transport) drainControl() {
	for {
		select {
		case <-t.ctrl:
		default:
			return
		}
	}
}
