package uart

import (
	"io"
	"sync"
)

// TestDevice simulates a blocking serial device using channels. The receive
// worker performs blocking single-byte reads, so tests need a Read that
// parks until data is queued, like a real UART would.
type TestDevice struct {
	mu       sync.Mutex
	readChan chan []byte
	pending  []byte // leftover from a chunk larger than the read buffer
	written  []byte
	closed   bool
}

// NewTestDevice creates a new fake device for testing. Exported so other
// packages' tests can run the full driver against it.
func NewTestDevice() *TestDevice {
	return &TestDevice{
		readChan: make(chan []byte, 16),
	}
}

func (t *TestDevice) Read(p []byte) (n int, err error) {
	if len(t.pending) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.pending = data
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestDevice) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	t.written = append(t.written, p...)
	return len(p), nil
}

func (t *TestDevice) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the driver, simulating bytes arriving
// from the device.
func (t *TestDevice) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Written returns everything the driver has transmitted so far.
func (t *TestDevice) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.written))
	copy(out, t.written)
	return out
}
