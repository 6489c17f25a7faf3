package uart

import (
	"errors"
	"sync"
)

// DefaultBufferLen is the receive/transmit buffer capacity used when the
// caller does not pick one.
const DefaultBufferLen = 128

var (
	// ErrBufferFull is returned by PutChar when the transmit buffer has no
	// room. The caller may retry, or use Write for the blocking form.
	ErrBufferFull = errors.New("uart: transmit buffer full")

	// ErrClosed is returned once the port has been closed or a worker has
	// stopped after a device I/O error.
	ErrClosed = errors.New("uart: port closed")
)

// Port owns the device handle and pumps bytes between the device and a pair
// of bounded FIFO buffers. One worker performs blocking single-byte device
// reads, the other blocking single-byte device writes; everything else in
// the process talks to the buffers only.
type Port struct {
	dev Device
	rx  chan byte
	tx  chan byte

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Open wraps an already-opened device and starts the receive and transmit
// workers. capacity sizes each buffer; zero or negative selects
// DefaultBufferLen.
func Open(dev Device, capacity int) *Port {
	if capacity <= 0 {
		capacity = DefaultBufferLen
	}
	p := &Port{
		dev:  dev,
		rx:   make(chan byte, capacity),
		tx:   make(chan byte, capacity),
		stop: make(chan struct{}),
	}
	p.wg.Add(2)
	go p.rxWorker()
	go p.txWorker()
	return p
}

// GetChar pops the oldest received byte, FIFO order. With block set it waits
// until a byte arrives or the port stops; otherwise it returns immediately.
// The second return is false when no byte was available.
func (p *Port) GetChar(block bool) (byte, bool) {
	if block {
		select {
		case c := <-p.rx:
			return c, true
		case <-p.stop:
		}
	}
	// Bytes already buffered stay readable after a stop.
	select {
	case c := <-p.rx:
		return c, true
	default:
		return 0, false
	}
}

// PutChar appends one byte to the transmit buffer without blocking.
func (p *Port) PutChar(c byte) error {
	select {
	case <-p.stop:
		return ErrClosed
	default:
	}
	select {
	case p.tx <- c:
		return nil
	default:
		return ErrBufferFull
	}
}

// Write queues every byte of buf, waiting whenever the transmit buffer is
// full. It reports how many bytes were accepted before the port stopped.
func (p *Port) Write(buf []byte) (int, error) {
	for i, c := range buf {
		select {
		case p.tx <- c:
		case <-p.stop:
			return i, ErrClosed
		}
	}
	return len(buf), nil
}

// Close stops both workers and closes the device. A receive worker blocked
// in a device read is unblocked by transmitting one dummy byte (the ESP8266
// echoes traffic back) and, failing that, by the device close aborting the
// read.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		p.halt()
		p.dev.Write([]byte{0}) // best effort, unblocks a parked read
		p.closeErr = p.dev.Close()
		p.wg.Wait()
	})
	return p.closeErr
}

func (p *Port) halt() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Port) rxWorker() {
	defer p.wg.Done()
	var buf [1]byte
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		n, err := p.dev.Read(buf[:])
		if err != nil {
			p.halt()
			return
		}
		if n == 0 {
			continue
		}
		select {
		case p.rx <- buf[0]:
		case <-p.stop:
			return
		}
	}
}

func (p *Port) txWorker() {
	defer p.wg.Done()
	var buf [1]byte
	for {
		select {
		case c := <-p.tx:
			buf[0] = c
			if _, err := p.dev.Write(buf[:]); err != nil {
				p.halt()
				return
			}
		case <-p.stop:
			return
		}
	}
}
