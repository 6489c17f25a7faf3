package uart

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
)

func TestPortFIFOOrder(t *testing.T) {
	dev := NewTestDevice()
	p := Open(dev, 8)
	defer p.Close()

	dev.SendData("abc")

	for _, want := range []byte("abc") {
		c, ok := p.GetChar(true)
		if !ok {
			t.Fatal("expected a byte from the receive buffer")
		}
		if c != want {
			t.Errorf("expected %q, got %q", want, c)
		}
	}
}

func TestGetCharNonBlockingEmpty(t *testing.T) {
	dev := NewTestDevice()
	p := Open(dev, 8)
	defer p.Close()

	if c, ok := p.GetChar(false); ok {
		t.Errorf("expected no byte on empty buffer, got %q", c)
	}
}

func TestPortWriteReachesDevice(t *testing.T) {
	dev := NewTestDevice()
	p := Open(dev, 8)

	if n, err := p.Write([]byte("ATE0\r\n")); n != 6 || err != nil {
		t.Fatalf("Write = (%d, %v), want (6, nil)", n, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !bytes.Equal(dev.Written(), []byte("ATE0\r\n")) {
		if time.Now().After(deadline) {
			t.Fatalf("device never received the bytes, got %q", dev.Written())
		}
		time.Sleep(time.Millisecond)
	}
	p.Close()
}

// blockDevice parks every write until release is closed, so the transmit
// buffer can actually fill up.
type blockDevice struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newBlockDevice() *blockDevice {
	return &blockDevice{
		release: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (d *blockDevice) Read(p []byte) (int, error) {
	<-d.closed
	return 0, io.EOF
}

func (d *blockDevice) Write(p []byte) (int, error) {
	select {
	case <-d.release:
		return len(p), nil
	case <-d.closed:
		return 0, io.ErrClosedPipe
	}
}

func (d *blockDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func TestPutCharBufferFull(t *testing.T) {
	dev := newBlockDevice()
	p := Open(dev, 4)

	// The worker drains at most one byte before parking in the device
	// write, so a handful of puts must hit a full buffer.
	gotFull := false
	for i := 0; i < 50; i++ {
		err := p.PutChar('x')
		if errors.Is(err, ErrBufferFull) {
			gotFull = true
			break
		}
		if err != nil {
			t.Fatalf("unexpected error from PutChar: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if !gotFull {
		t.Error("expected PutChar to report ErrBufferFull")
	}

	close(dev.release)
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error from Close(): %v", err)
	}
}

func TestPortStopsOnReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := NewMockDevice(ctrl)
	dev.EXPECT().Read(gomock.Any()).Return(0, errors.New("device gone"))
	dev.EXPECT().Write(gomock.Any()).Return(1, nil).AnyTimes()
	dev.EXPECT().Close().Return(nil)

	p := Open(dev, 8)

	if _, ok := p.GetChar(true); ok {
		t.Error("expected no byte after a device read error")
	}
	if err := p.PutChar('x'); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error from Close(): %v", err)
	}
}

func TestPortStopsOnWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	readBlock := make(chan struct{})
	dev := NewMockDevice(ctrl)
	dev.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-readBlock
		return 0, io.EOF
	}).MaxTimes(1)
	dev.EXPECT().Write(gomock.Any()).Return(0, errors.New("write failed")).AnyTimes()
	dev.EXPECT().Close().DoAndReturn(func() error {
		close(readBlock)
		return nil
	})

	p := Open(dev, 8)

	if err := p.PutChar('x'); err != nil {
		t.Fatalf("unexpected error from PutChar: %v", err)
	}
	// The failed device write stops the workers; a blocking get observes it.
	if _, ok := p.GetChar(true); ok {
		t.Error("expected no byte after a device write error")
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error from Close(): %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	dev := NewTestDevice()
	p := Open(dev, 8)

	if err := p.Close(); err != nil {
		t.Errorf("unexpected error from first Close(): %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error from second Close(): %v", err)
	}
}

func TestCloseUnblocksBlockedGetChar(t *testing.T) {
	dev := NewTestDevice()
	p := Open(dev, 8)

	got := make(chan bool, 1)
	go func() {
		_, ok := p.GetChar(true)
		got <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	p.Close()

	select {
	case ok := <-got:
		if ok {
			t.Error("expected blocked GetChar to report no byte after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetChar still blocked after Close")
	}
}
