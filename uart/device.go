package uart

import (
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=device.go -destination=mock_serial.go -package=uart

// Device is an established, bidirectional byte stream to the ESP8266.
//
// A Device is assumed to be already opened and ready for use. Typical
// implementations are a real UART and the in-memory fakes used in tests.
type Device interface {
	io.ReadWriteCloser
}

// Opener opens a Device.
//
// Opener abstracts how the device is reached (a serial port, a pty, a test
// double) and is only consulted while bringing a connection up. Once a
// Device is obtained, the Opener is no longer needed.
type Opener interface {
	Open() (Device, error)
}

// PortOpener opens a UART through go.bug.st/serial.
type PortOpener struct {
	// PortName is the device path, e.g. /dev/ttyUSB0.
	PortName string
	// Mode configures baud rate, parity, data and stop bits. When nil the
	// ESP8266 factory settings are used: 115200 8N1.
	Mode *serial.Mode
}

func (o PortOpener) Open() (Device, error) {
	if o.PortName == "" {
		return nil, errors.New("uart: serial port name is required")
	}

	mode := o.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: 115200,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(o.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.PortName, err)
	}
	return port, nil
}
