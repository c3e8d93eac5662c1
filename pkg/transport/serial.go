package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tarm/serial"
)

// SerialOpener opens a serial port. Tests swap it for an in-memory port.
type SerialOpener func(cfg *serial.Config) (io.ReadWriteCloser, error)

func openSerialPort(cfg *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(cfg)
}

func WithBaudRate(baud int) Option {
	return func(o *options) {
		if baud > 0 {
			o.baud = baud
		}
	}
}

func WithSerialOpener(fn SerialOpener) Option {
	return func(o *options) {
		if fn != nil {
			o.openSerial = fn
		}
	}
}

// StartSerialListener reads COBS frames from a USB-attached radio bridge.
// The port is reopened with backoff when it disappears.
func StartSerialListener(ctx context.Context, port string, out chan<- []byte, opts ...Option) *Listener {
	l := newListener(port, out, opts)
	readTimeout := l.opts.readTimeout
	if readTimeout <= 0 {
		readTimeout = 100 * time.Millisecond
	}
	cfg := &serial.Config{Name: port, Baud: l.opts.baud, ReadTimeout: readTimeout}
	l.open = func() (io.ReadCloser, error) {
		return l.opts.openSerial(cfg)
	}
	// An expired read timeout surfaces as io.EOF on a serial port.
	l.idle = func(err error) bool {
		return errors.Is(err, io.EOF) || isTimeout(err)
	}
	go l.run(ctx)
	return l
}
