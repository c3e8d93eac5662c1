// Package transport delivers raw payloads from the radio bridge to the host.
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"
)

type options struct {
	reconnect    time.Duration
	reconnectMax time.Duration
	bufSize      int
	dialTimeout  time.Duration
	readTimeout  time.Duration
	baud         int
	openSerial   SerialOpener
	errorHandler func(error)
}

func defaultOptions() options {
	return options{
		reconnect:    1 * time.Second,
		reconnectMax: 30 * time.Second,
		bufSize:      64 * 1024,
		dialTimeout:  5 * time.Second,
		baud:         115200,
		openSerial:   openSerialPort,
	}
}

type Option func(*options)

func WithReconnectInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnect = d
		}
	}
}

func WithReconnectMax(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnectMax = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.errorHandler = fn
		}
	}
}

// Listener keeps a stream source open and splits it into COBS frames on
// the 0x00 delimiter. Delimiters are stripped and empty frames skipped.
type Listener struct {
	addr string
	out  chan<- []byte
	opts options
	open func() (io.ReadCloser, error)
	idle func(error) bool
}

// StartListener dials addr over TCP and reconnects with linear backoff
// until ctx is done.
func StartListener(ctx context.Context, addr string, out chan<- []byte, opts ...Option) *Listener {
	l := newListener(addr, out, opts)
	l.open = func() (io.ReadCloser, error) {
		return net.DialTimeout("tcp", l.addr, l.opts.dialTimeout)
	}
	l.idle = isTimeout
	go l.run(ctx)
	return l
}

func newListener(addr string, out chan<- []byte, opts []Option) *Listener {
	l := &Listener{addr: addr, out: out, opts: defaultOptions()}
	for _, opt := range opts {
		opt(&l.opts)
	}
	return l
}

func (l *Listener) Addr() string {
	return l.addr
}

func (l *Listener) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := l.open()
		if err != nil {
			l.handleError(err)
			attempt++
			l.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		err = l.handleConn(ctx, conn)
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.handleError(err)
		}
		l.sleepBackoff(ctx, 1)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn io.Reader) error {
	reader := bufio.NewReaderSize(conn, l.opts.bufSize)
	nc, hasDeadline := conn.(net.Conn)
	var pending []byte
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if hasDeadline && l.opts.readTimeout > 0 {
			_ = nc.SetReadDeadline(time.Now().Add(l.opts.readTimeout))
		}
		chunk, err := reader.ReadBytes(0x00)
		if err != nil {
			if l.idle(err) {
				pending = append(pending, chunk...)
				continue
			}
			return err
		}

		frame := chunk[:len(chunk)-1]
		if len(pending) > 0 {
			frame = append(pending, frame...)
			pending = nil
		}
		if len(frame) == 0 {
			continue
		}
		payload := append([]byte(nil), frame...)
		select {
		case l.out <- payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Listener) sleepBackoff(ctx context.Context, attempt int) {
	wait := min(l.opts.reconnect*time.Duration(attempt), l.opts.reconnectMax)
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}

func (l *Listener) handleError(err error) {
	if l.opts.errorHandler != nil {
		l.opts.errorHandler(err)
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
