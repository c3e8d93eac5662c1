package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

const maxDatagram = 1500

// UDPReceiver delivers each datagram as one payload, without framing.
type UDPReceiver struct {
	conn *net.UDPConn
	out  chan<- []byte
	opts options
}

func StartUDP(ctx context.Context, addr string, out chan<- []byte, opts ...Option) (*UDPReceiver, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	r := &UDPReceiver{conn: conn, out: out, opts: defaultOptions()}
	r.opts.bufSize = maxDatagram
	for _, opt := range opts {
		opt(&r.opts)
	}
	context.AfterFunc(ctx, func() { _ = conn.Close() })
	go r.run(ctx)
	return r, nil
}

func (r *UDPReceiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *UDPReceiver) Close() error {
	return r.conn.Close()
}

func (r *UDPReceiver) run(ctx context.Context) {
	buf := make([]byte, r.opts.bufSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if r.opts.errorHandler != nil {
				r.opts.errorHandler(err)
			}
			continue
		}
		if n == 0 {
			continue
		}
		payload := append([]byte(nil), buf[:n]...)
		select {
		case r.out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

// UDPSender transmits one payload per datagram.
type UDPSender struct {
	conn net.Conn
}

func DialUDP(addr string) (*UDPSender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &UDPSender{conn: conn}, nil
}

func (s *UDPSender) Send(payload []byte) error {
	if len(payload) > maxDatagram {
		return fmt.Errorf("datagram too large: %d bytes", len(payload))
	}
	_, err := s.conn.Write(payload)
	return err
}

func (s *UDPSender) Close() error {
	return s.conn.Close()
}
