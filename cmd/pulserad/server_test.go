package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pulsera/pkg/config"
	"pulsera/pkg/protocol"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartServerStreamsAdviceToJSONL(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen reply peer: %v", err)
	}
	defer peer.Close()

	heading := 0.0
	cfg := config.Default()
	cfg.Receiver.ReplyAddr = peer.LocalAddr().String()
	cfg.Receiver.Transport = config.TransportTCP
	cfg.Receiver.Addr = ln.Addr().String()
	cfg.Receiver.Reconnect = "10ms"
	cfg.Crossing.Heading = &heading
	cfg.API.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	if _, err := startServer(ctx, cfg, zerolog.Nop(), &out); err != nil {
		t.Fatalf("start server: %v", err)
	}

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer conn.Close()

	r, _ := protocol.ReportFromInts(1, 90)
	stream := append(protocol.EncodeFrame(protocol.KindReport, []byte{7, 0, 0}), protocol.EncodeFrame(protocol.KindReport, protocol.Encode(r))...)
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "VIBRATE_START") {
		if time.Now().After(deadline) {
			t.Fatalf("advice not written, got %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := strings.Count(out.String(), "\n"); n != 1 {
		t.Fatalf("invalid report must not be written, got %d lines", n)
	}

	buf := make([]byte, 32)
	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := peer.ReadFrom(buf)
	if err != nil || string(buf[:n]) != "VIBRATE_START" {
		t.Fatalf("expected command reply, got %q (%v)", buf[:n], err)
	}
}

func TestStartServerRejectsBadUDPAddr(t *testing.T) {
	cfg := config.Default()
	cfg.Receiver.Addr = "not-an-addr"
	cfg.API.Enabled = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := startServer(ctx, cfg, zerolog.Nop(), nil); err == nil {
		t.Fatalf("expected listen error")
	}
}
