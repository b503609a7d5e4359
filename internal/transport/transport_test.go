package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/bece/internal/protocol/frame"
	"github.com/danmuck/bece/internal/testutil/testlog"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestTCPConnAvailableAndRead(t *testing.T) {
	testlog.Start(t)
	ln := listen(t)
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	c := NewTCPConn(TCPConfig{Addr: ln.Addr().String(), ConnectTimeout: time.Second, ReadTimeout: time.Second})
	if c.Connected() {
		t.Fatalf("connected before Connect")
	}
	if c.Available() != 0 {
		t.Fatalf("available before Connect")
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	peer := <-accepted
	defer peer.Close()

	if n := c.Available(); n != 0 {
		t.Fatalf("available on idle link: %d", n)
	}
	if _, err := peer.Write([]byte("abcd")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.Available() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("bytes never became available")
		}
		time.Sleep(5 * time.Millisecond)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "abcd" {
		t.Fatalf("read: got=%q", buf)
	}

	if _, err := c.Write([]byte("xy")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := make([]byte, 2)
	if _, err := io.ReadFull(peer, got); err != nil || string(got) != "xy" {
		t.Fatalf("peer read: got=%q err=%v", got, err)
	}
}

func TestTCPConnAvailableCompletesSplitHeader(t *testing.T) {
	testlog.Start(t)
	ln := listen(t)
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	c := NewTCPConn(TCPConfig{Addr: ln.Addr().String(), ConnectTimeout: time.Second, ReadTimeout: time.Second})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	peer := <-accepted
	defer peer.Close()

	header := make([]byte, frame.HeaderLen)
	for i := range header {
		header[i] = byte(i + 1)
	}
	waitAvailable := func(want int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			n := c.Available()
			if n >= want {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("available: got=%d want>=%d", n, want)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	if _, err := peer.Write(header[:5]); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	waitAvailable(5)
	if _, err := peer.Write(header[5:]); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	waitAvailable(frame.HeaderLen)

	got := make([]byte, frame.HeaderLen)
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(header) {
		t.Fatalf("read: got=%x want=%x", got, header)
	}
	if !c.Connected() {
		t.Fatalf("connection dropped after a split header")
	}
}

func TestTCPConnDetectsPeerClose(t *testing.T) {
	testlog.Start(t)
	ln := listen(t)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			_ = c.Close()
		}
	}()
	c := NewTCPConn(TCPConfig{Addr: ln.Addr().String(), ConnectTimeout: time.Second})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("peer close never detected")
		}
		c.Available()
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTCPConnWriteWhenDisconnected(t *testing.T) {
	testlog.Start(t)
	c := NewTCPConn(TCPConfig{Addr: "127.0.0.1:1"})
	if _, err := c.Write([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := c.Read(make([]byte, 1)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestUDPMirrorSendsDatagrams(t *testing.T) {
	testlog.Start(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer pc.Close()

	u := NewUDPMirror(pc.LocalAddr().String(), time.Second)
	if u.LocalPort() != 0 {
		t.Fatalf("local port before connect")
	}
	if err := u.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer u.Close()
	if u.LocalPort() == 0 {
		t.Fatalf("expected a local port after connect")
	}
	if _, err := u.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("datagram: got=%q", buf[:n])
	}
}
