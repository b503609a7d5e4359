// Package transport provides the byte-stream links a node talks over: a TCP
// connection to the controller and an optional UDP mirror.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/danmuck/bece/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("transport: not connected")

// Conn is the stream the dispatch engine polls. Available reports bytes that
// can be read without blocking.
type Conn interface {
	io.ReadWriteCloser
	Connected() bool
	Connect(ctx context.Context) error
	Available() int
}

// TCPConfig configures a controller connection.
type TCPConfig struct {
	Addr           string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// PollWait bounds how long Available blocks looking for new bytes.
	PollWait time.Duration
}

// TCPConn is a reconnectable TCP client. Reads go through a buffered reader
// so Available can peek without consuming.
type TCPConn struct {
	cfg TCPConfig

	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader
}

func NewTCPConn(cfg TCPConfig) *TCPConn {
	if cfg.PollWait <= 0 {
		cfg.PollWait = time.Millisecond
	}
	return &TCPConn{cfg: cfg}
}

func (c *TCPConn) Addr() string { return c.cfg.Addr }

func (c *TCPConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the controller, replacing any previous connection.
func (c *TCPConn) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.cfg.Addr, err)
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.br = bufio.NewReaderSize(conn, 2048)
	c.mu.Unlock()
	log.Info().Str("addr", c.cfg.Addr).Msg("transport.TCPConn.Connect ok")
	return nil
}

// Available reports buffered bytes. While less than a full header is
// buffered it peeks the socket with a short deadline, so a header split
// across segments completes on a later poll. A closed peer marks the
// connection as dropped.
func (c *TCPConn) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0
	}
	want := min(frame.HeaderLen, c.br.Size())
	if c.br.Buffered() >= want {
		return c.br.Buffered()
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PollWait))
	_, err := c.br.Peek(want)
	_ = c.conn.SetReadDeadline(time.Time{})
	if err != nil && !isTimeout(err) {
		log.Warn().Err(err).Str("addr", c.cfg.Addr).Msg("transport.TCPConn.Available connection lost")
		c.dropLocked()
		return 0
	}
	return c.br.Buffered()
}

func (c *TCPConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	conn, br := c.conn, c.br
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}
	if c.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}
	return br.Read(p)
}

func (c *TCPConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}
	n, err := conn.Write(p)
	if err != nil {
		c.mu.Lock()
		c.dropLocked()
		c.mu.Unlock()
	}
	return n, err
}

func (c *TCPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.br = nil, nil
	return err
}

func (c *TCPConn) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.br = nil, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
