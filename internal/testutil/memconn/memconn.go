// Package memconn is an in-memory transport.Conn for engine tests. Bytes
// fed with Feed become readable; everything written is captured.
package memconn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var ErrClosed = errors.New("memconn: not connected")

type Conn struct {
	mu         sync.Mutex
	in         bytes.Buffer
	out        bytes.Buffer
	writes     [][]byte
	connected  bool
	connects   int
	ConnectErr error
}

// New returns a connected Conn.
func New() *Conn {
	return &Conn{connected: true}
}

// Feed queues inbound bytes.
func (c *Conn) Feed(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in.Write(b)
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.connected = true
	return nil
}

// Drop simulates a lost link.
func (c *Conn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *Conn) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *Conn) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return 0
	}
	return c.in.Len()
}

// Read never blocks: an empty buffer reads as io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in.Len() == 0 {
		return 0, io.EOF
	}
	return c.in.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return 0, ErrClosed
	}
	c.out.Write(p)
	c.writes = append(c.writes, bytes.Clone(p))
	return len(p), nil
}

func (c *Conn) Close() error {
	c.Drop()
	return nil
}

// Written returns every Write call's bytes in order.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Output returns all written bytes concatenated.
func (c *Conn) Output() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.out.Bytes())
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.Reset()
	c.writes = nil
}
