// Package controller is the server end of the node protocol: it accepts
// node connections, decodes what they send, answers resend requests from its
// send history, and lets callers invoke commands.
package controller

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/bece/internal/arena"
	"github.com/danmuck/bece/internal/observability"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/frame"
	"github.com/rs/zerolog"
)

// Config controls a Controller.
type Config struct {
	ListenAddr    string
	UDPListenAddr string
	WriteTimeout  time.Duration
	// HistoryLimit bounds how many sent packets each session can resend.
	HistoryLimit int
	ArenaSize    int
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":15000",
		UDPListenAddr: ":15001",
		WriteTimeout:  5 * time.Second,
		HistoryLimit:  64,
		ArenaSize:     1 << 17,
	}
}

// Handler observes sessions. OnSession runs once per connection before any
// message is read; OnMessage runs for every decoded message.
type Handler interface {
	OnSession(s *Session)
	OnMessage(s *Session, m Message)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Session func(s *Session)
	Message func(s *Session, m Message)
}

func (h HandlerFuncs) OnSession(s *Session) {
	if h.Session != nil {
		h.Session(s)
	}
}

func (h HandlerFuncs) OnMessage(s *Session, m Message) {
	if h.Message != nil {
		h.Message(s, m)
	}
}

type Controller struct {
	cfg     Config
	handler Handler
	log     zerolog.Logger

	active  atomic.Int64
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

func New(cfg Config, handler Handler) *Controller {
	def := DefaultConfig()
	if cfg.ArenaSize <= 0 {
		cfg.ArenaSize = def.ArenaSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	return &Controller{
		cfg:     cfg,
		handler: handler,
		log:     observability.ComponentLogger("controller", "controller"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Active reports the number of open node sessions.
func (c *Controller) Active() int { return int(c.active.Load()) }

// Serve accepts node connections on ln until ctx ends.
func (c *Controller) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		c.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		c.trackConn(conn)
		go c.handleConn(ctx, conn)
	}
}

func (c *Controller) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer c.untrackConn(conn)
	s := newSession(conn, c.cfg, c.log)
	active := c.active.Add(1)
	c.log.Info().Str("remote", s.RemoteAddr()).Int64("active", active).Msg("controller.session connected")
	defer func() {
		remaining := c.active.Add(-1)
		c.log.Info().Str("remote", s.RemoteAddr()).Int64("active", remaining).Msg("controller.session disconnected")
	}()

	c.handler.OnSession(s)
	for {
		m, err := s.next(ctx)
		if err != nil {
			if !errors.Is(err, ErrClosed) && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				c.log.Warn().Err(err).Str("remote", s.RemoteAddr()).Msg("controller.session read failed")
			}
			return
		}
		observability.RecordPacketReceived("controller", m.Header.Type.MetricLabel())
		if m.Header.Type == protocol.MsgResend {
			if err := s.Resend(m.ResendID); err != nil {
				c.log.Warn().Err(err).Uint32("packet_id", m.ResendID).Msg("controller.session resend failed")
			}
		}
		c.handler.OnMessage(s, m)
	}
}

// ServeUDP reads mirrored datagrams from pc until ctx ends. Each datagram
// carries exactly one packet.
func (c *Controller) ServeUDP(ctx context.Context, pc net.PacketConn, fn func(addr net.Addr, m Message)) error {
	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()
	buf := make([]byte, frame.HeaderLen+frame.MaxPayloadLen+frame.ChecksumLen)
	a := arena.New(c.cfg.ArenaSize)
	decoder := &Session{arena: a, log: c.log}
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		pkt := buf[:n]
		if n < frame.HeaderLen+frame.ChecksumLen || !frame.Validate(pkt) {
			c.log.Warn().Int("bytes", n).Str("from", addr.String()).Msg("controller.ServeUDP dropped datagram")
			continue
		}
		h, err := frame.DecodeHeader(pkt[:frame.HeaderLen])
		if err != nil || h.CheckMagic() != nil || h.PacketLen() != n {
			c.log.Warn().Str("from", addr.String()).Msg("controller.ServeUDP malformed datagram")
			continue
		}
		a.Reset()
		m, err := decoder.decode(h, frame.Payload(pkt))
		if err != nil {
			c.log.Warn().Err(err).Str("from", addr.String()).Msg("controller.ServeUDP decode failed")
			continue
		}
		if fn != nil {
			fn(addr, m)
		}
	}
}

func (c *Controller) trackConn(conn net.Conn) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	c.conns[conn] = struct{}{}
}

func (c *Controller) untrackConn(conn net.Conn) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	delete(c.conns, conn)
}

func (c *Controller) closeAllConns() {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	for conn := range c.conns {
		_ = conn.Close()
		delete(c.conns, conn)
	}
}
