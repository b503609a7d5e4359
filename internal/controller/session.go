package controller

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/bece/internal/arena"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/protocol/frame"
	"github.com/danmuck/bece/internal/protocol/schema"
	"github.com/danmuck/bece/internal/protocol/session"
	"github.com/rs/zerolog"
)

var (
	ErrClosed       = errors.New("controller: session closed")
	ErrNotInHistory = errors.New("controller: packet not in send history")
)

// Message is one validated packet received from a node, decoded by type.
type Message struct {
	Header frame.Header
	// Text holds LOG and SEND_NAME payloads.
	Text        string
	Description schema.Description
	// ResendID is the packet a RESEND asks for.
	ResendID uint32
	UDPPort  uint16
	// Args holds the decoded arguments of any other message type.
	Args []args.Value
}

// Session is the controller end of one node connection. Writes are
// serialized; reads belong to the goroutine running Serve.
type Session struct {
	conn    net.Conn
	br      *bufio.Reader
	arena   *arena.Arena
	codec   *frame.Codec
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	history map[uint32][]byte
	order   []uint32
	limit   int

	nameMu sync.RWMutex
	name   string
}

func newSession(conn net.Conn, cfg Config, log zerolog.Logger) *Session {
	return &Session{
		conn:    conn,
		br:      bufio.NewReader(conn),
		arena:   arena.New(cfg.ArenaSize),
		codec:   frame.NewCodec(),
		timeout: cfg.WriteTimeout,
		log:     log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		history: make(map[uint32][]byte),
		limit:   cfg.HistoryLimit,
	}
}

func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// Name is the last name the node reported, or "" before SEND_NAME arrives.
func (s *Session) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.name
}

func (s *Session) Close() error { return s.conn.Close() }

// Invoke sends command id with the given runtime arguments.
func (s *Session) Invoke(id uint16, vals ...args.Value) (uint32, error) {
	payload, err := args.Encode(vals...)
	if err != nil {
		return 0, err
	}
	return s.send(protocol.MessageType(id), payload, uint8(len(vals)))
}

// RequestName asks the node to report "<name>_<id>".
func (s *Session) RequestName() (uint32, error) {
	return s.send(protocol.MessageType(protocol.CmdSendName), nil, 0)
}

// RequestCommands asks the node to describe every command it accepts.
func (s *Session) RequestCommands() (uint32, error) {
	return s.send(protocol.MessageType(protocol.CmdSendCommands), nil, 0)
}

// Log sends a LOG message the node prints locally.
func (s *Session) Log(msg string) (uint32, error) {
	return s.send(protocol.MsgLog, []byte(msg), 1)
}

func (s *Session) send(typ protocol.MessageType, payload []byte, argc uint8) (uint32, error) {
	if len(payload) > frame.MaxPayloadLen {
		return 0, fmt.Errorf("%w: %d", frame.ErrPayloadTooLarge, len(payload))
	}
	h := s.codec.BuildHeader(typ, 0, 1, uint16(len(payload)), argc)
	buf, err := frame.Encode(h, payload)
	if err != nil {
		return 0, err
	}
	s.remember(h.PacketID, buf)
	if err := s.write(buf); err != nil {
		return 0, err
	}
	return h.PacketID, nil
}

// Resend writes packetID again, byte for byte.
func (s *Session) Resend(packetID uint32) error {
	s.mu.Lock()
	buf, ok := s.history[packetID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotInHistory, packetID)
	}
	return s.write(buf)
}

func (s *Session) write(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("controller: write: %w", err)
	}
	return nil
}

func (s *Session) remember(id uint32, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit <= 0 {
		return
	}
	if _, ok := s.history[id]; !ok {
		s.order = append(s.order, id)
	}
	s.history[id] = buf
	for len(s.order) > s.limit {
		delete(s.history, s.order[0])
		s.order = s.order[1:]
	}
}

// next reads and decodes one packet. Corrupted packets are answered with a
// RESEND like the node does, and reading continues.
func (s *Session) next(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		s.arena.Reset()
		h, err := frame.ReadHeader(s.br)
		if err != nil {
			if errors.Is(err, frame.ErrShortHeader) {
				return Message{}, ErrClosed
			}
			return Message{}, err
		}
		if err := h.CheckMagic(); err != nil {
			return Message{}, err
		}
		pkt, err := frame.ReadPacket(s.br, h, s.arena)
		if err != nil {
			return Message{}, err
		}
		if !frame.Validate(pkt) {
			s.log.Warn().Uint32("packet_id", h.PacketID).Msg("controller.Session checksum mismatch")
			if _, err := s.send(protocol.MsgResend, session.EncodeResendRequest(h.PacketID), 1); err != nil {
				return Message{}, err
			}
			continue
		}
		m, err := s.decode(h, frame.Payload(pkt))
		if err != nil {
			s.log.Warn().Err(err).Uint16("type", uint16(h.Type)).Msg("controller.Session decode failed")
			continue
		}
		return m, nil
	}
}

func (s *Session) decode(h frame.Header, payload []byte) (Message, error) {
	m := Message{Header: h}
	var err error
	switch h.Type {
	case protocol.MsgLog:
		m.Text = string(payload)
	case protocol.MsgSendName:
		m.Text = string(payload)
		s.nameMu.Lock()
		s.name = m.Text
		s.nameMu.Unlock()
	case protocol.MsgSendCommand:
		m.Description, err = schema.DecodeDescription(payload, h.ArgCount)
	case protocol.MsgResend:
		m.ResendID, err = session.DecodeResendRequest(payload)
	case protocol.MsgEstablishUDP:
		m.UDPPort, err = session.DecodeUDPAnnounce(payload)
	default:
		var vals []args.Value
		vals, _, err = args.DecodeAll(payload, int(h.ArgCount), s.arena, nil, args.DecodeOptions{})
		for _, v := range vals {
			if str, serr := v.Str(); serr == nil {
				v = args.String(str)
			}
			m.Args = append(m.Args, v)
		}
	}
	return m, err
}
