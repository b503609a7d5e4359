package device

import (
	"context"
	"fmt"

	"github.com/danmuck/bece/internal/observability"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/frame"
)

// Link is the outbound side shared by the engine and the node: one packet
// codec over the TCP stream and an optional UDP mirror.
type Link struct {
	node  string
	codec *frame.Codec
	tcp   frame.Sink
	udp   frame.Sink
}

func NewLink(node string, codec *frame.Codec, tcp, udp frame.Sink) *Link {
	if codec == nil {
		codec = frame.NewCodec()
	}
	return &Link{node: node, codec: codec, tcp: tcp, udp: udp}
}

func (l *Link) Codec() *frame.Codec { return l.codec }

// SendTCP frames payload as a single packet of type typ on the stream.
func (l *Link) SendTCP(ctx context.Context, typ protocol.MessageType, payload []byte, argc uint8) (frame.Header, error) {
	h, err := l.codec.SendMessage(ctx, l.tcp, typ, payload, argc)
	if err != nil {
		return h, fmt.Errorf("send %s over tcp: %w", typ, err)
	}
	observability.RecordPacketSent(l.node, typ.MetricLabel(), "tcp")
	return h, nil
}

// SendUDP frames payload the same way and sends it as one datagram.
func (l *Link) SendUDP(ctx context.Context, typ protocol.MessageType, payload []byte, argc uint8) (frame.Header, error) {
	if l.udp == nil {
		return frame.Header{}, ErrUDPDisabled
	}
	h, err := l.codec.SendMessage(ctx, l.udp, typ, payload, argc)
	if err != nil {
		return h, fmt.Errorf("send %s over udp: %w", typ, err)
	}
	observability.RecordPacketSent(l.node, typ.MetricLabel(), "udp")
	return h, nil
}
