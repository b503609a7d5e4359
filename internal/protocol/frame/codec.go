package frame

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/danmuck/bece/internal/protocol"
)

// Sink is the outbound side of a transport.
type Sink interface {
	io.Writer
	Connected() bool
	Connect(ctx context.Context) error
}

// Codec stamps outgoing headers. It owns the process-wide packet-id counter,
// which starts at zero and only moves forward. The poll loop is the only
// sender; the counter is atomic so status readers can observe it.
type Codec struct {
	next atomic.Uint32
}

func NewCodec() *Codec {
	return &Codec{}
}

// NextID reports the id the next BuildHeader call will assign.
func (c *Codec) NextID() uint32 {
	return c.next.Load()
}

// BuildHeader fills magic and command set, assigns the next packet id, and
// copies the remaining fields verbatim.
func (c *Codec) BuildHeader(typ protocol.MessageType, seq, total, payloadLen uint16, argc uint8) Header {
	h := Header{
		Magic:        protocol.Magic,
		CommandSet:   protocol.CommandSet,
		Type:         typ,
		PacketID:     c.next.Add(1) - 1,
		PacketNum:    seq,
		TotalPackets: total,
		PayloadLen:   payloadLen,
		ArgCount:     argc,
	}
	return h
}

// Send frames h and payload and writes them in one call. A disconnected
// sink gets exactly one reconnect attempt before the write.
func (c *Codec) Send(ctx context.Context, sink Sink, h Header, payload []byte) error {
	buf, err := Encode(h, payload)
	if err != nil {
		return err
	}
	if !sink.Connected() {
		if err := sink.Connect(ctx); err != nil {
			return fmt.Errorf("frame: reconnect before send: %w", err)
		}
	}
	_, err = sink.Write(buf)
	return err
}

// SendMessage builds a single-packet header for payload and sends it.
func (c *Codec) SendMessage(ctx context.Context, sink Sink, typ protocol.MessageType, payload []byte, argc uint8) (Header, error) {
	if len(payload) > MaxPayloadLen {
		return Header{}, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}
	h := c.BuildHeader(typ, 0, 1, uint16(len(payload)), argc)
	return h, c.Send(ctx, sink, h, payload)
}
