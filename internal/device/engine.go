// Package device runs a node: the dispatch engine that turns inbound
// packets into handler calls, the built-in commands, and the run loop that
// sets the node up and keeps it polling.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/bece/internal/arena"
	"github.com/danmuck/bece/internal/command"
	"github.com/danmuck/bece/internal/observability"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/protocol/frame"
	"github.com/danmuck/bece/internal/protocol/session"
	"github.com/danmuck/bece/internal/transport"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danmuck/bece/internal/device"

var (
	ErrUnknownCommand  = errors.New("device: unknown command")
	ErrArgumentLength  = errors.New("device: argument length mismatch")
	ErrLoopTableFull   = errors.New("device: loop function table full")
	ErrUDPDisabled     = errors.New("device: udp disabled")
	ErrRestart         = errors.New("device: restart requested")
	ErrNotProvisioned  = errors.New("device: not provisioned")
	ErrConnectionLimit = errors.New("device: could not reach controller")
)

// Outcome is the result of one Poll cycle.
type Outcome int

const (
	// OutcomeIdle means not connected or no full header buffered yet.
	OutcomeIdle Outcome = iota
	// OutcomeDropped means a header failed the magic check.
	OutcomeDropped
	// OutcomeAborted means the packet was abandoned without a resend.
	OutcomeAborted
	// OutcomeResend means a RESEND request went out for the packet.
	OutcomeResend
	// OutcomeUnknown means no command matched the packet type.
	OutcomeUnknown
	// OutcomeLogged means an inbound LOG message went to the log sink.
	OutcomeLogged
	// OutcomeDispatched means a handler ran to completion.
	OutcomeDispatched
	// OutcomeFailed means a handler ran and returned an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeDropped:
		return "dropped"
	case OutcomeAborted:
		return "aborted"
	case OutcomeResend:
		return "resend"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeLogged:
		return "logged"
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// EngineConfig wires an Engine. Diagnostics receives engine fault lines
// such as "CRC mismatch!"; Inbound receives LOG messages from the
// controller.
type EngineConfig struct {
	Node        string
	Conn        transport.Conn
	Link        *Link
	Arena       *arena.Arena
	Registry    *command.Registry
	Ledger      *session.ResendLedger
	Diagnostics LogSink
	Inbound     LogSink
	Decode      args.DecodeOptions
	Logger      zerolog.Logger
}

// Engine runs the read, validate, dispatch, reset cycle. It owns its arena
// and argument buffer; only the goroutine calling Poll may touch them.
type Engine struct {
	node     string
	conn     transport.Conn
	link     *Link
	arena    *arena.Arena
	registry *command.Registry
	ledger   *session.ResendLedger
	diag     LogSink
	inbound  LogSink
	decode   args.DecodeOptions
	argv     []args.Value
	// depth counts cycles in progress; handlers that call SafeDelay
	// re-enter Poll and get their own arena from nested.
	depth  int
	nested []*arena.Arena
	tracer   trace.Tracer
	log      zerolog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		node:     cfg.Node,
		conn:     cfg.Conn,
		link:     cfg.Link,
		arena:    cfg.Arena,
		registry: cfg.Registry,
		ledger:   cfg.Ledger,
		diag:     cfg.Diagnostics,
		inbound:  cfg.Inbound,
		decode:   cfg.Decode,
		tracer:   otel.Tracer(tracerName),
		log:      cfg.Logger,
	}
	if e.arena == nil {
		e.arena = arena.New(arena.DefaultCapacity)
	}
	if e.ledger == nil {
		e.ledger = session.NewResendLedger(64)
	}
	if e.link == nil {
		e.link = NewLink(cfg.Node, nil, cfg.Conn, nil)
	}
	if e.diag == nil {
		e.diag = ZerologSink{Logger: cfg.Logger}
	}
	if e.inbound == nil {
		e.inbound = ZerologSink{Logger: cfg.Logger}
	}
	return e
}

func (e *Engine) Ledger() *session.ResendLedger { return e.ledger }

func (e *Engine) Arena() *arena.Arena { return e.arena }

// Poll runs at most one packet through the state machine. It never blocks
// waiting for a header: with fewer than HeaderLen bytes buffered it returns
// OutcomeIdle straight away.
func (e *Engine) Poll(ctx context.Context) Outcome {
	if !e.conn.Connected() || e.conn.Available() < frame.HeaderLen {
		return OutcomeIdle
	}
	out := e.cycle(ctx)
	observability.RecordDispatch(e.node, out.String())
	return out
}

func (e *Engine) cycle(ctx context.Context) Outcome {
	a, dst := e.arena, e.argv
	if e.depth > 0 {
		a, dst = e.nestedArena(e.depth), nil
	}
	e.depth++
	defer func() {
		e.depth--
		e.reset(a)
	}()

	h, err := frame.ReadHeader(e.conn)
	if err != nil {
		if errors.Is(err, frame.ErrShortHeader) {
			return OutcomeIdle
		}
		e.log.Warn().Err(err).Msg("device.Engine.Poll header read failed")
		return OutcomeAborted
	}
	if err := h.CheckMagic(); err != nil {
		e.fault(err, "Framing error: bad magic")
		return OutcomeDropped
	}

	pkt, err := frame.ReadPacket(e.conn, h, a)
	switch {
	case errors.Is(err, arena.ErrExhausted):
		e.fault(err, fmt.Sprintf("Packet %d too large for buffer", h.PacketID))
		e.discard(h)
		return OutcomeAborted
	case errors.Is(err, frame.ErrShortPayload):
		e.fault(err, "Short payload!")
		e.requestResend(ctx, h.PacketID, "short_payload")
		return OutcomeResend
	case err != nil:
		e.log.Warn().Err(err).Msg("device.Engine.Poll packet read failed")
		return OutcomeAborted
	}

	if !frame.Validate(pkt) {
		observability.RecordChecksumFailure(e.node)
		e.fault(frame.ErrChecksum, "CRC mismatch!")
		e.requestResend(ctx, h.PacketID, "crc")
		return OutcomeResend
	}
	if e.ledger.Resolve(h.PacketID) {
		observability.RecordResendsOutstanding(e.node, e.ledger.Len())
	}
	observability.RecordPacketReceived(e.node, h.Type.MetricLabel())

	payload := frame.Payload(pkt)
	if h.Type == protocol.MsgLog {
		e.inbound.Log(string(payload))
		return OutcomeLogged
	}

	cmd, ok := e.registry.Lookup(uint16(h.Type))
	if !ok {
		e.fault(fmt.Errorf("%w: %d", ErrUnknownCommand, uint16(h.Type)), "Unknown command")
		return OutcomeUnknown
	}

	argv, n, err := args.DecodeAll(payload, int(h.ArgCount), a, dst, e.decode)
	if err == nil && n != len(payload) {
		err = fmt.Errorf("%w: consumed %d of %d payload bytes", ErrArgumentLength, n, len(payload))
	}
	if err != nil {
		switch {
		case errors.Is(err, args.ErrUnknownTag):
			e.fault(err, "argument type not defined")
			return OutcomeAborted
		case errors.Is(err, arena.ErrExhausted):
			e.fault(err, "Arena out of memory for string")
			return OutcomeAborted
		default:
			e.fault(err, "Argument length mismatch!")
			e.requestResend(ctx, h.PacketID, "argument_length")
			return OutcomeResend
		}
	}
	if e.depth == 1 {
		e.argv = argv[:0]
	}

	return e.dispatch(ctx, h, cmd, argv)
}

func (e *Engine) dispatch(ctx context.Context, h frame.Header, cmd command.Command, argv []args.Value) Outcome {
	spanCtx, span := e.tracer.Start(ctx, "device.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int("bece.command.id", int(cmd.ID)),
			attribute.String("bece.command.name", cmd.Name),
			attribute.Int64("bece.packet.id", int64(h.PacketID)),
			attribute.Int("bece.argument_count", len(argv)),
		),
	)
	defer span.End()

	start := time.Now()
	err := cmd.Handler.Handle(spanCtx, argv)
	observability.RecordHandlerDuration(e.node, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Warn().Err(err).Str("command", cmd.Name).Uint16("id", cmd.ID).Msg("device.Engine handler failed")
		return OutcomeFailed
	}
	span.SetStatus(codes.Ok, "")
	e.log.Debug().Str("command", cmd.Name).Uint16("id", cmd.ID).Uint32("packet_id", h.PacketID).Msg("device.Engine dispatched")
	return OutcomeDispatched
}

// requestResend asks the controller to repeat packetID. The bad bytes are
// never decoded again.
func (e *Engine) requestResend(ctx context.Context, packetID uint32, reason string) {
	entry := e.ledger.MarkRequested(packetID, reason, time.Now())
	observability.RecordResendRequest(e.node, reason, e.ledger.Len())
	if _, err := e.link.SendTCP(ctx, protocol.MsgResend, session.EncodeResendRequest(packetID), 1); err != nil {
		e.log.Warn().Err(err).Uint32("packet_id", packetID).Msg("device.Engine resend request failed")
		return
	}
	e.log.Info().Uint32("packet_id", packetID).Str("reason", reason).Int("attempts", entry.Attempts).Msg("device.Engine resend requested")
}

// discard drains the unread remainder of a packet that could not be
// buffered, keeping the stream aligned on the next header.
func (e *Engine) discard(h frame.Header) {
	rest := int64(h.PacketLen() - frame.HeaderLen)
	if n, err := io.CopyN(io.Discard, e.conn, rest); err != nil {
		e.log.Warn().Err(err).Int64("drained", n).Int64("want", rest).Msg("device.Engine discard incomplete")
	}
}

func (e *Engine) fault(err error, line string) {
	e.log.Warn().Err(err).Msg("device.Engine " + line)
	e.diag.Log(line)
}

// nestedArena returns the scratch arena for a cycle running depth levels
// inside another one, sized like the primary arena.
func (e *Engine) nestedArena(depth int) *arena.Arena {
	for len(e.nested) < depth {
		e.nested = append(e.nested, arena.New(e.arena.Cap()))
	}
	return e.nested[depth-1]
}

func (e *Engine) reset(a *arena.Arena) {
	if a == e.arena {
		observability.RecordArenaHighWater(e.node, a.HighWater())
	}
	a.Reset()
}
