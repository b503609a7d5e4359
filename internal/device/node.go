package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/bece/internal/arena"
	"github.com/danmuck/bece/internal/command"
	"github.com/danmuck/bece/internal/config"
	"github.com/danmuck/bece/internal/observability"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/protocol/frame"
	"github.com/danmuck/bece/internal/protocol/schema"
	"github.com/danmuck/bece/internal/protocol/session"
	"github.com/danmuck/bece/internal/server"
	"github.com/danmuck/bece/internal/store"
	"github.com/danmuck/bece/internal/transport"
	"github.com/rs/zerolog"
)

var ErrStarted = errors.New("device: node already set up")

// LoopFunc runs once per loop iteration, before the engine polls.
type LoopFunc func(ctx context.Context)

// Options wires a Node. Conn and UDP replace the transports built from
// stored credentials; System replaces the host restart/update/reset
// behaviour.
type Options struct {
	Config  config.NodeConfig
	Store   store.Store
	Conn    transport.Conn
	UDP     frame.Sink
	System  System
	Inbound LogSink
}

// Node is one device: its command table, loop functions and link to the
// controller. Register commands and loop functions before Run; after
// setup the poll loop owns every mutable part except the admin snapshots.
type Node struct {
	cfg      config.NodeConfig
	store    store.Store
	inbound  LogSink
	log      zerolog.Logger
	codec    *frame.Codec
	registry *command.Registry
	loops    []LoopFunc
	ledger   *session.ResendLedger
	system   System
	started  time.Time

	conn   transport.Conn
	udp    frame.Sink
	link   *Link
	remote *RemoteLog
	engine *Engine
	ready  atomic.Bool

	commands atomic.Pointer[[]schema.Description]

	mu      sync.Mutex
	restart context.CancelCauseFunc
}

func New(opts Options) (*Node, error) {
	cfg := opts.Config
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return nil, err
	}
	n := &Node{
		cfg:     cfg,
		store:   opts.Store,
		inbound: opts.Inbound,
		log:     observability.ComponentLogger(cfg.Identity(), "device"),
		codec:   frame.NewCodec(),
		loops:   make([]LoopFunc, 0, cfg.MaxLoopFunctions),
		ledger:  session.NewResendLedger(64),
		system:  opts.System,
		conn:    opts.Conn,
		udp:     opts.UDP,
	}
	registry, err := command.NewRegistry(n.builtins(), cfg.MaxRegisteredCommands)
	if err != nil {
		return nil, err
	}
	n.registry = registry
	n.publishCommands()
	return n, nil
}

func (n *Node) Config() config.NodeConfig { return n.cfg }

// Register adds a user command. Any error here is a startup error.
func (n *Node) Register(c command.Command) error {
	if n.ready.Load() {
		return ErrStarted
	}
	if err := n.registry.Register(c); err != nil {
		return err
	}
	n.publishCommands()
	return nil
}

// RegisterLoop appends fn to the fixed-capacity loop table.
func (n *Node) RegisterLoop(fn LoopFunc) error {
	if n.ready.Load() {
		return ErrStarted
	}
	if fn == nil {
		return fmt.Errorf("device: nil loop function")
	}
	if len(n.loops) == cap(n.loops) {
		n.log.Error().Int("capacity", cap(n.loops)).Msg("device.Node.RegisterLoop table full")
		return fmt.Errorf("%w: capacity %d", ErrLoopTableFull, cap(n.loops))
	}
	n.loops = append(n.loops, fn)
	return nil
}

// Setup connects to the controller and announces the node: it loads
// credentials when no transport was injected, connects with the configured
// number of attempts, logs "<name>_<id> CONNECTED", and sends ESTABLISH_UDP
// when UDP is enabled.
func (n *Node) Setup(ctx context.Context) error {
	if n.ready.Load() {
		return ErrStarted
	}
	var serverHost string
	if n.conn == nil {
		creds, err := n.loadCredentials()
		if err != nil {
			return err
		}
		serverHost = creds.ServerAddr
		n.conn = transport.NewTCPConn(transport.TCPConfig{
			Addr:           net.JoinHostPort(serverHost, strconv.Itoa(int(n.cfg.ServerPortTCP))),
			ConnectTimeout: n.cfg.ConnectTimeout,
			ReadTimeout:    n.cfg.ReadTimeout,
		})
		if n.cfg.UseUDP && n.udp == nil {
			n.udp = transport.NewUDPMirror(net.JoinHostPort(serverHost, strconv.Itoa(int(n.cfg.ServerPortUDP))), n.cfg.ConnectTimeout)
		}
	}

	if !n.conn.Connected() {
		backoff := session.DefaultBackoff()
		err := session.Retry(ctx, backoff, n.cfg.TCPConnectionAttempts, nil, func(attempt int) error {
			n.log.Info().Int("attempt", attempt).Msg("device.Node.Setup connecting")
			return n.conn.Connect(ctx)
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionLimit, err)
		}
	}

	n.link = NewLink(n.cfg.Identity(), n.codec, n.conn, n.udp)
	n.remote = NewRemoteLog(n.link, n.log, n.cfg.ConnectTimeout)
	if n.system == nil {
		updateURL := n.cfg.UpdateURL
		if updateURL == "" && serverHost != "" {
			updateURL = "http://" + serverHost
		}
		n.system = NewHostSystem(HostSystemConfig{
			DeviceName:      n.cfg.DeviceName,
			FirmwareVersion: n.cfg.FirmwareVersion,
			UpdateURL:       updateURL,
			Store:           n.store,
			Logs:            LogFunc(n.SendLog),
			OnRestart:       n.requestRestart,
		})
	}
	n.engine = NewEngine(EngineConfig{
		Node:        n.cfg.Identity(),
		Conn:        n.conn,
		Link:        n.link,
		Arena:       arena.New(n.cfg.ArenaSize),
		Registry:    n.registry,
		Ledger:      n.ledger,
		Diagnostics: n.remote,
		Inbound:     n.inbound,
		Decode:      args.DecodeOptions{SkipUnknownTags: n.cfg.CompatSkipUnknownTags},
		Logger:      n.log,
	})
	n.started = time.Now()
	n.ready.Store(true)

	n.SendLog(n.cfg.Identity() + " CONNECTED")
	if n.cfg.UseUDP {
		if err := n.announceUDP(ctx); err != nil {
			n.log.Warn().Err(err).Msg("device.Node.Setup udp announce failed")
		}
	}
	n.publishCommands()
	return nil
}

func (n *Node) loadCredentials() (store.Credentials, error) {
	if n.store == nil {
		return store.Credentials{}, fmt.Errorf("%w: no credential store configured", ErrNotProvisioned)
	}
	creds, err := n.store.Load()
	if errors.Is(err, store.ErrNotProvisioned) {
		return store.Credentials{}, fmt.Errorf("%w: run `becenode creds set` first: %w", ErrNotProvisioned, err)
	}
	if err != nil {
		return store.Credentials{}, err
	}
	return creds, nil
}

func (n *Node) announceUDP(ctx context.Context) error {
	if n.udp != nil && !n.udp.Connected() {
		if err := n.udp.Connect(ctx); err != nil {
			return err
		}
	}
	_, err := n.link.SendTCP(ctx, protocol.MsgEstablishUDP, session.EncodeUDPAnnounce(n.cfg.ServerPortUDP), 1)
	return err
}

// Run sets the node up and loops until ctx ends or a restart is requested,
// in which case it returns ErrRestart.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	n.mu.Lock()
	n.restart = cancel
	n.mu.Unlock()

	if err := n.Setup(ctx); err != nil {
		return err
	}
	n.log.Info().Int("commands", n.registry.Len()).Int("loops", len(n.loops)).Msg("device.Node.Run started")

	attempt := 0
	for {
		if ctx.Err() != nil {
			if cause := context.Cause(ctx); errors.Is(cause, ErrRestart) {
				n.log.Warn().Msg("device.Node.Run restarting")
				return ErrRestart
			}
			return nil
		}
		if !n.conn.Connected() {
			attempt++
			delay := session.NextBackoffDelay(session.DefaultBackoff(), attempt, nil)
			if err := n.conn.Connect(ctx); err != nil {
				n.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("device.Node.Run reconnect failed")
				n.sleep(ctx, delay)
				continue
			}
			attempt = 0
		}
		if n.Step(ctx) == OutcomeIdle {
			n.sleep(ctx, n.cfg.PollInterval)
		}
	}
}

// Step runs the loop functions once and polls the engine once.
func (n *Node) Step(ctx context.Context) Outcome {
	for _, fn := range n.loops {
		fn(ctx)
	}
	if n.engine == nil {
		return OutcomeIdle
	}
	return n.engine.Poll(ctx)
}

// SafeDelay waits for d while continuing to run loop functions and serve
// packets. Called from a handler, packets served meanwhile decode into their
// own arena, so the caller's argv stays intact.
func (n *Node) SafeDelay(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.Step(ctx) == OutcomeIdle {
			n.sleep(ctx, min(n.cfg.PollInterval, left))
		}
	}
}

func (n *Node) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (n *Node) requestRestart() {
	n.mu.Lock()
	cancel := n.restart
	n.mu.Unlock()
	if cancel != nil {
		cancel(ErrRestart)
	}
}

// SendLog mirrors msg to the controller as a LOG message. Before setup it
// only reaches the local logger.
func (n *Node) SendLog(msg string) {
	if n.remote == nil {
		n.log.Info().Str("line", msg).Msg("device.log")
		return
	}
	n.remote.Log(msg)
}

// SendTCP sends one framed message over the controller stream.
func (n *Node) SendTCP(ctx context.Context, typ protocol.MessageType, payload []byte, argc uint8) error {
	if n.link == nil {
		return transport.ErrNotConnected
	}
	_, err := n.link.SendTCP(ctx, typ, payload, argc)
	return err
}

// SendUDP sends one framed message as a datagram.
func (n *Node) SendUDP(ctx context.Context, typ protocol.MessageType, payload []byte, argc uint8) error {
	if n.link == nil {
		return transport.ErrNotConnected
	}
	_, err := n.link.SendUDP(ctx, typ, payload, argc)
	return err
}

// SendName replies with "<device_name>_<device_id>".
func (n *Node) SendName(ctx context.Context) error {
	return n.SendTCP(ctx, protocol.MsgSendName, []byte(n.cfg.Identity()), 1)
}

// SendCommands sends one SEND_COMMAND description per live command.
func (n *Node) SendCommands(ctx context.Context) error {
	descs, err := n.EncodedCommands()
	if err != nil {
		return err
	}
	for _, d := range descs {
		if err := n.SendTCP(ctx, protocol.MsgSendCommand, d.Payload, d.ArgCount); err != nil {
			return fmt.Errorf("send description %d: %w", d.ID, err)
		}
	}
	return nil
}

// EncodedCommands returns the SEND_COMMAND payloads SendCommands would send.
func (n *Node) EncodedCommands() ([]command.Encoded, error) {
	return n.registry.DescribeAll()
}

func (n *Node) publishCommands() {
	descs := n.registry.Describe()
	n.commands.Store(&descs)
}

// Status implements server.Source.
func (n *Node) Status() server.Status {
	st := server.Status{
		Device:          n.cfg.Identity(),
		FirmwareVersion: n.cfg.FirmwareVersion,
		UDP:             n.cfg.UseUDP,
		NextPacketID:    n.codec.NextID(),
	}
	if n.ready.Load() {
		st.Connected = n.conn.Connected()
		st.Started = n.started
	}
	return st
}

// Commands implements server.Source with the snapshot taken at the last
// registration.
func (n *Node) Commands() []schema.Description {
	if p := n.commands.Load(); p != nil {
		return *p
	}
	return nil
}

func (n *Node) Resends() []session.PendingResend {
	return n.ledger.List()
}
