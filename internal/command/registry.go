// Package command holds the table of commands a node exposes to its
// controller: fixed built-ins first, then user commands in registration
// order, each with a handler and a UI description.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// DefaultCapacity is the user command table size on deployed nodes.
const DefaultCapacity = 10

var (
	ErrCapacityExceeded = errors.New("command: registry capacity exceeded")
	ErrDuplicateID      = errors.New("command: duplicate id")
	ErrReservedID       = errors.New("command: reserved id")
	ErrInvalidCommand   = errors.New("command: invalid command")
	ErrNilHandler       = errors.New("command: nil handler")
)

// Handler runs a command with the decoded runtime arguments. The slice and
// any string bytes inside it are only valid until the handler returns.
type Handler interface {
	Handle(ctx context.Context, argv []args.Value) error
}

type HandlerFunc func(ctx context.Context, argv []args.Value) error

func (f HandlerFunc) Handle(ctx context.Context, argv []args.Value) error {
	return f(ctx, argv)
}

// Command is one dispatchable entry.
type Command struct {
	Name    string
	ID      uint16
	Kind    schema.UIType
	Extras  []args.Value
	Handler Handler
}

func (c Command) Description() schema.Description {
	return schema.Description{Name: c.Name, ID: c.ID, Kind: c.Kind, Extras: c.Extras}
}

func (c Command) isSentinel() bool {
	return c.ID == protocol.NoCommand && c.Kind == schema.Hidden && c.Handler == nil
}

var sentinel = Command{ID: protocol.NoCommand, Kind: schema.Hidden}

// Registry is a bounded command table. Its capacity is fixed at
// construction; unused user slots hold a sentinel and scans stop there.
// Not safe for concurrent use: the poll loop owns it.
type Registry struct {
	builtins []Command
	users    []Command
	n        int
}

// NewRegistry validates builtins and allocates capacity user slots.
func NewRegistry(builtins []Command, capacity int) (*Registry, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidCommand, capacity)
	}
	r := &Registry{
		builtins: make([]Command, 0, len(builtins)),
		users:    make([]Command, capacity),
	}
	for i := range r.users {
		r.users[i] = sentinel
	}
	for _, c := range builtins {
		if err := validate(c); err != nil {
			return nil, fmt.Errorf("builtin %q: %w", c.Name, err)
		}
		if r.has(c.ID) {
			return nil, fmt.Errorf("builtin %q: %w: %d", c.Name, ErrDuplicateID, c.ID)
		}
		r.builtins = append(r.builtins, c)
	}
	return r, nil
}

// Register appends a user command. Schema faults, reserved or duplicate ids,
// nil handlers and a full table are all rejected with a typed error and the
// command is never described or dispatched.
func (r *Registry) Register(c Command) error {
	err := r.register(c)
	if err != nil {
		log.Error().Err(err).Str("name", c.Name).Uint16("id", c.ID).Msg("command.Registry.Register rejected")
		return err
	}
	log.Debug().Str("name", c.Name).Uint16("id", c.ID).Str("kind", c.Kind.String()).Msg("command.Registry.Register ok")
	return nil
}

func (r *Registry) register(c Command) error {
	if err := validate(c); err != nil {
		return err
	}
	if protocol.IsReserved(c.ID) {
		return fmt.Errorf("%w: %d", ErrReservedID, c.ID)
	}
	if r.has(c.ID) {
		return fmt.Errorf("%w: %d", ErrDuplicateID, c.ID)
	}
	if r.n >= len(r.users) {
		return fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, len(r.users))
	}
	r.users[r.n] = c
	r.n++
	return nil
}

func validate(c Command) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCommand)
	}
	if len(c.Name) > args.MaxStringLen {
		return fmt.Errorf("%w: name too long", ErrInvalidCommand)
	}
	if c.Handler == nil {
		return ErrNilHandler
	}
	if err := schema.ValidateExtras(c.Kind, c.Extras); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return nil
}

func (r *Registry) has(id uint16) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Lookup resolves id with first-match-wins ordering: built-ins before user
// commands, user commands in registration order up to the sentinel.
func (r *Registry) Lookup(id uint16) (Command, bool) {
	for _, c := range r.builtins {
		if c.ID == id {
			return c, true
		}
	}
	for _, c := range r.users {
		if c.isSentinel() {
			break
		}
		if c.ID == id {
			return c, true
		}
	}
	return Command{}, false
}

// Commands lists built-ins then user commands.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.builtins)+r.n)
	out = append(out, r.builtins...)
	return append(out, r.users[:r.n]...)
}

func (r *Registry) Len() int { return len(r.builtins) + r.n }

// Cap is the number of user slots.
func (r *Registry) Cap() int { return len(r.users) }

func (r *Registry) Describe() []schema.Description {
	cmds := r.Commands()
	out := make([]schema.Description, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Description())
	}
	return out
}

// Encoded is one description payload ready for framing.
type Encoded struct {
	ID       uint16
	ArgCount uint8
	Payload  []byte
}

// DescribeAll encodes one SEND_COMMAND payload per live command.
func (r *Registry) DescribeAll() ([]Encoded, error) {
	descs := r.Describe()
	out := make([]Encoded, 0, len(descs))
	for _, d := range descs {
		payload, err := schema.EncodeDescription(d)
		if err != nil {
			return nil, fmt.Errorf("describe %q: %w", d.Name, err)
		}
		out = append(out, Encoded{ID: d.ID, ArgCount: d.ArgCount(), Payload: payload})
	}
	return out, nil
}
