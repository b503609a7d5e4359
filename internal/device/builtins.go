package device

import (
	"context"

	"github.com/danmuck/bece/internal/command"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/protocol/schema"
)

// builtins returns the fixed command table every node carries, in
// description order.
func (n *Node) builtins() []command.Command {
	return []command.Command{
		{
			Name: "Restart",
			ID:   protocol.CmdRestart,
			Kind: schema.StrongButton,
			Handler: command.HandlerFunc(func(ctx context.Context, _ []args.Value) error {
				return n.system.Restart(ctx)
			}),
		},
		{
			Name: "Update",
			ID:   protocol.CmdUpdate,
			Kind: schema.StrongButton,
			Handler: command.HandlerFunc(func(ctx context.Context, _ []args.Value) error {
				return n.system.Update(ctx)
			}),
		},
		{
			Name: "Send Commands",
			ID:   protocol.CmdSendCommands,
			Kind: schema.Hidden,
			Handler: command.HandlerFunc(func(ctx context.Context, _ []args.Value) error {
				return n.SendCommands(ctx)
			}),
		},
		{
			Name: "Send Name",
			ID:   protocol.CmdSendName,
			Kind: schema.Hidden,
			Handler: command.HandlerFunc(func(ctx context.Context, _ []args.Value) error {
				return n.SendName(ctx)
			}),
		},
		{
			Name: "Factory Reset",
			ID:   protocol.CmdFactoryReset,
			Kind: schema.StrongButton,
			Handler: command.HandlerFunc(func(ctx context.Context, _ []args.Value) error {
				return n.system.FactoryReset(ctx)
			}),
		},
	}
}
