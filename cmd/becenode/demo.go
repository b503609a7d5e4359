package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/bece/internal/command"
	"github.com/danmuck/bece/internal/device"
	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/protocol/schema"
)

// demoCommands is a small set that exercises every UI type a dashboard can
// render. Handlers echo what they received back to the controller log.
func demoCommands(n *device.Node) []command.Command {
	echo := func(name string) command.Handler {
		return command.HandlerFunc(func(_ context.Context, argv []args.Value) error {
			n.SendLog(fmt.Sprintf("%s %v", name, argv))
			return nil
		})
	}
	return []command.Command{
		{Name: "Blink", ID: 1, Kind: schema.Button, Handler: command.HandlerFunc(func(ctx context.Context, _ []args.Value) error {
			n.SendLog("blink on")
			if err := n.SafeDelay(ctx, 500*time.Millisecond); err != nil {
				return err
			}
			n.SendLog("blink off")
			return nil
		})},
		{Name: "Power", ID: 2, Kind: schema.Switch, Handler: echo("Power")},
		{Name: "Brightness", ID: 3, Kind: schema.SliderUint8, Extras: []args.Value{args.Uint8(0), args.Uint8(100)}, Handler: echo("Brightness")},
		{Name: "Color", ID: 4, Kind: schema.Color, Handler: echo("Color")},
		{Name: "Mode", ID: 5, Kind: schema.Dropdown, Extras: []args.Value{args.String("steady"), args.String("pulse"), args.String("rainbow")}, Handler: echo("Mode")},
		{Name: "Label", ID: 6, Kind: schema.String, Handler: echo("Label")},
	}
}

func registerDemo(n *device.Node) error {
	for _, c := range demoCommands(n) {
		if err := n.Register(c); err != nil {
			return fmt.Errorf("register %q: %w", c.Name, err)
		}
	}
	return nil
}
