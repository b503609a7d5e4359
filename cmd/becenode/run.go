package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/danmuck/bece/internal/config"
	"github.com/danmuck/bece/internal/device"
	"github.com/danmuck/bece/internal/logging"
	"github.com/danmuck/bece/internal/server"
	"github.com/danmuck/bece/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runCmd(load func() (config.NodeConfig, error)) *cobra.Command {
	var (
		demo  bool
		admin string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the controller and serve commands until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if admin != "" {
				cfg.AdminAddr = admin
			}
			logging.SetLevel(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return supervise(ctx, cfg, demo)
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "register the demo command set")
	cmd.Flags().StringVar(&admin, "admin", "", "admin HTTP listen address (overrides admin_addr)")
	return cmd
}

// supervise runs the node and starts a fresh one whenever the Restart
// built-in fires.
func supervise(ctx context.Context, cfg config.NodeConfig, demo bool) error {
	creds := store.NewFileStore(cfg.CredentialsPath)
	for {
		n, err := buildNode(cfg, creds, demo)
		if err != nil {
			return err
		}
		err = runOnce(ctx, cfg, n)
		if errors.Is(err, device.ErrRestart) {
			log.Warn().Str("node", cfg.Identity()).Msg("becenode restarting")
			continue
		}
		return err
	}
}

func buildNode(cfg config.NodeConfig, creds store.Store, demo bool) (*device.Node, error) {
	n, err := device.New(device.Options{Config: cfg, Store: creds})
	if err != nil {
		return nil, err
	}
	if demo {
		if err := registerDemo(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func runOnce(ctx context.Context, cfg config.NodeConfig, n *device.Node) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var adminErr chan error
	if cfg.AdminAddr != "" {
		adminErr = make(chan error, 1)
		go func() {
			adminErr <- server.New(cfg.Identity(), n).Serve(ctx, cfg.AdminAddr)
		}()
	}
	runErr := make(chan error, 1)
	go func() { runErr <- n.Run(ctx) }()

	var err error
	select {
	case err = <-runErr:
		cancel()
		if adminErr != nil {
			if aerr := <-adminErr; aerr != nil {
				log.Warn().Err(aerr).Msg("becenode admin server stopped")
			}
		}
	case err = <-adminErr:
		cancel()
		if rerr := <-runErr; err == nil {
			err = rerr
		}
	}
	return err
}
