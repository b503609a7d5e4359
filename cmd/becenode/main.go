package main

import (
	"fmt"
	"os"

	"github.com/danmuck/bece/internal/config"
	"github.com/danmuck/bece/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	logging.ConfigureRuntime()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "becenode: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "becenode",
		Short:         "Run a BECE node on this host",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "node config file (TOML); defaults apply when empty")

	load := func() (config.NodeConfig, error) {
		if configPath == "" {
			return config.DefaultNodeConfig(), nil
		}
		return config.LoadNodeConfig(configPath)
	}

	root.AddCommand(
		runCmd(load),
		credsCmd(load),
		describeCmd(load),
		configCmd(),
	)
	return root
}
