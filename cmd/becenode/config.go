package main

import (
	"fmt"

	"github.com/danmuck/bece/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check node config files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a node config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if err := config.WriteTemplate(argv[0], "node", force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote node config template to %s\n", argv[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validate := &cobra.Command{
		Use:   "validate <path>",
		Short: "Load and validate a node config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			cfg, err := config.LoadNodeConfig(argv[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid config for %s\n", cfg.Identity())
			return nil
		},
	}

	cmd.AddCommand(initCmd, validate)
	return cmd
}
