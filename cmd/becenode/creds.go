package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/bece/internal/config"
	"github.com/danmuck/bece/internal/store"
	"github.com/spf13/cobra"
)

func credsCmd(load func() (config.NodeConfig, error)) *cobra.Command {
	open := func() (*store.FileStore, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		return store.NewFileStore(cfg.CredentialsPath), nil
	}

	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage the stored network credentials",
	}

	var c store.Credentials
	set := &cobra.Command{
		Use:   "set",
		Short: "Store Wi-Fi credentials and the controller address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := open()
			if err != nil {
				return err
			}
			if err := fs.Save(c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved credentials to %s\n", fs.Path())
			return nil
		},
	}
	set.Flags().StringVar(&c.SSID, "ssid", "", "network name")
	set.Flags().StringVar(&c.Password, "password", "", "network password")
	set.Flags().StringVar(&c.ServerAddr, "server", "", "controller host or IP")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored credentials with the password masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := open()
			if err != nil {
				return err
			}
			got, err := fs.Load()
			if errors.Is(err, store.ErrNotProvisioned) {
				fmt.Fprintln(cmd.OutOrStdout(), "not provisioned")
				return nil
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ssid:     %s\n", got.SSID)
			fmt.Fprintf(out, "password: %s\n", mask(got.Password))
			fmt.Fprintf(out, "server:   %s\n", got.ServerAddr)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := open()
			if err != nil {
				return err
			}
			if err := fs.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "credentials cleared")
			return nil
		},
	}

	cmd.AddCommand(set, show, clearCmd)
	return cmd
}

func mask(s string) string {
	if s == "" {
		return "(none)"
	}
	return strings.Repeat("*", len(s))
}
