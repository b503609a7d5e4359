package main

import (
	"encoding/hex"
	"fmt"
	"text/tabwriter"

	"github.com/danmuck/bece/internal/config"
	"github.com/danmuck/bece/internal/device"
	"github.com/spf13/cobra"
)

func describeCmd(load func() (config.NodeConfig, error)) *cobra.Command {
	var (
		demo bool
		raw  bool
	)
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the command descriptions this node would send",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			n, err := device.New(device.Options{Config: cfg})
			if err != nil {
				return err
			}
			if demo {
				if err := registerDemo(n); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tEXTRAS")
			for _, d := range n.Commands() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", d.ID, d.Name, d.Kind, d.Extras)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if !raw {
				return nil
			}
			encoded, err := n.EncodedCommands()
			if err != nil {
				return err
			}
			for _, e := range encoded {
				fmt.Fprintf(cmd.OutOrStdout(), "%d argc=%d %s\n", e.ID, e.ArgCount, hex.EncodeToString(e.Payload))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "include the demo command set")
	cmd.Flags().BoolVar(&raw, "raw", false, "also print each SEND_COMMAND payload as hex")
	return cmd
}
