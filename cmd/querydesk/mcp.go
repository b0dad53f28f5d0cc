package main

import (
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/querydesk"
	"pkt.systems/querydesk/internal/appconfig"
	"pkt.systems/querydesk/internal/mcptool"
	"pkt.systems/querydesk/internal/version"
)

func newMCPCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask tool over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			components, err := querydesk.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()
			pslog.Ctx(cmd.Context()).Info("mcp server listening", "transport", "stdio")
			s := mcptool.NewServer(version.Current(), components.Pipeline)
			return mcptool.ServeStdio(cmd.Context(), s, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
