package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/filemgr/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configJSON is the JSON output schema for `config show --json`.
type configJSON struct {
	Path   string         `json:"path"`
	Config *config.Config `json:"config"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, configJSON{Path: cc.ConfigPath, Config: cc.Cfg})
	}

	return config.RenderEffective(cc.Cfg, cc.ConfigPath, cc.Stdout)
}
