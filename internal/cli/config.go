package cli

import (
	"github.com/spf13/cobra"

	"planeview/internal/store"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Global config (~/.planeview/config.json)",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigSetCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show config (api key redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := store.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": app.cfg.Redacted(),
				"meta": map[string]any{"path": path},
			})
		},
	}
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a config key (empty value clears it)",
		Args:      cobra.ExactArgs(2),
		ValidArgs: store.ConfigKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.cfg.Set(args[0], args[1]); err != nil {
				return writeErr(cmd, err)
			}
			if err := store.SaveConfig(app.cfg); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": app.cfg.Redacted()})
		},
	}
}
