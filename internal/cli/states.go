package cli

import (
	"github.com/spf13/cobra"

	"planeview/internal/board"
	"planeview/internal/model"
)

func newStatesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "states",
		Short: "Project states (board columns)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List states in board order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.services(true)
			if err != nil {
				return writeErr(cmd, err)
			}
			states, err := svc.board.States(cmd.Context(), svc.workspace, svc.project)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": states})
		},
	})
	cmd.AddCommand(newStatesReorderCmd(app))
	return cmd
}

func newStatesReorderCmd(app *App) *cobra.Command {
	var to int
	cmd := &cobra.Command{
		Use:   "reorder <state-id>",
		Short: "Move a state to another position on the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.services(true)
			if err != nil {
				return writeErr(cmd, err)
			}
			bc := board.Context{Workspace: svc.workspace, Project: svc.project}
			moved, err := svc.board.ReorderStateByID(cmd.Context(), bc, args[0], to)
			if err != nil {
				return writeErr(cmd, err)
			}
			states, err := svc.board.States(cmd.Context(), svc.workspace, svc.project)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": moved,
				"meta": map[string]any{"order": stateIDs(states)},
			})
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "Destination index (0 is the first column)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func stateIDs(states []model.State) []string {
	ids := make([]string, len(states))
	for i, st := range states {
		ids[i] = st.ID
	}
	return ids
}
