package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"planeview/internal/devserver"
	"planeview/internal/model"
)

func newServeCmd(app *App) *cobra.Command {
	var (
		addr string
		seed bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory API server for local use and tests",
		Long: strings.TrimSpace(`
Run an in-memory server speaking the same REST API the other commands use.
Data lives only as long as the process. With --seed the current project gets
default states and a few issues.
`),
		Example: strings.TrimSpace(`
# Serve on localhost and point the CLI at it
planeview serve --addr 127.0.0.1:8787 --seed --workspace acme --project web
planeview config set apiUrl http://127.0.0.1:8787
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := app.APIKey
			if key == "" {
				key = app.cfg.APIKey
			}
			var opts []devserver.Option
			opts = append(opts, devserver.WithLogger(app.logger("devserver")))
			if key != "" {
				opts = append(opts, devserver.WithAPIKey(key))
			}
			srv := devserver.New(opts...)

			if seed {
				ws, project, err := app.resolveProject()
				if err != nil {
					return writeErr(cmd, err)
				}
				states := devserver.DefaultStates(project)
				srv.Seed(ws, project, states, sampleIssues(states))
			}

			ln, err := net.Listen("tcp", strings.TrimSpace(addr))
			if err != nil {
				return writeErr(cmd, err)
			}
			hs := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"addr":      ln.Addr().String(),
					"seeded":    seed,
					"auth":      key != "",
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "planeview dev server running at http://%s\n", ln.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errc := make(chan error, 1)
			go func() { errc <- hs.Serve(ln) }()

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return writeErr(cmd, err)
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := hs.Shutdown(shutdownCtx); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "Bind address (host:port or :port)")
	cmd.Flags().BoolVar(&seed, "seed", false, "Seed the current project with states and sample issues")
	return cmd
}

func sampleIssues(states []model.State) []model.Issue {
	at := func(i int) string {
		if i < len(states) {
			return states[i].ID
		}
		return ""
	}
	target := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	return []model.Issue{
		{Name: "Set up the project board", Priority: model.PriorityHigh, StateID: at(1), SortOrder: 65535},
		{Name: "Write onboarding notes", Priority: model.PriorityLow, StateID: at(0), SortOrder: 131070},
		{Name: "Fix login redirect", Priority: model.PriorityUrgent, StateID: at(2), SortOrder: 196605, TargetDate: &target},
		{Name: "Clean up old labels", Priority: model.PriorityNone, StateID: at(0), SortOrder: 262140},
	}
}
