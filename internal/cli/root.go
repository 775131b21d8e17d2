package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"planeview/internal/api"
	"planeview/internal/board"
	"planeview/internal/format"
	"planeview/internal/projectissues"
	"planeview/internal/registry"
	"planeview/internal/store"
	"planeview/internal/viewfilters"
	"planeview/internal/viewissues"
)

type App struct {
	Dir        string
	Workspace  string
	Project    string
	APIURL     string
	APIKey     string
	PrettyJSON bool
	Format     formatValue
	LogLevel   string

	cfg *store.GlobalConfig
	log *logrus.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{Format: formatValue(format.JSON)}

	cmd := &cobra.Command{
		Use:          "planeview",
		Short:        "Project view issues: grouping, quick add and board moves",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Point at a server once
  planeview config set apiUrl https://plane.example.com
  planeview config set apiKey plane_api_...

  # Show a view grouped by priority
  planeview --workspace acme --project web views show <view-id> --group-by priority

  # Ids of one group, from the local cache
  planeview views show <view-id> --group high --offline
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := store.LoadConfig()
		if err != nil {
			return writeErr(cmd, err)
		}
		app.cfg = cfg
		level := app.LogLevel
		if level == "" {
			level = cfg.LogLevel
		}
		log, err := newLogger(cmd, level)
		if err != nil {
			return writeErr(cmd, err)
		}
		app.log = log
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("PLANEVIEW_DIR", ""), "Local cache dir (default: nearest .planeview dir, else the config dir)")
	cmd.PersistentFlags().StringVar(&app.Workspace, "workspace", envOr("PLANEVIEW_WORKSPACE", ""), "Workspace slug (default: currentWorkspace from config)")
	cmd.PersistentFlags().StringVar(&app.Project, "project", envOr("PLANEVIEW_PROJECT", ""), "Project id (default: currentProject from config)")
	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", envOr("PLANEVIEW_API_URL", ""), "Server base URL (default: apiUrl from config)")
	cmd.PersistentFlags().StringVar(&app.APIKey, "api-key", envOr("PLANEVIEW_API_KEY", ""), "API key (default: apiKey from config)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print output")
	cmd.PersistentFlags().Var(&app.Format, "format", "Output format (json|edn|yaml)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("PLANEVIEW_LOG_LEVEL", ""), "Log level (debug|info|warn|error; default warn)")
	if v := os.Getenv("PLANEVIEW_FORMAT"); v != "" {
		_ = app.Format.Set(v)
	}

	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newViewsCmd(app))
	cmd.AddCommand(newIssuesCmd(app))
	cmd.AddCommand(newStatesCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

func newLogger(cmd *cobra.Command, level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(logrus.WarnLevel)
	if strings.TrimSpace(level) != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		log.SetLevel(lvl)
	}
	return log, nil
}

func (app *App) logger(component string) *logrus.Entry {
	return app.log.WithField("component", component)
}

// resolveProject resolves workspace and project: flags first, then config.
func (app *App) resolveProject() (workspace, project string, err error) {
	workspace, project = app.Workspace, app.Project
	if workspace == "" {
		workspace = app.cfg.CurrentWorkspace
	}
	if project == "" {
		project = app.cfg.CurrentProject
	}
	if workspace == "" {
		return "", "", errors.New("no workspace; pass --workspace or run `planeview config set currentWorkspace <slug>`")
	}
	if project == "" {
		return "", "", errors.New("no project; pass --project or run `planeview config set currentProject <id>`")
	}
	return workspace, project, nil
}

func (app *App) store() (store.Store, error) {
	dir := app.Dir
	if dir == "" {
		d, err := store.DefaultDir()
		if err != nil {
			return store.Store{}, err
		}
		dir = d
	}
	return store.Store{Dir: dir}, nil
}

func (app *App) client() (*api.Client, error) {
	url := app.APIURL
	if url == "" {
		url = app.cfg.APIURL
	}
	if url == "" {
		return nil, errors.New("no api url; pass --api-url or run `planeview config set apiUrl <url>`")
	}
	key := app.APIKey
	if key == "" {
		key = app.cfg.APIKey
	}
	return api.New(url, key,
		api.WithRateLimit(app.cfg.RateLimitPerMinute),
		api.WithLogger(app.logger("api")),
	), nil
}

// services is the object graph one command works with.
type services struct {
	workspace string
	project   string
	local     store.Store
	client    *api.Client
	reg       *registry.Registry
	filters   *viewfilters.Store
	issues    *projectissues.Store
	views     *viewissues.Store
	board     *board.Board
}

// services builds the graph for the resolved project. Offline callers may
// run without an API url; they must not touch the network.
func (app *App) services(online bool) (*services, error) {
	ws, project, err := app.resolveProject()
	if err != nil {
		return nil, err
	}
	local, err := app.store()
	if err != nil {
		return nil, err
	}
	client, err := app.client()
	if err != nil && online {
		return nil, err
	}
	reg := registry.New()
	filters := viewfilters.New()
	issues := projectissues.New(client, reg, app.logger("projectissues"))
	views := viewissues.New(viewissues.Deps{
		Lister:   client,
		Mutator:  issues,
		Cycles:   issues,
		Modules:  issues,
		Filters:  filters,
		Registry: reg,
		Log:      app.logger("viewissues"),
	})
	b := board.New(client,
		board.WithRegistry(reg),
		board.WithIssueSource(views),
		board.WithLogger(app.logger("board")),
	)
	return &services{
		workspace: ws,
		project:   project,
		local:     local,
		client:    client,
		reg:       reg,
		filters:   filters,
		issues:    issues,
		views:     views,
		board:     b,
	}, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, format.Format(app.Format), app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
