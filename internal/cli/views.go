package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"planeview/internal/model"
	"planeview/internal/publish"
	"planeview/internal/registry"
)

func newViewsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Show project views and manage their filters",
	}
	cmd.AddCommand(newViewsShowCmd(app))
	cmd.AddCommand(newViewsFiltersCmd(app))
	cmd.AddCommand(newViewsExportCmd(app))
	return cmd
}

func newViewsShowCmd(app *App) *cobra.Command {
	var (
		display  displayFlags
		group    string
		subGroup string
		offline  bool
	)
	cmd := &cobra.Command{
		Use:   "show <view-id>",
		Short: "Show a view's issue ids, grouped by its display filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID := args[0]
			ctx := cmd.Context()
			svc, err := app.services(!offline)
			if err != nil {
				return writeErr(cmd, err)
			}
			f, err := svc.activate(ctx, viewID)
			if err != nil {
				return writeErr(cmd, err)
			}
			f.Display = display.apply(cmd.Flags(), f.Display)
			svc.filters.Set(viewID, f)

			source, fetchedAt, err := svc.load(ctx, viewID, offline)
			if err != nil {
				return writeErr(cmd, err)
			}

			res := svc.views.GroupedIssueIDs()
			if res == nil {
				return writeErr(cmd, fmt.Errorf("view %s has no issues loaded", viewID))
			}
			meta := map[string]any{
				"view":       viewID,
				"layout":     string(f.Display.Layout),
				"group_by":   string(f.Display.GroupBy),
				"kind":       res.Kind.String(),
				"source":     source,
				"fetched_at": fetchedAt.Format(time.RFC3339),
			}
			if f.Display.SubGroupBy != "" {
				meta["sub_group_by"] = string(f.Display.SubGroupBy)
			}
			if !cmd.Flags().Changed("group") && !cmd.Flags().Changed("sub-group") {
				return writeOut(cmd, app, map[string]any{"data": res, "meta": meta})
			}
			ids, ok := svc.views.IssueIDs(group, subGroup)
			if !ok {
				return writeErr(cmd, fmt.Errorf("no group %q (sub-group %q) in view %s", group, subGroup, viewID))
			}
			meta["group"] = group
			if subGroup != "" {
				meta["sub_group"] = subGroup
			}
			return writeOut(cmd, app, map[string]any{"data": ids, "meta": meta})
		},
	}
	display.register(cmd.Flags())
	cmd.Flags().StringVar(&group, "group", "", "Only print this group's ids")
	cmd.Flags().StringVar(&subGroup, "sub-group", "", "Only print this sub-group's ids (with --group)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the locally cached issues instead of the server")
	return cmd
}

func newViewsExportCmd(app *App) *cobra.Command {
	var (
		display   displayFlags
		toDir     string
		title     string
		overwrite bool
		offline   bool
	)
	cmd := &cobra.Command{
		Use:   "export <view-id>",
		Short: "Write a view as markdown (<to>/views/<view-id>.md)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID := args[0]
			ctx := cmd.Context()
			svc, err := app.services(!offline)
			if err != nil {
				return writeErr(cmd, err)
			}
			f, err := svc.activate(ctx, viewID)
			if err != nil {
				return writeErr(cmd, err)
			}
			f.Display = display.apply(cmd.Flags(), f.Display)
			svc.filters.Set(viewID, f)
			source, _, err := svc.load(ctx, viewID, offline)
			if err != nil {
				return writeErr(cmd, err)
			}

			res := svc.views.GroupedIssueIDs()
			if res == nil {
				return writeErr(cmd, fmt.Errorf("view %s has no issues loaded", viewID))
			}
			v := publish.NewView(viewID, f.Display, res, svc.reg.GetIssuesByIDs(res.IssueIDs(), registry.ScopeUnarchived))
			v.Title = title
			out, err := publish.WriteView(v, toDir, publish.WriteOptions{Overwrite: overwrite})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": out,
				"meta": map[string]any{"view": viewID, "source": source},
			})
		},
	}
	display.register(cmd.Flags())
	cmd.Flags().StringVar(&toDir, "to", "", "Output directory")
	cmd.Flags().StringVar(&title, "title", "", "Page title (default: View <view-id>)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the locally cached issues instead of the server")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newViewsFiltersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Saved view filters (query params and display filters)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <view-id>",
		Short: "Show a view's saved filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.services(false)
			if err != nil {
				return writeErr(cmd, err)
			}
			f, ok, err := svc.local.LoadViewFilters(cmd.Context(), svc.workspace, svc.project, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if !ok {
				f = defaultViewFilters()
			}
			return writeOut(cmd, app, map[string]any{
				"data": f,
				"meta": map[string]any{"view": args[0], "saved": ok},
			})
		},
	})
	cmd.AddCommand(newViewsFiltersSetCmd(app))
	return cmd
}

func newViewsFiltersSetCmd(app *App) *cobra.Command {
	var (
		display     displayFlags
		params      map[string]string
		clearParams bool
	)
	cmd := &cobra.Command{
		Use:   "set <view-id>",
		Short: "Update a view's saved filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID := args[0]
			ctx := cmd.Context()
			svc, err := app.services(false)
			if err != nil {
				return writeErr(cmd, err)
			}
			f, ok, err := svc.local.LoadViewFilters(ctx, svc.workspace, svc.project, viewID)
			if err != nil {
				return writeErr(cmd, err)
			}
			if !ok {
				f = defaultViewFilters()
			}
			f.Display = display.apply(cmd.Flags(), f.Display)
			if clearParams {
				f.Applied = nil
			}
			for k, v := range params {
				if f.Applied == nil {
					f.Applied = map[string]string{}
				}
				if v == "" {
					delete(f.Applied, k)
					continue
				}
				f.Applied[k] = v
			}
			if err := svc.local.SaveViewFilters(ctx, svc.workspace, svc.project, viewID, f); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": f,
				"meta": map[string]any{"view": viewID},
			})
		},
	}
	display.register(cmd.Flags())
	cmd.Flags().StringToStringVar(&params, "param", nil, "Query param sent when listing issues (k=v; empty value removes it)")
	cmd.Flags().BoolVar(&clearParams, "clear-params", false, "Drop all saved query params first")
	return cmd
}

func defaultViewFilters() model.ViewFilters {
	return model.ViewFilters{Display: model.DisplayFilters{Layout: model.LayoutList}}
}

// activate loads the view's saved filters into the filters provider and marks
// the view active. Views without saved filters use the list layout.
func (s *services) activate(ctx context.Context, viewID string) (model.ViewFilters, error) {
	f, ok, err := s.local.LoadViewFilters(ctx, s.workspace, s.project, viewID)
	if err != nil {
		return model.ViewFilters{}, err
	}
	if !ok {
		f = defaultViewFilters()
	}
	s.filters.SetActive(s.workspace, s.project, viewID)
	s.filters.Set(viewID, f)
	return f, nil
}

// loadView activates the view and installs its issue list: the local
// snapshot when there is one, otherwise a fresh fetch.
func (s *services) loadView(ctx context.Context, viewID string) error {
	if _, err := s.activate(ctx, viewID); err != nil {
		return err
	}
	issues, _, ok, err := s.local.LoadViewSnapshot(ctx, s.workspace, s.project, viewID)
	if err != nil {
		return err
	}
	if ok {
		s.views.Restore(viewID, issues)
		return nil
	}
	_, err = s.views.Fetch(ctx, s.workspace, s.project, model.LoaderInitial, viewID)
	return err
}

// load installs the view's issue list for reading: from the local snapshot
// when offline, otherwise from the server (saving a fresh snapshot).
func (s *services) load(ctx context.Context, viewID string, offline bool) (source string, fetchedAt time.Time, err error) {
	if offline {
		issues, at, ok, err := s.local.LoadViewSnapshot(ctx, s.workspace, s.project, viewID)
		if err != nil {
			return "", time.Time{}, err
		}
		if !ok {
			return "", time.Time{}, fmt.Errorf("no cached issues for view %s; run without --offline first", viewID)
		}
		s.views.Restore(viewID, issues)
		return "cache", at, nil
	}
	if _, err := s.views.Fetch(ctx, s.workspace, s.project, model.LoaderInitial, viewID); err != nil {
		return "", time.Time{}, err
	}
	if err := s.saveSnapshot(ctx, viewID); err != nil {
		return "", time.Time{}, err
	}
	return "server", time.Now().UTC(), nil
}

func (s *services) saveSnapshot(ctx context.Context, viewID string) error {
	if _, ok := s.views.IssueIDsFor(viewID); !ok {
		return errors.New("view has no issue list to save")
	}
	return s.local.SaveViewSnapshot(ctx, s.workspace, s.project, viewID, s.views.Snapshot(viewID))
}
