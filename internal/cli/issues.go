package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"planeview/internal/board"
	"planeview/internal/model"
	"planeview/internal/querycache"
)

func newIssuesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "Create, edit and move issues within a view",
	}
	cmd.AddCommand(newIssuesCreateCmd(app))
	cmd.AddCommand(newIssuesUpdateCmd(app))
	cmd.AddCommand(newIssuesRemoveCmd(app, "remove", "Delete an issue and drop it from the view"))
	cmd.AddCommand(newIssuesRemoveCmd(app, "archive", "Archive an issue and drop it from the view"))
	cmd.AddCommand(newIssuesQuickAddCmd(app))
	cmd.AddCommand(newIssuesMoveCmd(app))
	return cmd
}

// issueFlags are the editable issue fields. Only flags the user set end up
// in the patch.
type issueFlags struct {
	name       string
	priority   string
	state      string
	cycle      string
	modules    []string
	assignees  []string
	labels     []string
	startDate  string
	targetDate string
}

func (f *issueFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "Title")
	fs.StringVar(&f.priority, "priority", "", "Priority (urgent|high|medium|low|none)")
	fs.StringVar(&f.state, "state", "", "State id")
	fs.StringVar(&f.cycle, "cycle", "", "Cycle id")
	fs.StringSliceVar(&f.modules, "module", nil, "Module id (repeatable)")
	fs.StringSliceVar(&f.assignees, "assignee", nil, "Assignee id (repeatable)")
	fs.StringSliceVar(&f.labels, "label", nil, "Label id (repeatable)")
	fs.StringVar(&f.startDate, "start-date", "", "Start date (YYYY-MM-DD)")
	fs.StringVar(&f.targetDate, "target-date", "", "Target date (YYYY-MM-DD)")
}

func (f *issueFlags) patch(fs *pflag.FlagSet) (model.IssuePatch, error) {
	var p model.IssuePatch
	if fs.Changed("name") {
		name := strings.TrimSpace(f.name)
		if name == "" {
			return p, errors.New("--name must not be empty")
		}
		p.Name = &name
	}
	if fs.Changed("priority") {
		pr, err := parsePriority(f.priority)
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if fs.Changed("state") {
		p.StateID = &f.state
	}
	if fs.Changed("cycle") {
		p.CycleID = &f.cycle
	}
	if fs.Changed("module") {
		p.ModuleIDs = &f.modules
	}
	if fs.Changed("assignee") {
		p.AssigneeIDs = &f.assignees
	}
	if fs.Changed("label") {
		p.LabelIDs = &f.labels
	}
	if fs.Changed("start-date") {
		p.StartDate = &f.startDate
	}
	if fs.Changed("target-date") {
		p.TargetDate = &f.targetDate
	}
	return p, nil
}

func parsePriority(s string) (model.Priority, error) {
	p := model.Priority(strings.ToLower(strings.TrimSpace(s)))
	for _, x := range model.Priorities {
		if x == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority: %q", s)
}

func newIssuesCreateCmd(app *App) *cobra.Command {
	var fl issueFlags
	cmd := &cobra.Command{
		Use:   "create <view-id>",
		Short: "Create an issue and add it to the view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID := args[0]
			ctx := cmd.Context()
			if !cmd.Flags().Changed("name") {
				return writeErr(cmd, errors.New("--name is required"))
			}
			p, err := fl.patch(cmd.Flags())
			if err != nil {
				return writeErr(cmd, err)
			}
			svc, err := app.services(true)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.loadView(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			created, err := svc.views.Create(ctx, svc.workspace, svc.project, p, viewID)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.saveSnapshot(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": created, "meta": map[string]any{"view": viewID}})
		},
	}
	fl.register(cmd.Flags())
	return cmd
}

func newIssuesUpdateCmd(app *App) *cobra.Command {
	var fl issueFlags
	cmd := &cobra.Command{
		Use:   "update <view-id> <issue-id>",
		Short: "Update issue fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID, issueID := args[0], args[1]
			ctx := cmd.Context()
			p, err := fl.patch(cmd.Flags())
			if err != nil {
				return writeErr(cmd, err)
			}
			if p.IsEmpty() {
				return writeErr(cmd, errors.New("nothing to update; pass at least one field flag"))
			}
			svc, err := app.services(true)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.loadView(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.views.Update(ctx, svc.workspace, svc.project, issueID, p, viewID); err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.saveSnapshot(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			is, _ := svc.reg.Get(issueID)
			return writeOut(cmd, app, map[string]any{"data": is, "meta": map[string]any{"view": viewID}})
		},
	}
	fl.register(cmd.Flags())
	return cmd
}

func newIssuesRemoveCmd(app *App, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <view-id> <issue-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID, issueID := args[0], args[1]
			ctx := cmd.Context()
			svc, err := app.services(true)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.loadView(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			if use == "archive" {
				err = svc.views.Archive(ctx, svc.workspace, svc.project, issueID, viewID)
			} else {
				err = svc.views.Remove(ctx, svc.workspace, svc.project, issueID, viewID)
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.saveSnapshot(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			ids, _ := svc.views.IssueIDsFor(viewID)
			return writeOut(cmd, app, map[string]any{
				"data": ids,
				"meta": map[string]any{"view": viewID, use: issueID},
			})
		},
	}
}

func newIssuesQuickAddCmd(app *App) *cobra.Command {
	var fl issueFlags
	cmd := &cobra.Command{
		Use:   "quick-add <view-id>",
		Short: "Add an issue to the view immediately, then create it on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID := args[0]
			ctx := cmd.Context()
			p, err := fl.patch(cmd.Flags())
			if err != nil {
				return writeErr(cmd, err)
			}
			draft := model.Issue{ID: uuid.NewString()}
			p.Apply(&draft)

			svc, err := app.services(true)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.loadView(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			created, err := svc.views.QuickAdd(ctx, svc.workspace, svc.project, draft, viewID)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := svc.saveSnapshot(ctx, viewID); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": created,
				"meta": map[string]any{"view": viewID, "temp_id": draft.ID},
			})
		},
	}
	fl.register(cmd.Flags())
	return cmd
}

func newIssuesMoveCmd(app *App) *cobra.Command {
	var (
		groupBy         groupByValue
		from, to        string
		cycleID, module string
		viewID          string
	)
	cmd := &cobra.Command{
		Use:   "move <issue-id>",
		Short: "Move an issue to another board column (priority or state name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueID := args[0]
			ctx := cmd.Context()
			if to == "" {
				return writeErr(cmd, errors.New("--to is required"))
			}
			svc, err := app.services(true)
			if err != nil {
				return writeErr(cmd, err)
			}
			if viewID != "" {
				if err := svc.loadView(ctx, viewID); err != nil {
					return writeErr(cmd, err)
				}
			}
			bc := board.Context{Workspace: svc.workspace, Project: svc.project, CycleID: cycleID, ModuleID: module}
			key := querycache.ProjectIssues(svc.workspace, svc.project)
			list, err := svc.board.Issues(ctx, bc, key)
			if err != nil {
				return writeErr(cmd, err)
			}
			svc.reg.AddIssues(list...)
			if from == "" {
				from = currentGroup(svc, issueID, model.GroupBy(groupBy))
			}
			if err := svc.board.MoveIssue(ctx, bc, issueID, model.GroupBy(groupBy), from, to); err != nil {
				return writeErr(cmd, err)
			}
			if viewID != "" {
				if err := svc.saveSnapshot(ctx, viewID); err != nil {
					return writeErr(cmd, err)
				}
			}
			is, _ := svc.reg.Get(issueID)
			return writeOut(cmd, app, map[string]any{
				"data": is,
				"meta": map[string]any{"group_by": string(groupBy), "from": from, "to": to},
			})
		},
	}
	groupBy = groupByValue(model.GroupByStateName)
	cmd.Flags().Var(&groupBy, "group-by", "Board grouping (priority|state_detail.name)")
	cmd.Flags().StringVar(&from, "from", "", "Source group (default: the issue's current group)")
	cmd.Flags().StringVar(&to, "to", "", "Destination group")
	cmd.Flags().StringVar(&cycleID, "cycle", "", "Board is scoped to this cycle")
	cmd.Flags().StringVar(&module, "module", "", "Board is scoped to this module")
	cmd.Flags().StringVar(&viewID, "view", "", "Also keep this view's cached issues in sync")
	return cmd
}

func currentGroup(svc *services, issueID string, groupBy model.GroupBy) string {
	is, ok := svc.reg.Get(issueID)
	if !ok {
		return ""
	}
	switch groupBy {
	case model.GroupByPriority:
		if is.Priority == "" {
			return string(model.PriorityNone)
		}
		return string(is.Priority)
	case model.GroupByStateName:
		if is.StateDetail != nil {
			return is.StateDetail.Name
		}
	}
	return ""
}
