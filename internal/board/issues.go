package board

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"planeview/internal/grouping"
	"planeview/internal/model"
	"planeview/internal/querycache"
)

// MoveIssue moves an issue from group from to group to of a board grouped by
// groupBy. Only priority and state name groupings can be moved across.
//
// Cached cycle, module and project issue lists are patched before the server
// is called and re-fetched afterwards, whether or not the patch succeeded.
func (b *Board) MoveIssue(ctx context.Context, bc Context, issueID string, groupBy model.GroupBy, from, to string) error {
	if !bc.valid() || from == to {
		return nil
	}

	var (
		patch model.IssuePatch
		apply func(*model.Issue)
	)
	switch groupBy {
	case model.GroupByPriority:
		p := model.Priority(to)
		if to == grouping.NoneKey {
			p = model.PriorityNone
		}
		if !slices.Contains(model.Priorities, p) {
			return NotFoundError{Kind: "priority", ID: to}
		}
		patch.Priority = &p
		apply = func(is *model.Issue) { is.Priority = p }
	case model.GroupByStateName:
		states, err := b.States(ctx, bc.Workspace, bc.Project)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(states, func(s model.State) bool { return s.Name == to })
		if i < 0 {
			return NotFoundError{Kind: "state", ID: to}
		}
		st := states[i]
		patch.StateID = &st.ID
		apply = func(is *model.Issue) {
			is.StateID = st.ID
			is.StateDetail = st.Detail()
		}
	default:
		return fmt.Errorf("issues grouped by %q cannot be moved", groupBy)
	}

	dragged, _ := b.lookupIssue(bc, issueID)

	for _, key := range b.scopedKeys(bc, model.Issue{}) {
		b.issues.Mutate(key, func(list []model.Issue) []model.Issue {
			out := slices.Clone(list)
			for i := range out {
				if out[i].ID == issueID {
					apply(&out[i])
				}
			}
			return out
		})
	}
	var (
		prev  model.Issue
		known bool
	)
	if b.reg != nil {
		prev, known = b.reg.Update(issueID, apply)
	}

	log := b.log.WithFields(logrus.Fields{"issue": issueID, "group_by": string(groupBy), "to": to})
	_, err := b.svc.PatchIssue(ctx, bc.Workspace, bc.Project, issueID, patch)
	if err != nil {
		log.WithError(err).Error("persisting issue move failed")
		if known {
			b.reg.AddIssues(prev)
		}
	}

	b.revalidate(ctx, bc, b.scopedKeys(bc, dragged))
	return err
}

// scopedKeys lists the cached collections an issue can appear in. The board's
// own cycle and module take precedence over the issue's.
func (b *Board) scopedKeys(bc Context, is model.Issue) []string {
	var keys []string
	cycle := bc.CycleID
	if cycle == "" {
		cycle = is.CycleID
	}
	if cycle != "" {
		keys = append(keys, querycache.CycleIssues(cycle))
	}
	module := bc.ModuleID
	if module == "" && len(is.ModuleIDs) > 0 {
		module = is.ModuleIDs[0]
	}
	if module != "" {
		keys = append(keys, querycache.ModuleIssues(module))
	}
	return append(keys, querycache.ProjectIssues(bc.Workspace, bc.Project))
}

func (b *Board) lookupIssue(bc Context, issueID string) (model.Issue, bool) {
	if b.reg != nil {
		if is, ok := b.reg.Get(issueID); ok {
			return is, true
		}
	}
	for _, key := range b.scopedKeys(bc, model.Issue{}) {
		list, _ := b.issues.Peek(key)
		if i := slices.IndexFunc(list, func(is model.Issue) bool { return is.ID == issueID }); i >= 0 {
			return list[i], true
		}
	}
	return model.Issue{}, false
}

// revalidate re-fetches the collections among keys that were ever loaded.
// Failures are logged and leave the collection stale.
func (b *Board) revalidate(ctx context.Context, bc Context, keys []string) {
	var g errgroup.Group
	rctx := context.WithoutCancel(ctx)
	for _, key := range keys {
		if _, loaded := b.issues.Peek(key); !loaded {
			continue
		}
		key := key
		fetch := b.issueFetcher(bc, key)
		g.Go(func() error {
			_, err := b.issues.Revalidate(rctx, key, fetch)
			if err != nil {
				b.issues.Invalidate(key)
				return fmt.Errorf("revalidate %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.log.WithError(err).Warn("re-fetching issue collections failed")
	}
}

// Issues returns the collection for key, fetching it when needed. key must be
// one of the querycache issue keys for bc.
func (b *Board) Issues(ctx context.Context, bc Context, key string) ([]model.Issue, error) {
	return b.issues.Get(ctx, key, b.issueFetcher(bc, key))
}

func (b *Board) issueFetcher(bc Context, key string) querycache.Fetcher[[]model.Issue] {
	return func(ctx context.Context) ([]model.Issue, error) {
		switch {
		case strings.HasPrefix(key, querycache.CycleIssues("")):
			return b.svc.ListCycleIssues(ctx, bc.Workspace, bc.Project, strings.TrimPrefix(key, querycache.CycleIssues("")))
		case strings.HasPrefix(key, querycache.ModuleIssues("")):
			return b.svc.ListModuleIssues(ctx, bc.Workspace, bc.Project, strings.TrimPrefix(key, querycache.ModuleIssues("")))
		default:
			return b.svc.ListIssues(ctx, bc.Workspace, bc.Project, nil)
		}
	}
}
