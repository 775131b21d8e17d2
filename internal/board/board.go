// Package board implements drag-and-drop on issue boards: reordering state
// columns and moving issues between groups.
//
// Both operations update cached collections first and then persist. State
// reordering is not rolled back when the server rejects it; the cached state
// list is marked stale instead.
package board

import (
	"context"
	"io"
	"slices"

	"github.com/sirupsen/logrus"

	"planeview/internal/api"
	"planeview/internal/model"
	"planeview/internal/querycache"
	"planeview/internal/registry"
)

type Service interface {
	ListStates(ctx context.Context, workspace, project string) ([]model.State, error)
	PatchState(ctx context.Context, workspace, project, stateID string, data api.StatePatch) (model.State, error)
	ListIssues(ctx context.Context, workspace, project string, params map[string]string) ([]model.Issue, error)
	PatchIssue(ctx context.Context, workspace, project, issueID string, data model.IssuePatch) (model.Issue, error)
	ListCycleIssues(ctx context.Context, workspace, project, cycleID string) ([]model.Issue, error)
	ListModuleIssues(ctx context.Context, workspace, project, moduleID string) ([]model.Issue, error)
}

// IssueSource resolves the issues shown in a group, in display order.
type IssueSource interface {
	IssueIDs(groupID, subGroupID string) ([]string, bool)
}

// Context is where the board is shown. CycleID and ModuleID are set when the
// board is scoped to a cycle or module.
type Context struct {
	Workspace string
	Project   string
	CycleID   string
	ModuleID  string
}

func (c Context) valid() bool {
	return c.Workspace != "" && c.Project != ""
}

type DragKind int

const (
	DragIssue DragKind = iota
	DragState
)

type Location struct {
	GroupID string
	Index   int
}

// DropResult describes a finished drag. Destination is nil when the item was
// dropped outside any target.
type DropResult struct {
	Kind        DragKind
	Source      Location
	Destination *Location
}

type Board struct {
	svc    Service
	source IssueSource
	reg    *registry.Registry
	states *querycache.Cache[[]model.State]
	issues *querycache.Cache[[]model.Issue]
	log    *logrus.Entry
}

type Option func(*Board)

// WithIssueSource sets where DropResult issue indexes are resolved.
func WithIssueSource(src IssueSource) Option {
	return func(b *Board) { b.source = src }
}

// WithRegistry keeps reg in step with issue moves.
func WithRegistry(reg *registry.Registry) Option {
	return func(b *Board) { b.reg = reg }
}

func WithLogger(log *logrus.Entry) Option {
	return func(b *Board) { b.log = log }
}

func WithCaches(states *querycache.Cache[[]model.State], issues *querycache.Cache[[]model.Issue]) Option {
	return func(b *Board) {
		if states != nil {
			b.states = states
		}
		if issues != nil {
			b.issues = issues
		}
	}
}

func New(svc Service, opts ...Option) *Board {
	b := &Board{
		svc:    svc,
		states: querycache.New[[]model.State](),
		issues: querycache.New[[]model.Issue](),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		b.log = logrus.NewEntry(l)
	}
	return b
}

func (b *Board) StateCache() *querycache.Cache[[]model.State] { return b.states }
func (b *Board) IssueCache() *querycache.Cache[[]model.Issue] { return b.issues }

// OnDragEnd applies a finished drag. Drops without a destination or without
// a workspace and project are ignored.
func (b *Board) OnDragEnd(ctx context.Context, bc Context, r DropResult, groupBy model.GroupBy) error {
	if r.Destination == nil || !bc.valid() {
		return nil
	}
	if r.Kind == DragState {
		_, err := b.ReorderState(ctx, bc, r.Source.Index, r.Destination.Index)
		return err
	}
	if r.Source.GroupID == r.Destination.GroupID {
		return nil
	}
	if b.source == nil {
		return NotFoundError{Kind: "group", ID: r.Source.GroupID}
	}
	ids, ok := b.source.IssueIDs(r.Source.GroupID, "")
	if !ok {
		return NotFoundError{Kind: "group", ID: r.Source.GroupID}
	}
	if r.Source.Index < 0 || r.Source.Index >= len(ids) {
		return IndexError{Index: r.Source.Index, Len: len(ids)}
	}
	return b.MoveIssue(ctx, bc, ids[r.Source.Index], groupBy, r.Source.GroupID, r.Destination.GroupID)
}

// States returns the project's states ordered by sequence.
func (b *Board) States(ctx context.Context, workspace, project string) ([]model.State, error) {
	states, err := b.states.Get(ctx, querycache.StateList(workspace, project), b.fetchStates(workspace, project))
	if err != nil {
		return nil, err
	}
	return slices.Clone(states), nil
}

func (b *Board) fetchStates(workspace, project string) querycache.Fetcher[[]model.State] {
	return func(ctx context.Context) ([]model.State, error) {
		states, err := b.svc.ListStates(ctx, workspace, project)
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(states, func(x, y model.State) int {
			switch {
			case x.Sequence < y.Sequence:
				return -1
			case x.Sequence > y.Sequence:
				return 1
			}
			return 0
		})
		return states, nil
	}
}
