// Package viewissues keeps the ordered issue ids of each project view and
// derives grouped projections of them on read.
//
// Every operation on a view runs under that view's lock, so a fetch can never
// overwrite the result of a later one. Reads never wait for in-flight network
// calls; they see the last committed list.
package viewissues

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"planeview/internal/grouping"
	"planeview/internal/model"
	"planeview/internal/registry"
)

type IssueLister interface {
	ListIssues(ctx context.Context, workspace, project string, params map[string]string) ([]model.Issue, error)
}

type IssueMutator interface {
	CreateIssue(ctx context.Context, workspace, project string, data model.IssuePatch) (model.Issue, error)
	UpdateIssue(ctx context.Context, workspace, project, issueID string, data model.IssuePatch) error
	RemoveIssue(ctx context.Context, workspace, project, issueID string) error
	ArchiveIssue(ctx context.Context, workspace, project, issueID string) error
}

type CycleLinker interface {
	AddIssueToCycle(ctx context.Context, workspace, project, cycleID, issueID string) error
}

type ModuleLinker interface {
	ChangeModulesInIssue(ctx context.Context, workspace, project, issueID string, add, remove []string) error
}

type FilterProvider interface {
	ActiveViewID() string
	DisplayFilters(viewID string) (model.DisplayFilters, bool)
	AppliedFilters(viewID string) map[string]string
}

type ViewFlags struct {
	EnableQuickAdd      bool `json:"enableQuickAdd"`
	EnableIssueCreation bool `json:"enableIssueCreation"`
	EnableInlineEditing bool `json:"enableInlineEditing"`
}

type Deps struct {
	Lister   IssueLister
	Mutator  IssueMutator
	Cycles   CycleLinker
	Modules  ModuleLinker
	Filters  FilterProvider
	Registry *registry.Registry
	Log      *logrus.Entry
}

type viewState struct {
	op sync.Mutex // serializes operations on the view

	ids     []string
	version uint64
	loader  model.Loader
}

type memoKey struct {
	listVersion     uint64
	registryVersion uint64
	filters         model.DisplayFilters
}

type memoEntry struct {
	key    memoKey
	result *grouping.Result
}

type Store struct {
	lister  IssueLister
	mutator IssueMutator
	cycles  CycleLinker
	modules ModuleLinker
	filters FilterProvider
	reg     *registry.Registry
	log     *logrus.Entry

	mu    sync.Mutex
	views map[string]*viewState
	memo  map[string]memoEntry
}

var validate = validator.New()

func New(d Deps) *Store {
	log := d.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	reg := d.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &Store{
		lister:  d.Lister,
		mutator: d.Mutator,
		cycles:  d.Cycles,
		modules: d.Modules,
		filters: d.Filters,
		reg:     reg,
		log:     log,
		views:   map[string]*viewState{},
		memo:    map[string]memoEntry{},
	}
}

func (s *Store) Registry() *registry.Registry {
	return s.reg
}

func (s *Store) ViewFlags() ViewFlags {
	return ViewFlags{EnableQuickAdd: true, EnableIssueCreation: true, EnableInlineEditing: true}
}

func (s *Store) view(viewID string) *viewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[viewID]
	if !ok {
		v = &viewState{}
		s.views[viewID] = v
	}
	return v
}

func (s *Store) lockView(viewID string) func() {
	v := s.view(viewID)
	v.op.Lock()
	return v.op.Unlock
}

// Loader reports what the view is loading right now.
func (s *Store) Loader(viewID string) model.Loader {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.views[viewID]; ok {
		return v.loader
	}
	return model.LoaderNone
}

// IssueIDsFor returns a copy of the view's id list and whether the view has one.
func (s *Store) IssueIDsFor(viewID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[viewID]
	if !ok || v.ids == nil {
		return nil, false
	}
	return slices.Clone(v.ids), true
}

// Discard forgets a view's list.
func (s *Store) Discard(viewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, viewID)
	delete(s.memo, viewID)
}

func (s *Store) setLoader(viewID string, l model.Loader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.views[viewID]; ok {
		v.loader = l
	}
}

func (s *Store) editIDs(viewID string, fn func([]string) []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[viewID]
	if !ok {
		v = &viewState{}
		s.views[viewID] = v
	}
	next := fn(slices.Clone(v.ids))
	if next == nil {
		next = []string{}
	}
	v.ids = next
	v.version++
}

func (s *Store) appendID(viewID, id string) {
	s.editIDs(viewID, func(ids []string) []string { return append(ids, id) })
}

func (s *Store) removeFirstID(viewID, id string) {
	s.editIDs(viewID, func(ids []string) []string {
		if i := slices.Index(ids, id); i >= 0 {
			return slices.Delete(ids, i, i+1)
		}
		return ids
	})
}

func (s *Store) removeAllIDs(viewID, id string) {
	s.editIDs(viewID, func(ids []string) []string {
		return slices.DeleteFunc(ids, func(x string) bool { return x == id })
	})
}

// Restore installs a previously saved list (e.g. from the local cache) without
// touching the network.
func (s *Store) Restore(viewID string, issues []model.Issue) {
	defer s.lockView(viewID)()
	s.reg.AddIssues(issues...)
	ids := make([]string, 0, len(issues))
	for _, is := range issues {
		ids = append(ids, is.ID)
	}
	s.editIDs(viewID, func([]string) []string { return ids })
}

// Snapshot returns the view's records in list order, archived ones included.
func (s *Store) Snapshot(viewID string) []model.Issue {
	ids, ok := s.IssueIDsFor(viewID)
	if !ok {
		return nil
	}
	return s.reg.GetIssuesByIDs(ids, registry.ScopeAll)
}

// Fetch replaces the view's list with the server's issues for the view's
// applied filters and registers the records.
func (s *Store) Fetch(ctx context.Context, workspace, project string, loadKind model.Loader, viewID string) ([]model.Issue, error) {
	defer s.lockView(viewID)()
	return s.fetchLocked(ctx, workspace, project, loadKind, viewID)
}

func (s *Store) fetchLocked(ctx context.Context, workspace, project string, loadKind model.Loader, viewID string) ([]model.Issue, error) {
	if loadKind == model.LoaderNone {
		loadKind = model.LoaderInitial
	}
	s.setLoader(viewID, loadKind)

	params := s.filters.AppliedFilters(viewID)
	log := s.log.WithFields(logrus.Fields{"view": viewID, "loader": string(loadKind)})
	log.Debug("fetching view issues")

	issues, err := s.lister.ListIssues(ctx, workspace, project, params)
	if err != nil {
		s.setLoader(viewID, model.LoaderNone)
		return nil, err
	}

	s.reg.AddIssues(issues...)
	ids := make([]string, 0, len(issues))
	for _, is := range issues {
		ids = append(ids, is.ID)
	}
	s.editIDs(viewID, func([]string) []string { return ids })
	s.setLoader(viewID, model.LoaderNone)

	log.WithField("count", len(issues)).Debug("fetched view issues")
	return issues, nil
}

// reconcile re-derives the view from the server after a failed mutation.
// It runs even when ctx is already cancelled.
func (s *Store) reconcile(ctx context.Context, workspace, project, viewID string, cause error) {
	s.log.WithError(cause).WithField("view", viewID).Warn("mutation failed; re-fetching view")
	if _, err := s.fetchLocked(context.WithoutCancel(ctx), workspace, project, model.LoaderMutation, viewID); err != nil {
		s.log.WithError(err).WithField("view", viewID).Error("re-fetch after failed mutation failed")
	}
}

func (s *Store) Create(ctx context.Context, workspace, project string, data model.IssuePatch, viewID string) (model.Issue, error) {
	defer s.lockView(viewID)()
	created, err := s.mutator.CreateIssue(ctx, workspace, project, data)
	if err != nil {
		s.reconcile(ctx, workspace, project, viewID, err)
		return model.Issue{}, err
	}
	s.appendID(viewID, created.ID)
	return created, nil
}

func (s *Store) Update(ctx context.Context, workspace, project, issueID string, data model.IssuePatch, viewID string) error {
	defer s.lockView(viewID)()
	if err := s.mutator.UpdateIssue(ctx, workspace, project, issueID, data); err != nil {
		s.reconcile(ctx, workspace, project, viewID, err)
		return err
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, workspace, project, issueID, viewID string) error {
	defer s.lockView(viewID)()
	if err := s.mutator.RemoveIssue(ctx, workspace, project, issueID); err != nil {
		s.reconcile(ctx, workspace, project, viewID, err)
		return err
	}
	s.removeFirstID(viewID, issueID)
	return nil
}

func (s *Store) Archive(ctx context.Context, workspace, project, issueID, viewID string) error {
	defer s.lockView(viewID)()
	if err := s.mutator.ArchiveIssue(ctx, workspace, project, issueID); err != nil {
		s.reconcile(ctx, workspace, project, viewID, err)
		return err
	}
	s.removeAllIDs(viewID, issueID)
	return nil
}

// QuickAdd shows issue in the view immediately under its temporary id, then
// creates it for real and swaps the temporary entry for the server's record.
// Cycle and module links in issue are applied after creation.
func (s *Store) QuickAdd(ctx context.Context, workspace, project string, issue model.Issue, viewID string) (model.Issue, error) {
	if strings.TrimSpace(viewID) == "" {
		return model.Issue{}, ErrViewIDRequired
	}
	if err := validate.Struct(issue); err != nil {
		return model.Issue{}, fmt.Errorf("%w: %v", ErrInvalidIssue, err)
	}

	defer s.lockView(viewID)()

	tempID := issue.ID
	s.appendID(viewID, tempID)
	s.reg.AddIssues(issue)

	payload := model.PatchFromIssue(issue)
	payload.CycleID = nil
	payload.ModuleIDs = nil

	created, err := s.mutator.CreateIssue(ctx, workspace, project, payload)
	if err != nil {
		s.reg.RemoveIssue(tempID)
		s.reconcile(ctx, workspace, project, viewID, err)
		return model.Issue{}, err
	}
	s.appendID(viewID, created.ID)

	s.removeFirstID(viewID, tempID)
	if created.ID != tempID {
		s.reg.RemoveIssue(tempID)
	}

	if issue.CycleID != "" {
		if err := s.cycles.AddIssueToCycle(ctx, workspace, project, issue.CycleID, created.ID); err != nil {
			s.reconcile(ctx, workspace, project, viewID, err)
			return model.Issue{}, err
		}
		created.CycleID = issue.CycleID
	}
	if len(issue.ModuleIDs) > 0 {
		if err := s.modules.ChangeModulesInIssue(ctx, workspace, project, created.ID, issue.ModuleIDs, nil); err != nil {
			s.reconcile(ctx, workspace, project, viewID, err)
			return model.Issue{}, err
		}
		created.ModuleIDs = slices.Clone(issue.ModuleIDs)
	}
	return created, nil
}

// GroupedIssueIDs derives the projection of the active view. It returns nil
// when there is no active view, no display filters or no list for the view.
func (s *Store) GroupedIssueIDs() *grouping.Result {
	viewID := s.filters.ActiveViewID()
	if viewID == "" {
		return nil
	}
	return s.GroupedIssueIDsFor(viewID)
}

func (s *Store) GroupedIssueIDsFor(viewID string) *grouping.Result {
	df, ok := s.filters.DisplayFilters(viewID)
	if !ok {
		return nil
	}
	df = df.Normalized()

	s.mu.Lock()
	v, ok := s.views[viewID]
	if !ok || v.ids == nil {
		s.mu.Unlock()
		return nil
	}
	ids := slices.Clone(v.ids)
	key := memoKey{listVersion: v.version, registryVersion: s.reg.Version(), filters: df}
	if m, ok := s.memo[viewID]; ok && m.key == key {
		s.mu.Unlock()
		return m.result
	}
	s.mu.Unlock()

	issues := s.reg.GetIssuesByIDs(ids, registry.ScopeUnarchived)
	res := grouping.Derive(df, issues)

	s.mu.Lock()
	s.memo[viewID] = memoEntry{key: key, result: res}
	s.mu.Unlock()
	return res
}

// IssueIDs looks up a bucket of the active view's projection, branching on
// the view's group_by and sub_group_by. The returned slice is a copy.
func (s *Store) IssueIDs(groupID, subGroupID string) ([]string, bool) {
	viewID := s.filters.ActiveViewID()
	if viewID == "" {
		return nil, false
	}
	df, ok := s.filters.DisplayFilters(viewID)
	if !ok {
		return nil, false
	}
	return s.GroupedIssueIDsFor(viewID).Select(df, groupID, subGroupID)
}
