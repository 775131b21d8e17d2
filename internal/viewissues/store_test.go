package viewissues

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planeview/internal/grouping"
	"planeview/internal/model"
	"planeview/internal/registry"
	"planeview/internal/viewfilters"
)

type fakeServer struct {
	mu sync.Mutex

	issues    []model.Issue
	listErr   error
	createErr error
	removeErr error
	cycleErr  error
	createdID string

	lists    int
	creates  int
	params   []map[string]string
	cycled   []string
	moduled  [][]string
	loaderAt func()
}

func (f *fakeServer) ListIssues(_ context.Context, _, _ string, params map[string]string) ([]model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	f.params = append(f.params, params)
	if f.loaderAt != nil {
		f.loaderAt()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Issue(nil), f.issues...), nil
}

func (f *fakeServer) CreateIssue(_ context.Context, _, _ string, data model.IssuePatch) (model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return model.Issue{}, f.createErr
	}
	id := f.createdID
	if id == "" {
		id = "srv-1"
	}
	is := model.Issue{ID: id}
	data.Apply(&is)
	f.issues = append(f.issues, is)
	return is, nil
}

func (f *fakeServer) UpdateIssue(context.Context, string, string, string, model.IssuePatch) error {
	return nil
}

func (f *fakeServer) RemoveIssue(_ context.Context, _, _, issueID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	for i, is := range f.issues {
		if is.ID == issueID {
			f.issues = append(f.issues[:i], f.issues[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeServer) ArchiveIssue(context.Context, string, string, string) error {
	return nil
}

func (f *fakeServer) AddIssueToCycle(_ context.Context, _, _, cycleID, issueID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cycleErr != nil {
		return f.cycleErr
	}
	f.cycled = append(f.cycled, cycleID+":"+issueID)
	return nil
}

func (f *fakeServer) ChangeModulesInIssue(_ context.Context, _, _, _ string, add, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moduled = append(f.moduled, add)
	return nil
}

func newStore(t *testing.T, srv *fakeServer) (*Store, *viewfilters.Store) {
	t.Helper()
	filters := viewfilters.New()
	filters.SetActive("acme", "proj", "v1")
	filters.Set("v1", model.ViewFilters{
		Applied: map[string]string{"priority": "high,low"},
		Display: model.DisplayFilters{Layout: model.LayoutList, GroupBy: model.GroupByPriority},
	})
	s := New(Deps{
		Lister:   srv,
		Mutator:  srv,
		Cycles:   srv,
		Modules:  srv,
		Filters:  filters,
		Registry: registry.New(),
	})
	return s, filters
}

func sampleIssues() []model.Issue {
	return []model.Issue{
		{ID: "i1", Name: "one", Priority: model.PriorityHigh, SortOrder: 1},
		{ID: "i2", Name: "two", Priority: model.PriorityLow, SortOrder: 2},
		{ID: "i3", Name: "three", Priority: model.PriorityHigh, SortOrder: 3},
	}
}

func TestFetchGroupsByPriority(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)

	got, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, map[string]string{"priority": "high,low"}, srv.params[0])

	res := s.GroupedIssueIDs()
	require.NotNil(t, res)
	assert.Equal(t, grouping.KindGrouped, res.Kind)
	want := map[string][]string{"high": {"i1", "i3"}, "low": {"i2"}}
	if diff := cmp.Diff(want, res.Groups); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}

	ids, ok := s.IssueIDs("high", "")
	require.True(t, ok)
	assert.Equal(t, []string{"i1", "i3"}, ids)
	assert.Equal(t, model.LoaderNone, s.Loader("v1"))
}

func TestFetchSetsLoaderWhileInFlight(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)

	var seen model.Loader
	srv.loaderAt = func() { seen = s.Loader("v1") }
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderNone, "v1")
	require.NoError(t, err)
	assert.Equal(t, model.LoaderInitial, seen)
	assert.Equal(t, model.LoaderNone, s.Loader("v1"))
}

func TestFetchFailureClearsLoaderAndKeepsList(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	srv.listErr = errors.New("offline")
	_, err = s.Fetch(context.Background(), "acme", "proj", model.LoaderMutation, "v1")
	require.Error(t, err)
	assert.Equal(t, model.LoaderNone, s.Loader("v1"))

	ids, ok := s.IssueIDsFor("v1")
	require.True(t, ok)
	assert.Equal(t, []string{"i1", "i2", "i3"}, ids)
}

func TestGroupedIssueIDsAbsent(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, filters := newStore(t, srv)

	assert.Nil(t, s.GroupedIssueIDs(), "no list yet")

	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	filters.SetActive("acme", "proj", "")
	assert.Nil(t, s.GroupedIssueIDs(), "no active view")

	filters.SetActive("acme", "proj", "v2")
	assert.Nil(t, s.GroupedIssueIDs(), "no display filters")

	_, ok := s.IssueIDs("high", "")
	assert.False(t, ok)
}

func TestIssueIDsFollowsDisplayFilters(t *testing.T) {
	issues := []model.Issue{
		{ID: "i1", Priority: model.PriorityHigh, StateID: "todo", SortOrder: 1},
		{ID: "i2", Priority: model.PriorityLow, StateID: "todo", SortOrder: 2},
		{ID: "i3", Priority: model.PriorityHigh, StateID: "done", SortOrder: 3},
	}
	tests := []struct {
		name       string
		display    model.DisplayFilters
		groupID    string
		subGroupID string
		want       []string
		wantOK     bool
	}{
		{
			name:    "no grouping returns the flat list",
			display: model.DisplayFilters{Layout: model.LayoutList, OrderBy: model.OrderBySortOrder},
			want:    []string{"i1", "i2", "i3"},
			wantOK:  true,
		},
		{
			name:    "no grouping ignores ids",
			display: model.DisplayFilters{Layout: model.LayoutGantt},
			groupID: "high",
			want:    []string{"i1", "i2", "i3"},
			wantOK:  true,
		},
		{
			name:    "calendar without grouping returns every id",
			display: model.DisplayFilters{Layout: model.LayoutCalendar},
			want:    []string{"i1", "i2", "i3"},
			wantOK:  true,
		},
		{
			name:    "group by with group id",
			display: model.DisplayFilters{Layout: model.LayoutList, GroupBy: model.GroupByPriority},
			groupID: "high",
			want:    []string{"i1", "i3"},
			wantOK:  true,
		},
		{
			name:    "group by with unknown group id",
			display: model.DisplayFilters{Layout: model.LayoutList, GroupBy: model.GroupByPriority},
			groupID: "urgent",
		},
		{
			name:    "group by without group id",
			display: model.DisplayFilters{Layout: model.LayoutList, GroupBy: model.GroupByPriority},
		},
		{
			name:       "sub-grouped with both ids",
			display:    model.DisplayFilters{Layout: model.LayoutKanban, GroupBy: model.GroupByPriority, SubGroupBy: model.GroupByState, OrderBy: model.OrderBySortOrder},
			groupID:    "high",
			subGroupID: "todo",
			want:       []string{"i1"},
			wantOK:     true,
		},
		{
			name:    "sub-grouped with group id only",
			display: model.DisplayFilters{Layout: model.LayoutKanban, GroupBy: model.GroupByPriority, SubGroupBy: model.GroupByState, OrderBy: model.OrderBySortOrder},
			groupID: "high",
		},
		{
			name:       "sub-grouped with sub-group id only",
			display:    model.DisplayFilters{Layout: model.LayoutKanban, GroupBy: model.GroupByPriority, SubGroupBy: model.GroupByState, OrderBy: model.OrderBySortOrder},
			subGroupID: "todo",
		},
		{
			name:    "grouping configured on a flat layout",
			display: model.DisplayFilters{Layout: model.LayoutSpreadsheet, GroupBy: model.GroupByPriority},
			groupID: "high",
		},
		{
			name:    "kanban grouping without an order",
			display: model.DisplayFilters{Layout: model.LayoutKanban, GroupBy: model.GroupByPriority},
			groupID: "high",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, filters := newStore(t, &fakeServer{})
			filters.Set("v1", model.ViewFilters{Display: tt.display})
			s.Restore("v1", issues)

			got, ok := s.IssueIDs(tt.groupID, tt.subGroupID)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no active view", func(t *testing.T) {
		s, filters := newStore(t, &fakeServer{})
		s.Restore("v1", issues)
		filters.SetActive("acme", "proj", "")
		_, ok := s.IssueIDs("high", "")
		assert.False(t, ok)
	})
}

func TestIssueIDsReturnsACopy(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	ids, ok := s.IssueIDs("high", "")
	require.True(t, ok)
	ids[0] = "changed"

	again, ok := s.IssueIDs("high", "")
	require.True(t, ok)
	assert.Equal(t, []string{"i1", "i3"}, again)
	assert.Equal(t, []string{"i1", "i3"}, s.GroupedIssueIDs().Groups["high"])
}

func TestGroupedIssueIDsMemoized(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, filters := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	first := s.GroupedIssueIDs()
	assert.Same(t, first, s.GroupedIssueIDs())

	// registry change
	s.Registry().Update("i2", func(is *model.Issue) { is.Priority = model.PriorityHigh })
	second := s.GroupedIssueIDs()
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"i1", "i2", "i3"}, second.Groups["high"])

	// display filter change
	filters.Set("v1", model.ViewFilters{Display: model.DisplayFilters{Layout: model.LayoutList}})
	third := s.GroupedIssueIDs()
	assert.Equal(t, grouping.KindFlat, third.Kind)
	assert.Equal(t, []string{"i1", "i2", "i3"}, third.Flat)
}

func TestArchivedIssuesAreHidden(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	s.Registry().Update("i3", func(is *model.Issue) {
		at := is.CreatedAt
		is.ArchivedAt = &at
	})
	assert.Equal(t, []string{"i1"}, s.GroupedIssueIDs().Groups["high"])
}

func TestQuickAddReplacesTemporaryID(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues(), createdID: "srv-9"}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	tmp := model.Issue{ID: "tmp-1", Name: "Hello", Priority: model.PriorityHigh, CycleID: "c1", ModuleIDs: []string{"m1"}}
	created, err := s.QuickAdd(context.Background(), "acme", "proj", tmp, "v1")
	require.NoError(t, err)
	assert.Equal(t, "srv-9", created.ID)
	assert.Equal(t, "c1", created.CycleID)
	assert.Equal(t, []string{"m1"}, created.ModuleIDs)

	ids, _ := s.IssueIDsFor("v1")
	assert.Equal(t, []string{"i1", "i2", "i3", "srv-9"}, ids)
	_, ok := s.Registry().Get("tmp-1")
	assert.False(t, ok)
	assert.Equal(t, []string{"c1:srv-9"}, srv.cycled)
	assert.Equal(t, [][]string{{"m1"}}, srv.moduled)
}

func TestQuickAddKeepsRecordWhenServerReusesID(t *testing.T) {
	srv := &fakeServer{createdID: "same"}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	_, err = s.QuickAdd(context.Background(), "acme", "proj", model.Issue{ID: "same", Name: "x"}, "v1")
	require.NoError(t, err)

	ids, _ := s.IssueIDsFor("v1")
	assert.Equal(t, []string{"same"}, ids)
	_, ok := s.Registry().Get("same")
	assert.True(t, ok)
}

func TestQuickAddRejectsBeforeNetwork(t *testing.T) {
	srv := &fakeServer{}
	s, _ := newStore(t, srv)

	_, err := s.QuickAdd(context.Background(), "acme", "proj", model.Issue{ID: "t", Name: "x"}, "")
	require.ErrorIs(t, err, ErrViewIDRequired)

	_, err = s.QuickAdd(context.Background(), "acme", "proj", model.Issue{ID: "t"}, "v1")
	require.ErrorIs(t, err, ErrInvalidIssue)

	_, err = s.QuickAdd(context.Background(), "acme", "proj", model.Issue{ID: "t", Name: "x", Priority: "meh"}, "v1")
	require.ErrorIs(t, err, ErrInvalidIssue)

	assert.Zero(t, srv.creates)
	assert.Zero(t, srv.lists)
	_, ok := s.IssueIDsFor("v1")
	assert.False(t, ok)
}

func TestQuickAddFailureReconciles(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	srv.createErr = errors.New("rejected")
	_, err = s.QuickAdd(context.Background(), "acme", "proj", model.Issue{ID: "tmp", Name: "x"}, "v1")
	require.EqualError(t, err, "rejected")

	ids, _ := s.IssueIDsFor("v1")
	assert.Equal(t, []string{"i1", "i2", "i3"}, ids)
	_, ok := s.Registry().Get("tmp")
	assert.False(t, ok)
	assert.Equal(t, 2, srv.lists)
}

func TestQuickAddCycleFailureReconciles(t *testing.T) {
	srv := &fakeServer{createdID: "srv-2", cycleErr: errors.New("no cycle")}
	s, _ := newStore(t, srv)

	_, err := s.QuickAdd(context.Background(), "acme", "proj", model.Issue{ID: "tmp", Name: "x", CycleID: "c9"}, "v1")
	require.EqualError(t, err, "no cycle")

	// the server did create the issue, so the re-fetch brings it back
	ids, _ := s.IssueIDsFor("v1")
	assert.Equal(t, []string{"srv-2"}, ids)
}

func TestRemoveFailureReconciles(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	srv.removeErr = errors.New("forbidden")
	err = s.Remove(context.Background(), "acme", "proj", "i2", "v1")
	require.EqualError(t, err, "forbidden")
	assert.Equal(t, 2, srv.lists)

	ids, _ := s.IssueIDsFor("v1")
	assert.Equal(t, []string{"i1", "i2", "i3"}, ids)
	assert.Equal(t, model.LoaderNone, s.Loader("v1"))
}

func TestRemoveAndArchive(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)
	_, err := s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
	require.NoError(t, err)

	require.NoError(t, s.Remove(context.Background(), "acme", "proj", "i2", "v1"))
	require.NoError(t, s.Archive(context.Background(), "acme", "proj", "i1", "v1"))

	ids, _ := s.IssueIDsFor("v1")
	assert.Equal(t, []string{"i3"}, ids)
	assert.Equal(t, 1, srv.lists)
}

func TestCreateAppends(t *testing.T) {
	srv := &fakeServer{}
	s, _ := newStore(t, srv)

	name := "New"
	created, err := s.Create(context.Background(), "acme", "proj", model.IssuePatch{Name: &name}, "v1")
	require.NoError(t, err)
	ids, ok := s.IssueIDsFor("v1")
	require.True(t, ok)
	assert.Equal(t, []string{created.ID}, ids)
}

func TestRestoreAndSnapshot(t *testing.T) {
	s, _ := newStore(t, &fakeServer{})
	s.Restore("v1", sampleIssues())

	snap := s.Snapshot("v1")
	require.Len(t, snap, 3)
	assert.Equal(t, "i1", snap[0].ID)
	assert.Equal(t, []string{"i1", "i3"}, s.GroupedIssueIDs().Groups["high"])

	s.Discard("v1")
	assert.Nil(t, s.Snapshot("v1"))
}

func TestConcurrentFetchesSerialize(t *testing.T) {
	srv := &fakeServer{issues: sampleIssues()}
	s, _ := newStore(t, srv)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Fetch(context.Background(), "acme", "proj", model.LoaderInitial, "v1")
			_ = s.GroupedIssueIDs()
		}()
	}
	wg.Wait()

	ids, _ := s.IssueIDsFor("v1")
	assert.Equal(t, []string{"i1", "i2", "i3"}, ids)
	assert.Equal(t, 8, srv.lists)
}
