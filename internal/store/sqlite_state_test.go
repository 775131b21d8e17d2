package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"planeview/internal/model"
)

func TestViewFilters_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	if _, ok, err := s.LoadViewFilters(ctx, "acme", "p1", "v1"); err != nil || ok {
		t.Fatalf("expected no saved filters; ok=%v err=%v", ok, err)
	}

	in := model.ViewFilters{
		Applied: map[string]string{"priority": "high,low"},
		Display: model.DisplayFilters{
			Layout:     model.LayoutList,
			SubGroupBy: model.GroupByPriority,
			OrderBy:    model.OrderByNewestCreated,
		},
	}
	if err := s.SaveViewFilters(ctx, "acme", "p1", "v1", in); err != nil {
		t.Fatalf("SaveViewFilters: %v", err)
	}
	got, ok, err := s.LoadViewFilters(ctx, "acme", "p1", "v1")
	if err != nil || !ok {
		t.Fatalf("LoadViewFilters: ok=%v err=%v", ok, err)
	}

	want := in
	want.Display.SubGroupBy = model.GroupByNone
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("roundtrip mismatch:\nwant: %#v\ngot:  %#v", want, got)
	}

	// Other projects don't see it.
	if _, ok, _ := s.LoadViewFilters(ctx, "acme", "p2", "v1"); ok {
		t.Fatalf("filters leaked across projects")
	}
}

func TestViewSnapshot_KeepsOrderAndReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	target := "2024-05-01"
	first := []model.Issue{
		{ID: "i2", Name: "two", Priority: model.PriorityLow, TargetDate: &target},
		{ID: "i1", Name: "one", ModuleIDs: []string{"m1"}},
	}
	before := time.Now().Add(-time.Second)
	if err := s.SaveViewSnapshot(ctx, "acme", "p1", "v1", first); err != nil {
		t.Fatalf("SaveViewSnapshot: %v", err)
	}
	got, fetchedAt, ok, err := s.LoadViewSnapshot(ctx, "acme", "p1", "v1")
	if err != nil || !ok {
		t.Fatalf("LoadViewSnapshot: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0].ID != "i2" || got[1].ID != "i1" {
		t.Fatalf("unexpected order: %#v", got)
	}
	if got[0].TargetDate == nil || *got[0].TargetDate != target {
		t.Fatalf("target date lost: %#v", got[0].TargetDate)
	}
	if fetchedAt.Before(before) {
		t.Fatalf("fetchedAt too early: %v", fetchedAt)
	}

	if err := s.SaveViewSnapshot(ctx, "acme", "p1", "v1", nil); err != nil {
		t.Fatalf("SaveViewSnapshot (empty): %v", err)
	}
	got, _, ok, err = s.LoadViewSnapshot(ctx, "acme", "p1", "v1")
	if err != nil || !ok {
		t.Fatalf("LoadViewSnapshot (empty): ok=%v err=%v", ok, err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %d issues", len(got))
	}
}

func TestViewSnapshot_Missing(t *testing.T) {
	t.Parallel()

	s := Store{Dir: t.TempDir()}
	_, _, ok, err := s.LoadViewSnapshot(context.Background(), "acme", "p1", "nope")
	if err != nil {
		t.Fatalf("LoadViewSnapshot: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot")
	}
}

func TestViewKeyRequired(t *testing.T) {
	t.Parallel()

	s := Store{Dir: t.TempDir()}
	if err := s.SaveViewFilters(context.Background(), "acme", "", "v1", model.ViewFilters{}); err == nil {
		t.Fatalf("expected error for missing project")
	}
}
