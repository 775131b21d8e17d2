package publish

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planeview/internal/grouping"
	"planeview/internal/model"
)

func strPtr(s string) *string { return &s }

func fixture() []model.Issue {
	return []model.Issue{
		{ID: "i1", SequenceID: 1, Name: "Fix login", Priority: model.PriorityUrgent, StateDetail: &model.StateDetail{Name: "Todo"}, TargetDate: strPtr("2024-05-01")},
		{ID: "i2", SequenceID: 2, Name: "Docs", Priority: model.PriorityLow},
		{ID: "i3", SequenceID: 3, Name: "Triage"},
	}
}

func TestRenderViewMarkdown_GroupedInPriorityOrder(t *testing.T) {
	t.Parallel()

	f := model.DisplayFilters{Layout: model.LayoutList, GroupBy: model.GroupByPriority}
	issues := fixture()
	res := grouping.Derive(f, issues)

	md, err := RenderViewMarkdown(NewView("v1", f, res, issues))
	if err != nil {
		t.Fatalf("RenderViewMarkdown: %v", err)
	}
	if !strings.HasPrefix(md, "# View v1\n") {
		t.Fatalf("expected title; got:\n%s", md)
	}
	urgent := strings.Index(md, "## urgent (1)")
	low := strings.Index(md, "## low (1)")
	none := strings.Index(md, "## None (1)")
	if urgent < 0 || low < 0 || none < 0 || !(urgent < low && low < none) {
		t.Fatalf("expected urgent, low, None sections in order; got:\n%s", md)
	}
	if !strings.Contains(md, "- #1 Fix login (`i1`) priority: urgent, state: Todo, target: 2024-05-01") {
		t.Fatalf("expected issue line with meta; got:\n%s", md)
	}
}

func TestRenderViewMarkdown_SubGroupedAndFlat(t *testing.T) {
	t.Parallel()

	issues := fixture()
	f := model.DisplayFilters{Layout: model.LayoutKanban, GroupBy: model.GroupByPriority, SubGroupBy: model.GroupByStateName, OrderBy: model.OrderBySortOrder}
	md, err := RenderViewMarkdown(NewView("v1", f, grouping.Derive(f, issues), issues))
	if err != nil {
		t.Fatalf("RenderViewMarkdown: %v", err)
	}
	if !strings.Contains(md, "## Todo\n") || !strings.Contains(md, "### urgent (1)") {
		t.Fatalf("expected sub-group and group headings; got:\n%s", md)
	}

	flat := model.DisplayFilters{Layout: model.LayoutList}
	md, err = RenderViewMarkdown(NewView("v1", flat, grouping.Derive(flat, issues), issues[:1]))
	if err != nil {
		t.Fatalf("RenderViewMarkdown: %v", err)
	}
	if !strings.Contains(md, "## Issues (3)") || !strings.Contains(md, "- i2\n") {
		t.Fatalf("expected flat list with bare ids for unknown records; got:\n%s", md)
	}

	if _, err := RenderViewMarkdown(View{ID: "v1"}); err == nil {
		t.Fatalf("expected error without a result")
	}
}

func TestWriteView_RefusesOverwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := model.DisplayFilters{Layout: model.LayoutList}
	issues := fixture()
	v := NewView("v1", f, grouping.Derive(f, issues), issues)

	res, err := WriteView(v, dir, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteView: %v", err)
	}
	want := filepath.Join(dir, "views", "v1.md")
	if len(res.Written) != 1 || res.Written[0] != want {
		t.Fatalf("unexpected written: %#v", res.Written)
	}
	b, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "Fix login") {
		t.Fatalf("unexpected file:\n%s", string(b))
	}

	if _, err := WriteView(v, dir, WriteOptions{}); err == nil {
		t.Fatalf("expected existing file to be refused")
	}
	if _, err := WriteView(v, dir, WriteOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}
