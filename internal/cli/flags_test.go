package cli

import (
	"testing"

	"github.com/spf13/pflag"

	"planeview/internal/model"
)

func TestDisplayFlags_OnlyChangedFlagsOverride(t *testing.T) {
	var d displayFlags
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	d.register(fs)
	if err := fs.Parse([]string{"--order-by=-created_at"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	base := model.DisplayFilters{Layout: model.LayoutKanban, GroupBy: model.GroupByPriority, SubGroupBy: model.GroupByStateName}
	got := d.apply(fs, base)
	want := model.DisplayFilters{
		Layout:     model.LayoutKanban,
		GroupBy:    model.GroupByPriority,
		SubGroupBy: model.GroupByStateName,
		OrderBy:    model.OrderByNewestCreated,
	}
	if got != want {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestDisplayFlags_DefaultsAndNormalizes(t *testing.T) {
	var d displayFlags
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	d.register(fs)
	if err := fs.Parse([]string{"--sub-group-by", "priority"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := d.apply(fs, model.DisplayFilters{})
	if got.Layout != model.LayoutList {
		t.Fatalf("expected list layout default; got %q", got.Layout)
	}
	if got.SubGroupBy != model.GroupByNone {
		t.Fatalf("expected sub-grouping dropped without a grouping; got %q", got.SubGroupBy)
	}
}

func TestDisplayFlags_RejectsUnknownValues(t *testing.T) {
	cases := [][]string{
		{"--layout", "board"},
		{"--group-by", "assignee"},
		{"--order-by=-nope"},
	}
	for _, args := range cases {
		var d displayFlags
		fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
		fs.SetOutput(discard{})
		d.register(fs)
		if err := fs.Parse(args); err == nil {
			t.Fatalf("expected %v to be rejected", args)
		}
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := parsePriority(" High "); err != nil || p != model.PriorityHigh {
		t.Fatalf("got %q, %v", p, err)
	}
	if _, err := parsePriority("meh"); err == nil {
		t.Fatalf("expected invalid priority error")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
