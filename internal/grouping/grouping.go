// Package grouping derives flat, grouped and sub-grouped issue id projections
// from a list of issue records and a view's display filters.
//
// Everything here is a pure function of its inputs; callers own caching.
package grouping

import (
	"encoding/json"
	"slices"
	"sort"

	"planeview/internal/model"
)

type Kind int

const (
	KindFlat Kind = iota
	KindGrouped
	KindSubGrouped
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindGrouped:
		return "grouped"
	case KindSubGrouped:
		return "sub_grouped"
	default:
		return "unknown"
	}
}

// Result is a derived projection. Exactly one of Flat, Groups or SubGroups is
// meaningful, selected by Kind. Results may be shared between readers and must
// not be mutated.
type Result struct {
	Kind      Kind
	Flat      []string
	Groups    map[string][]string
	SubGroups map[string]map[string][]string
}

func Empty() *Result {
	return &Result{Kind: KindFlat, Flat: []string{}}
}

// Lookup returns a copy of the issue ids for a bucket:
//   - flat results ignore the ids and return the whole sequence
//   - grouped results need groupID
//   - sub-grouped results need both groupID and subGroupID
func (r *Result) Lookup(groupID, subGroupID string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	switch r.Kind {
	case KindFlat:
		return slices.Clone(r.Flat), true
	case KindGrouped:
		if groupID == "" {
			return nil, false
		}
		ids, ok := r.Groups[groupID]
		return slices.Clone(ids), ok
	case KindSubGrouped:
		if groupID == "" || subGroupID == "" {
			return nil, false
		}
		ids, ok := r.SubGroups[subGroupID][groupID]
		return slices.Clone(ids), ok
	}
	return nil, false
}

// Select resolves ids against the grouping configured in f rather than the
// shape of r. Without a grouping the whole result is returned. With both
// groupings and both ids it is a two-level lookup; with a grouping and
// groupID it is a single-level lookup. A configuration whose layout did not
// produce the matching shape yields no ids.
func (r *Result) Select(f model.DisplayFilters, groupID, subGroupID string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	f = f.Normalized()
	switch {
	case f.GroupBy == model.GroupByNone:
		return r.IssueIDs(), true
	case f.SubGroupBy != model.GroupByNone && groupID != "" && subGroupID != "":
		if r.Kind != KindSubGrouped {
			return nil, false
		}
		return r.Lookup(groupID, subGroupID)
	case groupID != "":
		if r.Kind != KindGrouped {
			return nil, false
		}
		return r.Lookup(groupID, "")
	}
	return nil, false
}

// IssueIDs returns a copy of every id in the result. Flat results keep their
// order; grouped results are walked in sorted key order.
func (r *Result) IssueIDs() []string {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case KindGrouped:
		out := []string{}
		for _, k := range sortedKeys(r.Groups) {
			out = append(out, r.Groups[k]...)
		}
		return out
	case KindSubGrouped:
		out := []string{}
		for _, sk := range sortedKeys(r.SubGroups) {
			groups := r.SubGroups[sk]
			for _, k := range sortedKeys(groups) {
				out = append(out, groups[k]...)
			}
		}
		return out
	default:
		return append([]string{}, r.Flat...)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Result) value() any {
	switch r.Kind {
	case KindGrouped:
		return r.Groups
	case KindSubGrouped:
		return r.SubGroups
	default:
		if r.Flat == nil {
			return []string{}
		}
		return r.Flat
	}
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value())
}

func (r *Result) MarshalYAML() (any, error) {
	return r.value(), nil
}

// Sorted returns a stably sorted copy of issues.
func Sorted(order model.OrderBy, issues []model.Issue) []model.Issue {
	out := append([]model.Issue(nil), issues...)
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(order, out[i], out[j]) < 0
	})
	return out
}

// Ungrouped orders issues and returns their ids.
func Ungrouped(order model.OrderBy, issues []model.Issue) []string {
	sorted := Sorted(order, issues)
	out := make([]string, 0, len(sorted))
	for _, is := range sorted {
		out = append(out, is.ID)
	}
	return out
}

// Grouped buckets ordered issue ids by groupBy.
func Grouped(groupBy model.GroupBy, order model.OrderBy, issues []model.Issue, dateBuckets bool) map[string][]string {
	out := map[string][]string{}
	for _, is := range Sorted(order, issues) {
		k := GroupKey(groupBy, is, dateBuckets)
		out[k] = append(out[k], is.ID)
	}
	return out
}

// SubGrouped buckets ordered issue ids by subGroupBy, then groupBy.
func SubGrouped(subGroupBy, groupBy model.GroupBy, order model.OrderBy, issues []model.Issue) map[string]map[string][]string {
	out := map[string]map[string][]string{}
	for _, is := range Sorted(order, issues) {
		sk := GroupKey(subGroupBy, is, false)
		gk := GroupKey(groupBy, is, false)
		groups, ok := out[sk]
		if !ok {
			groups = map[string][]string{}
			out[sk] = groups
		}
		groups[gk] = append(groups[gk], is.ID)
	}
	return out
}

// Derive dispatches on the layout. issues must already be resolved and
// exclude archived records.
func Derive(f model.DisplayFilters, issues []model.Issue) *Result {
	f = f.Normalized()
	switch f.Layout {
	case model.LayoutList:
		order := orDefault(f.OrderBy, model.OrderBySortOrder)
		if f.GroupBy != model.GroupByNone {
			return &Result{Kind: KindGrouped, Groups: Grouped(f.GroupBy, order, issues, false)}
		}
		return &Result{Kind: KindFlat, Flat: Ungrouped(order, issues)}
	case model.LayoutKanban:
		if f.GroupBy == model.GroupByNone || f.OrderBy == "" {
			return Empty()
		}
		if f.SubGroupBy != model.GroupByNone {
			return &Result{Kind: KindSubGrouped, SubGroups: SubGrouped(f.SubGroupBy, f.GroupBy, f.OrderBy, issues)}
		}
		return &Result{Kind: KindGrouped, Groups: Grouped(f.GroupBy, f.OrderBy, issues, false)}
	case model.LayoutCalendar:
		return &Result{Kind: KindGrouped, Groups: Grouped(model.GroupByTargetDate, model.OrderByTargetDate, issues, true)}
	case model.LayoutSpreadsheet:
		return &Result{Kind: KindFlat, Flat: Ungrouped(orDefault(f.OrderBy, model.OrderByNewestCreated), issues)}
	case model.LayoutGantt:
		return &Result{Kind: KindFlat, Flat: Ungrouped(orDefault(f.OrderBy, model.OrderBySortOrder), issues)}
	default:
		return Empty()
	}
}

func orDefault(o, d model.OrderBy) model.OrderBy {
	if o == "" {
		return d
	}
	return o
}
