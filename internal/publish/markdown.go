package publish

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"planeview/internal/grouping"
	"planeview/internal/model"
)

// View is a derived view ready to render: its display filters, the grouped
// ids and the records those ids refer to.
type View struct {
	ID      string
	Title   string
	Display model.DisplayFilters
	Result  *grouping.Result
	Issues  map[string]model.Issue
}

// NewView indexes issues by id for rendering.
func NewView(id string, display model.DisplayFilters, res *grouping.Result, issues []model.Issue) View {
	byID := make(map[string]model.Issue, len(issues))
	for _, is := range issues {
		byID[is.ID] = is
	}
	return View{ID: id, Display: display, Result: res, Issues: byID}
}

func RenderViewMarkdown(v View) (string, error) {
	if v.Result == nil {
		return "", fmt.Errorf("view %s has no issues loaded", v.ID)
	}

	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	title := strings.TrimSpace(v.Title)
	if title == "" {
		title = "View " + v.ID
	}
	writeLn("# " + title)
	writeLn("")
	writeLn("- Layout: " + string(v.Display.Layout))
	if v.Display.GroupBy != model.GroupByNone {
		writeLn("- Group by: " + string(v.Display.GroupBy))
	}
	if v.Display.SubGroupBy != model.GroupByNone {
		writeLn("- Sub-group by: " + string(v.Display.SubGroupBy))
	}
	if v.Display.OrderBy != "" {
		writeLn("- Order by: " + string(v.Display.OrderBy))
	}
	writeLn("")

	switch v.Result.Kind {
	case grouping.KindGrouped:
		groupBy := v.Display.GroupBy
		if v.Display.Layout == model.LayoutCalendar {
			groupBy = model.GroupByTargetDate
		}
		for _, g := range orderedKeys(groupBy, v.Result.Groups) {
			writeLn(fmt.Sprintf("## %s (%d)", g, len(v.Result.Groups[g])))
			writeLn("")
			renderIssueLines(&buf, v, v.Result.Groups[g])
			writeLn("")
		}
	case grouping.KindSubGrouped:
		for _, sg := range orderedKeys(v.Display.SubGroupBy, v.Result.SubGroups) {
			groups := v.Result.SubGroups[sg]
			writeLn("## " + sg)
			writeLn("")
			for _, g := range orderedKeys(v.Display.GroupBy, groups) {
				writeLn(fmt.Sprintf("### %s (%d)", g, len(groups[g])))
				writeLn("")
				renderIssueLines(&buf, v, groups[g])
				writeLn("")
			}
		}
	default:
		writeLn(fmt.Sprintf("## Issues (%d)", len(v.Result.Flat)))
		writeLn("")
		renderIssueLines(&buf, v, v.Result.Flat)
	}

	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func renderIssueLines(buf *bytes.Buffer, v View, ids []string) {
	for _, id := range ids {
		is, ok := v.Issues[id]
		if !ok {
			fmt.Fprintf(buf, "- %s\n", id)
			continue
		}
		name := strings.TrimSpace(is.Name)
		if is.SequenceID > 0 {
			name = fmt.Sprintf("#%d %s", is.SequenceID, name)
		}
		var meta []string
		if is.Priority != "" && is.Priority != model.PriorityNone {
			meta = append(meta, "priority: "+string(is.Priority))
		}
		if is.StateDetail != nil && is.StateDetail.Name != "" {
			meta = append(meta, "state: "+is.StateDetail.Name)
		}
		if is.TargetDate != nil && *is.TargetDate != "" {
			meta = append(meta, "target: "+*is.TargetDate)
		}
		line := fmt.Sprintf("- %s (`%s`)", name, is.ID)
		if len(meta) > 0 {
			line += " " + strings.Join(meta, ", ")
		}
		buf.WriteString(line + "\n")
	}
}

// orderedKeys sorts bucket keys for display: priorities by importance,
// everything else alphabetically, with the None bucket last.
func orderedKeys[V any](field model.GroupBy, m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if (a == grouping.NoneKey) != (b == grouping.NoneKey) {
			return b == grouping.NoneKey
		}
		if field == model.GroupByPriority {
			ra, rb := model.PriorityRank(model.Priority(a)), model.PriorityRank(model.Priority(b))
			if ra != rb {
				return ra < rb
			}
		}
		return a < b
	})
	return keys
}
