package grouping

import (
	"strings"
	"time"

	"planeview/internal/model"
)

// NoneKey buckets issues whose group field is empty.
const NoneKey = "None"

const dateLayout = "2006-01-02"

// GroupKey returns the bucket key of is for field. When dateBuckets is set,
// date values are normalized to YYYY-MM-DD first (calendar semantics).
func GroupKey(field model.GroupBy, is model.Issue, dateBuckets bool) string {
	var v string
	switch field {
	case model.GroupByState:
		v = is.StateID
	case model.GroupByStateName:
		if is.StateDetail != nil {
			v = is.StateDetail.Name
		}
	case model.GroupByStateGroup:
		if is.StateDetail != nil {
			v = is.StateDetail.Group
		}
	case model.GroupByPriority:
		v = string(is.Priority)
	case model.GroupByCycle:
		v = is.CycleID
	case model.GroupByTargetDate:
		if is.TargetDate != nil {
			v = *is.TargetDate
		}
		if dateBuckets {
			v = normalizeDate(v)
		}
	case model.GroupByCreatedBy:
		v = is.CreatedBy
	case model.GroupByProject:
		v = is.ProjectID
	case model.GroupByNone:
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return NoneKey
	}
	return v
}

// Compare orders a before b (negative), after b (positive) or equal (zero)
// according to order. Issues missing an optional date value always sort last.
func Compare(order model.OrderBy, a, b model.Issue) int {
	desc := order.Descending()
	var c int
	switch order.Field() {
	case model.OrderFieldSortOrder, "":
		c = compareFloat(a.SortOrder, b.SortOrder)
	case model.OrderFieldCreatedAt:
		c = a.CreatedAt.Compare(b.CreatedAt)
	case model.OrderFieldUpdatedAt:
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	case model.OrderFieldStartDate:
		return compareOptionalDate(a.StartDate, b.StartDate, desc)
	case model.OrderFieldTargetDate:
		return compareOptionalDate(a.TargetDate, b.TargetDate, desc)
	case model.OrderFieldPriority:
		c = model.PriorityRank(a.Priority) - model.PriorityRank(b.Priority)
	case model.OrderFieldName:
		c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
	if desc {
		return -c
	}
	return c
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOptionalDate(a, b *string, desc bool) int {
	da, db := "", ""
	if a != nil {
		da = normalizeDate(*a)
	}
	if b != nil {
		db = normalizeDate(*b)
	}
	switch {
	case da == "" && db == "":
		return 0
	case da == "":
		return 1
	case db == "":
		return -1
	}
	c := strings.Compare(da, db)
	if desc {
		return -c
	}
	return c
}

// normalizeDate accepts YYYY-MM-DD or RFC3339 and returns YYYY-MM-DD ("" when unparsable).
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(dateLayout)
	}
	return ""
}
