package model

import (
	"fmt"
	"strings"
)

type Layout string

const (
	LayoutList        Layout = "list"
	LayoutKanban      Layout = "kanban"
	LayoutCalendar    Layout = "calendar"
	LayoutSpreadsheet Layout = "spreadsheet"
	LayoutGantt       Layout = "gantt_chart"
)

var Layouts = []Layout{LayoutList, LayoutKanban, LayoutCalendar, LayoutSpreadsheet, LayoutGantt}

func ParseLayout(s string) (Layout, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range Layouts {
		if string(l) == s {
			return l, nil
		}
	}
	if s == "gantt" {
		return LayoutGantt, nil
	}
	return "", fmt.Errorf("invalid layout: %q (expected list|kanban|calendar|spreadsheet|gantt_chart)", s)
}

// GroupBy names an issue field that can bucket issues. The empty value means no grouping.
type GroupBy string

const (
	GroupByNone       GroupBy = ""
	GroupByState      GroupBy = "state"
	GroupByStateName  GroupBy = "state_detail.name"
	GroupByStateGroup GroupBy = "state_detail.group"
	GroupByPriority   GroupBy = "priority"
	GroupByCycle      GroupBy = "cycle"
	GroupByTargetDate GroupBy = "target_date"
	GroupByCreatedBy  GroupBy = "created_by"
	GroupByProject    GroupBy = "project"
)

var GroupBys = []GroupBy{
	GroupByState,
	GroupByStateName,
	GroupByStateGroup,
	GroupByPriority,
	GroupByCycle,
	GroupByTargetDate,
	GroupByCreatedBy,
	GroupByProject,
}

func ParseGroupBy(s string) (GroupBy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return GroupByNone, nil
	}
	for _, g := range GroupBys {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("invalid group-by field: %q", s)
}

// OrderField names an issue field issues can be ordered by.
type OrderField string

const (
	OrderFieldSortOrder  OrderField = "sort_order"
	OrderFieldCreatedAt  OrderField = "created_at"
	OrderFieldUpdatedAt  OrderField = "updated_at"
	OrderFieldStartDate  OrderField = "start_date"
	OrderFieldTargetDate OrderField = "target_date"
	OrderFieldPriority   OrderField = "priority"
	OrderFieldName       OrderField = "name"
)

var OrderFields = []OrderField{
	OrderFieldSortOrder,
	OrderFieldCreatedAt,
	OrderFieldUpdatedAt,
	OrderFieldStartDate,
	OrderFieldTargetDate,
	OrderFieldPriority,
	OrderFieldName,
}

// OrderBy is an order field with an optional "-" prefix for descending order
// (e.g. "-created_at"). The empty value means "layout default".
type OrderBy string

const (
	OrderBySortOrder     OrderBy = "sort_order"
	OrderByNewestCreated OrderBy = "-created_at"
	OrderByTargetDate    OrderBy = "target_date"
	OrderByLastUpdated   OrderBy = "-updated_at"
)

func (o OrderBy) Field() OrderField {
	return OrderField(strings.TrimPrefix(string(o), "-"))
}

func (o OrderBy) Descending() bool {
	return strings.HasPrefix(string(o), "-")
}

func ParseOrderBy(s string) (OrderBy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	field := OrderField(strings.TrimPrefix(s, "-"))
	for _, f := range OrderFields {
		if f == field {
			return OrderBy(s), nil
		}
	}
	return "", fmt.Errorf("invalid order-by field: %q", s)
}

type DisplayFilters struct {
	GroupBy    GroupBy `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	SubGroupBy GroupBy `json:"sub_group_by,omitempty" yaml:"sub_group_by,omitempty"`
	OrderBy    OrderBy `json:"order_by,omitempty" yaml:"order_by,omitempty"`
	Layout     Layout  `json:"layout" yaml:"layout"`
}

// Normalized drops sub-grouping when no primary grouping is configured.
func (f DisplayFilters) Normalized() DisplayFilters {
	if f.GroupBy == GroupByNone {
		f.SubGroupBy = GroupByNone
	}
	return f
}

// ViewFilters is the full filter configuration of a view: the query params
// sent when listing issues plus the display filters used for derivation.
type ViewFilters struct {
	Applied map[string]string `json:"applied,omitempty" yaml:"applied,omitempty"`
	Display DisplayFilters    `json:"display" yaml:"display"`
}

// Loader marks what a view store is currently loading.
type Loader string

const (
	LoaderNone     Loader = ""
	LoaderIdle     Loader = "idle"
	LoaderInitial  Loader = "init-loader"
	LoaderMutation Loader = "mutation"
)
