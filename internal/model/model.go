package model

import "time"

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// Priorities lists priorities from most to least important.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow, PriorityNone}

// PriorityRank returns the position of p in Priorities (unknown priorities sort last).
func PriorityRank(p Priority) int {
	for i, x := range Priorities {
		if x == p {
			return i
		}
	}
	return len(Priorities)
}

type StateDetail struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
	Color string `json:"color,omitempty"`
}

type State struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id,omitempty"`
	Name      string  `json:"name"`
	Group     string  `json:"group"`
	Color     string  `json:"color,omitempty"`
	Sequence  float64 `json:"sequence"`
}

func (s State) Detail() *StateDetail {
	return &StateDetail{ID: s.ID, Name: s.Name, Group: s.Group, Color: s.Color}
}

type Issue struct {
	ID         string `json:"id" validate:"required"`
	ProjectID  string `json:"project_id,omitempty"`
	SequenceID int    `json:"sequence_id,omitempty"`
	Name       string `json:"name" validate:"required,max=255"`

	StateID     string       `json:"state_id,omitempty"`
	StateDetail *StateDetail `json:"state_detail,omitempty"`
	Priority    Priority     `json:"priority,omitempty" validate:"omitempty,oneof=urgent high medium low none"`

	CycleID     string   `json:"cycle_id,omitempty"`
	ModuleIDs   []string `json:"module_ids,omitempty"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
	LabelIDs    []string `json:"label_ids,omitempty"`

	// Dates are date-only values (YYYY-MM-DD); the API may also send full timestamps.
	StartDate  *string `json:"start_date,omitempty"`
	TargetDate *string `json:"target_date,omitempty"`

	SortOrder float64 `json:"sort_order"`

	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

func (is Issue) Archived() bool {
	return is.ArchivedAt != nil
}

// Clone returns a copy that shares no slices or pointers with is.
func (is Issue) Clone() Issue {
	out := is
	if is.StateDetail != nil {
		sd := *is.StateDetail
		out.StateDetail = &sd
	}
	out.ModuleIDs = cloneStrings(is.ModuleIDs)
	out.AssigneeIDs = cloneStrings(is.AssigneeIDs)
	out.LabelIDs = cloneStrings(is.LabelIDs)
	out.StartDate = cloneStringPtr(is.StartDate)
	out.TargetDate = cloneStringPtr(is.TargetDate)
	if is.ArchivedAt != nil {
		t := *is.ArchivedAt
		out.ArchivedAt = &t
	}
	return out
}

// IssuePatch is a partial issue update. Nil fields are left untouched.
type IssuePatch struct {
	Name        *string   `json:"name,omitempty"`
	StateID     *string   `json:"state_id,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	CycleID     *string   `json:"cycle_id,omitempty"`
	ModuleIDs   *[]string `json:"module_ids,omitempty"`
	AssigneeIDs *[]string `json:"assignee_ids,omitempty"`
	LabelIDs    *[]string `json:"label_ids,omitempty"`
	StartDate   *string   `json:"start_date,omitempty"`
	TargetDate  *string   `json:"target_date,omitempty"`
	SortOrder   *float64  `json:"sort_order,omitempty"`
}

func (p IssuePatch) IsEmpty() bool {
	return p == IssuePatch{}
}

// Apply writes the non-nil fields of p onto is.
func (p IssuePatch) Apply(is *Issue) {
	if is == nil {
		return
	}
	if p.Name != nil {
		is.Name = *p.Name
	}
	if p.StateID != nil {
		is.StateID = *p.StateID
		if is.StateDetail != nil && is.StateDetail.ID != *p.StateID {
			is.StateDetail = nil
		}
	}
	if p.Priority != nil {
		is.Priority = *p.Priority
	}
	if p.CycleID != nil {
		is.CycleID = *p.CycleID
	}
	if p.ModuleIDs != nil {
		is.ModuleIDs = cloneStrings(*p.ModuleIDs)
	}
	if p.AssigneeIDs != nil {
		is.AssigneeIDs = cloneStrings(*p.AssigneeIDs)
	}
	if p.LabelIDs != nil {
		is.LabelIDs = cloneStrings(*p.LabelIDs)
	}
	if p.StartDate != nil {
		is.StartDate = emptyToNil(*p.StartDate)
	}
	if p.TargetDate != nil {
		is.TargetDate = emptyToNil(*p.TargetDate)
	}
	if p.SortOrder != nil {
		is.SortOrder = *p.SortOrder
	}
}

// PatchFromIssue builds the create payload for a full record.
func PatchFromIssue(is Issue) IssuePatch {
	p := IssuePatch{Name: &is.Name}
	if is.StateID != "" {
		p.StateID = &is.StateID
	}
	if is.Priority != "" {
		p.Priority = &is.Priority
	}
	if is.CycleID != "" {
		p.CycleID = &is.CycleID
	}
	if len(is.ModuleIDs) > 0 {
		ids := cloneStrings(is.ModuleIDs)
		p.ModuleIDs = &ids
	}
	if len(is.AssigneeIDs) > 0 {
		ids := cloneStrings(is.AssigneeIDs)
		p.AssigneeIDs = &ids
	}
	if len(is.LabelIDs) > 0 {
		ids := cloneStrings(is.LabelIDs)
		p.LabelIDs = &ids
	}
	p.StartDate = cloneStringPtr(is.StartDate)
	p.TargetDate = cloneStringPtr(is.TargetDate)
	if is.SortOrder != 0 {
		so := is.SortOrder
		p.SortOrder = &so
	}
	return p
}

func cloneStrings(xs []string) []string {
	if xs == nil {
		return nil
	}
	return append([]string(nil), xs...)
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
