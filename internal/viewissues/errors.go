package viewissues

import "errors"

var (
	ErrViewIDRequired = errors.New("view id is required")
	ErrInvalidIssue   = errors.New("invalid issue")
)
