package board

import "fmt"

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type IndexError struct {
	Index int
	Len   int
}

func (e IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0,%d)", e.Index, e.Len)
}
