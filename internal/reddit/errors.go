package reddit

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a subreddit or post does not exist.
var ErrNotFound = errors.New("not found")

// SourceError describes a failed content source request.
type SourceError struct {
	Op     string
	Status int
	Err    error
}

func (e *SourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("reddit %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("reddit %s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
