package refresh

import "fmt"

// Error marks a refresh pass that fetched fine but could not persist.
// It reaches only the scheduler's failure log; the read path never sees
// it.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: refresh failed: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
