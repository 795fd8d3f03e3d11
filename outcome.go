package invoke

import (
	"context"
	"sync"
)

// Outcome is the single terminal result of a Session or a Future.
//
// On success Err is nil and Text holds the assembled output. On failure Err holds the
// cause and Text is empty: partial output is not part of a failed Outcome, although
// fragments already handed to a chunk handler stay delivered.
type Outcome struct {
	Text    string
	Err     error
	Metrics Metrics
}

// Succeeded reports whether the Outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// outcomeCell resolves once and can be awaited any number of times.
type outcomeCell struct {
	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newOutcomeCell() *outcomeCell {
	return &outcomeCell{done: make(chan struct{})}
}

// resolve stores o if the cell is still unresolved and reports whether it did.
func (c *outcomeCell) resolve(o Outcome) bool {
	resolved := false
	c.once.Do(func() {
		c.outcome = o
		close(c.done)
		resolved = true
	})
	return resolved
}

func (c *outcomeCell) wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	default:
	}
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
