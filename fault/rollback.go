package fault

import (
	"context"
	"fmt"
)

// Rollback undoes one externally visible side effect. A rollback may itself
// produce further rollbacks (e.g. restoring a file registers a cleanup for
// the restore) and may fail; failures are reported, not thrown.
type Rollback func(ctx context.Context) ([]Rollback, *Entry)

// Stack accumulates rollbacks in registration order. Stacks are strictly
// request-local and never shared between goroutines.
type Stack struct {
	fns []Rollback
}

// Push registers a rollback. Nil funcs are ignored.
func (s *Stack) Push(fn Rollback) {
	if fn != nil {
		s.fns = append(s.fns, fn)
	}
}

// Extend registers a batch of rollbacks in order.
func (s *Stack) Extend(fns []Rollback) {
	for _, fn := range fns {
		s.Push(fn)
	}
}

// Len returns the number of registered rollbacks.
func (s *Stack) Len() int { return len(s.fns) }

// Funcs returns the registered rollbacks in registration order.
func (s *Stack) Funcs() []Rollback { return s.fns }

// Unwind executes the stack in reverse registration order and clears it.
// See Unwind for the traversal contract.
func (s *Stack) Unwind(ctx context.Context) []string {
	logs := Unwind(ctx, s.fns)
	s.fns = nil
	return logs
}

// Unwind runs fns in reverse order, descending depth-first into the
// sub-rollbacks each one returns. A failing rollback contributes a log line
// and unwinding continues with the remaining entries. The returned strings
// are ready for the log writer.
func Unwind(ctx context.Context, fns []Rollback) []string {
	var logs []string
	for i := len(fns) - 1; i >= 0; i-- {
		sub, err := fns[i](ctx)
		if err != nil {
			logs = append(logs, fmt.Sprintf("rollback failed: %s: %s", err.Code, err.Internal))
		}
		if len(sub) > 0 {
			logs = append(logs, Unwind(ctx, sub)...)
		}
	}
	return logs
}
