// Package saga executes an ordered sequence of remote effects with per-step
// compensation. There is no cross-store transaction to lean on: when a step
// fails, everything already committed is undone best-effort, in reverse
// order, and the outcome of every compensating call is reported so an
// operator can spot a partial restoration.
package saga

import (
	"context"
	"fmt"
	"strings"
)

// Step pairs an action with the operation that semantically undoes it.
// Compensate may be nil for steps with nothing to undo. Compensations must
// tolerate being run after a step that "failed" by timeout but actually
// landed remotely, which is why they are additive (add stock back, credit
// money back) rather than exact inverses.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Compensation is the recorded outcome of one compensating call.
type Compensation struct {
	Step string
	Err  error
}

// Report describes a failed saga: which step broke, why, and how the unwind
// went.
type Report struct {
	FailedStep    string
	Cause         error
	Compensations []Compensation
}

func (r *Report) Error() string { return fmt.Sprintf("step %s: %v", r.FailedStep, r.Cause) }

func (r *Report) Unwrap() error { return r.Cause }

// FullyRestored is true when every compensating call succeeded (or there was
// nothing to compensate).
func (r *Report) FullyRestored() bool {
	for _, c := range r.Compensations {
		if c.Err != nil {
			return false
		}
	}
	return true
}

// Summary renders the unwind outcome for API responses and logs, naming the
// steps whose compensation failed.
func (r *Report) Summary() string {
	if len(r.Compensations) == 0 {
		return "nothing to compensate"
	}
	var failed []string
	for _, c := range r.Compensations {
		if c.Err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", c.Step, c.Err))
		}
	}
	if len(failed) == 0 {
		return fmt.Sprintf("all %d committed steps compensated", len(r.Compensations))
	}
	return fmt.Sprintf("%d of %d compensations failed: %s",
		len(failed), len(r.Compensations), strings.Join(failed, "; "))
}

// Execute runs the steps in order. On the first failure it compensates every
// previously committed step in reverse and returns a Report; a compensation
// failure is recorded but never stops the remaining compensations. Returns
// nil when all steps commit.
//
// The unwind runs even when ctx is already done: a canceled checkout still
// has to give its stock and money back.
func Execute(ctx context.Context, steps []Step) *Report {
	var committed []Step
	for _, step := range steps {
		err := step.Run(ctx)
		if err == nil {
			committed = append(committed, step)
			continue
		}

		report := &Report{FailedStep: step.Name, Cause: err}
		undoCtx := context.WithoutCancel(ctx)
		for i := len(committed) - 1; i >= 0; i-- {
			c := committed[i]
			if c.Compensate == nil {
				continue
			}
			report.Compensations = append(report.Compensations, Compensation{
				Step: c.Name,
				Err:  c.Compensate(undoCtx),
			})
		}
		return report
	}
	return nil
}
