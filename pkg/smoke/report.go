package smoke

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrCheckFailed marks strict-mode verification failures, as opposed to
// errors returned by the database.
var ErrCheckFailed = errors.New("check failed")

func checkFailed(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrCheckFailed)
}

// StepError is the failure of one step of the sequence.
type StepError struct {
	Step int
	Name string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Format prints the wrapped error's stack trace for %+v.
func (e *StepError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

func (e *StepError) FormatError(p errors.Printer) error {
	p.Printf("step %d (%s)", e.Step, e.Name)
	return e.Err
}

// StepResult records one executed step.
type StepResult struct {
	Step     int
	Name     string
	Duration time.Duration
	// Items counts what the step touched: collections listed, vectors
	// inserted, entities counted, hits or rows returned.
	Items int
	// Recall is the self-recall measured by a strict search step, nil
	// otherwise.
	Recall *float64
	Err    error
}

// Report is the outcome of one run. Steps holds every step that ran; a
// failed run ends with the failing step.
type Report struct {
	Address    string
	Collection string
	Steps      []StepResult
	Err        error
}

// Passed reports whether every step succeeded.
func (r *Report) Passed() bool { return r.Err == nil }

// ExitCode is 0 for a passed run and 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// FailedStep returns the failing step, or nil.
func (r *Report) FailedStep() *StepError {
	var se *StepError
	if errors.As(r.Err, &se) {
		return se
	}
	return nil
}
