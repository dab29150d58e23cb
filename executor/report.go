package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/pkg/runstate"
	"github.com/casualjim/folio/provider"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// State is the lifecycle state of one template in a run.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

var transitions = map[State][]State{
	StatePending: {StateRunning, StateFailed, StateCancelled},
	StateRunning: {StateSucceeded, StateFailed, StateCancelled},
}

// CanTransition reports whether a template in state s may move to state to.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

var (
	// ErrDependencyFailed marks templates skipped because a template they depend on did not succeed.
	ErrDependencyFailed = errors.New("dependency failed")
	// ErrCancelled marks templates that did not complete because the run was cancelled.
	ErrCancelled = errors.New("run cancelled")
	// ErrMissingParameter is returned when a template refers to a parameter that has no value.
	ErrMissingParameter = errors.New("missing parameter")
)

// TemplateError ties an error to the template it happened in.
type TemplateError struct {
	Template string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// ReportEntry is the outcome of one template.
type ReportEntry struct {
	Template string                 `json:"template"`
	Title    string                 `json:"title,omitempty"`
	State    State                  `json:"state"`
	Attempts int                    `json:"attempts"`
	Prompt   *provider.Prompt       `json:"prompt,omitempty"`
	Result   *provider.PromptResult `json:"result,omitempty"`
	// Err is the failure of the template. An expectation failure keeps the failing Result.
	Err          error               `json:"-"`
	ErrorMessage string              `json:"error,omitempty"`
	ExpectError  *expect.ExpectError `json:"expectError,omitempty"`
}

func (e *ReportEntry) fail(state State, err error) {
	e.State = state
	e.Err = err
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	var expErr *expect.ExpectError
	if errors.As(err, &expErr) {
		e.ExpectError = expErr
	}
}

// Report lists the template outcomes of a run in declaration order.
type Report struct {
	RunID   uuid.UUID     `json:"runId"`
	Title   string        `json:"title,omitempty"`
	Entries []ReportEntry `json:"entries"`
}

// Entry returns the entry of the named template.
func (r *Report) Entry(template string) (*ReportEntry, bool) {
	for i := range r.Entries {
		if r.Entries[i].Template == template {
			return &r.Entries[i], true
		}
	}
	return nil, false
}

// Count returns the number of entries in the given state.
func (r *Report) Count(state State) int {
	var n int
	for _, e := range r.Entries {
		if e.State == state {
			n++
		}
	}
	return n
}

// Result is the outcome of a run. Errors holds one error per failed template, plus
// run level errors such as missing inputs or cancellation.
type Result struct {
	Success          bool                                   `json:"success"`
	Errors           []error                                `json:"-"`
	Report           Report                                 `json:"report"`
	Usage            runstate.Usage                         `json:"usage"`
	OutputParameters *orderedmap.OrderedMap[string, string] `json:"outputParameters"`

	progressDone <-chan struct{}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// ProgressDone is closed once the progress callback has returned for every
// completed template of the run. Run does not wait for it.
func (r *Result) ProgressDone() <-chan struct{} {
	if r.progressDone == nil {
		return closedChan
	}
	return r.progressDone
}

// ErrorMessages returns the messages of Errors.
func (r *Result) ErrorMessages() []string {
	msgs := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		msgs[i] = err.Error()
	}
	return msgs
}

// Err joins Errors into one error, nil on success.
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// String summarizes the result in one line.
func (r *Result) String() string {
	var b strings.Builder
	if r.Success {
		b.WriteString("succeeded")
	} else {
		b.WriteString("failed")
	}
	fmt.Fprintf(&b, ": %d/%d templates succeeded", r.Report.Count(StateSucceeded), len(r.Report.Entries))
	if n := len(r.Errors); n > 0 {
		fmt.Fprintf(&b, ", %d errors", n)
	}
	return b.String()
}

// Progress is emitted once per completed template.
type Progress struct {
	RunID     uuid.UUID      `json:"runId"`
	Entry     ReportEntry    `json:"entry"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	Usage     runstate.Usage `json:"usage"`
}
