package harness

import "github.com/roach88/criterium/internal/engine"

// StepResult captures what one step actually did: the compiled plan,
// the page or error it produced, and the number of SQL statements
// issued along the way.
type StepResult struct {
	// Entity is the root entity the step queried.
	Entity string `json:"entity"`

	// Plan is the deterministic plan description (Plan.Describe output).
	// Empty when the request failed before planning completed.
	Plan string `json:"plan,omitempty"`

	// Page is the result page. Nil when the step errored.
	Page *engine.Page `json:"page,omitempty"`

	// Err is the execution error, nil on success.
	Err error `json:"-"`

	// Queries is the number of SQL statements issued for this step.
	Queries int `json:"queries"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every step's expectations matched.
	Pass bool `json:"pass"`

	// Steps holds the per-step outcomes in execution order.
	Steps []StepResult `json:"steps"`

	// Errors contains expectation failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
