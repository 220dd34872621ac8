// Package pipeline runs the correction loop: generate a Manim script, render
// it, and on failure feed the diagnostic back into the next generation pass,
// up to a bounded number of attempts.
package pipeline

import "time"

// Request is one animation request. Immutable once accepted.
type Request struct {
	ID        string
	Prompt    string
	CreatedAt time.Time
}

// Outcome is the result of a single attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Attempt is one generate/render round trip, recorded once finished.
type Attempt struct {
	Seq         int
	Code        string
	SceneName   string
	Outcome     Outcome
	ErrorDetail string
	Duration    time.Duration
}

// Status is the loop's lifecycle state.
type Status string

const (
	StatusRunning         Status = "running"
	StatusSucceeded       Status = "succeeded"
	StatusFailedExhausted Status = "failed_exhausted"
	StatusFailedFatal     Status = "failed_fatal"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailedExhausted || s == StatusFailedFatal
}

// Result is the final state of one run.
//
// VideoPath is set if and only if Status is StatusSucceeded. FinalError holds
// the last recorded error detail for the failed statuses.
type Result struct {
	Request    Request
	Storyboard string
	Attempts   []Attempt
	Status     Status
	VideoPath  string
	FinalError string
}

// LastAttempt returns the most recent attempt, or nil before the first one
// completes.
func (r *Result) LastAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// Event notifies an observer of loop progress. Used by the web shell to
// stream step-by-step status to a polling client.
type Event struct {
	Stage   string // refining, generating, validating, rendering, fixing, done
	Attempt int
	Message string
}

// Observer receives progress events. Implementations must be fast; the loop
// calls them inline.
type Observer func(Event)
