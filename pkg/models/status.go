package models

import "net/http"

// Outcome is how a Crawl or Reprocess Step ended
type Outcome string

const (
	OutcomeUnset       Outcome = ""             // Zero value = unset/unknown
	OutcomeFinish      Outcome = "finish"       // Depth exhausted, nothing done
	OutcomeBadRequest  Outcome = "bad_request"  // Malformed path or missing crawl id
	OutcomeSatisfied   Outcome = "satisfied"    // Already visited at least this deep in this run
	OutcomeReprocess   Outcome = "reprocess"    // Delegated to the Reprocess Step
	OutcomeSkipped     Outcome = "skipped"      // Origin answered 403/404/410
	OutcomeNotModified Outcome = "not_modified" // Origin answered 304 for a non-HTML/CSS object
	OutcomeStored      Outcome = "stored"       // Fetched and persisted
	OutcomeRescraped   Outcome = "rescraped"    // Links re-derived from the stored body
	OutcomeFailed      Outcome = "failed"       // Step returned an error
)

// String implements fmt.Stringer for logging
func (o Outcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// IsValid returns true if the outcome is a known operational value
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeFinish, OutcomeBadRequest, OutcomeSatisfied, OutcomeReprocess, OutcomeSkipped,
		OutcomeNotModified, OutcomeStored, OutcomeRescraped, OutcomeFailed:
		return true
	}
	return false
}

// Messages returned to callers of the entry operation
const (
	MessageFinish      = "Finish"
	MessageAccepted    = "Accepted"
	MessageBadRequest  = "Bad Request"
	MessageServerError = "Internal Server Error"
)

// Result is the (statusCode, message) pair produced by a step.
// Outcome and Queued are for logs and status counters only.
type Result struct {
	StatusCode int     `json:"-"`
	Message    string  `json:"message"`
	Outcome    Outcome `json:"-"`
	Queued     int     `json:"-"`
}

// FinishResult is returned when depth is exhausted
func FinishResult() Result {
	return Result{StatusCode: http.StatusOK, Message: MessageFinish, Outcome: OutcomeFinish}
}

// BadRequestResult is returned for malformed input
func BadRequestResult() Result {
	return Result{StatusCode: http.StatusBadRequest, Message: MessageBadRequest, Outcome: OutcomeBadRequest}
}

// AcceptedResult is returned for every completed step that was not short-circuited
func AcceptedResult(outcome Outcome) Result {
	return Result{StatusCode: http.StatusOK, Message: MessageAccepted, Outcome: outcome}
}
