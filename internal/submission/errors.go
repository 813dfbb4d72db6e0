package submission

import "fmt"

// Kind classifies a failed submission.
type Kind string

const (
	// KindInvalidInput means the URL could not be canonicalized.
	KindInvalidInput Kind = "invalid_input"
	// KindUpstream means the indexed set, ingestion or history call failed.
	KindUpstream Kind = "upstream"
	// KindBusy means the same browser session already has a submission in flight.
	KindBusy Kind = "busy"
)

// Failure reasons reported with KindUpstream.
const (
	ReasonIndexedCheck = "indexed_check_failed"
	ReasonIngestion    = "ingestion_failed"
	ReasonMarkIndexed  = "mark_indexed_failed"
	ReasonHistoryFetch = "history_fetch_failed"
)

// Error is returned by Submit for every failure.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("submission: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("submission: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}
