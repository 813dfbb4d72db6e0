package events

import "time"

// Submission outcomes.
const (
	OutcomeIngested = "ingested"
	OutcomeSkipped  = "skipped"
)

// SubmissionEvent is sent when a submission leaves the orchestrator,
// successfully or not.
type SubmissionEvent struct {
	URL            string        // canonical URL, empty if the input was invalid
	Outcome        string        // OutcomeIngested, OutcomeSkipped or the error kind
	Reason         string        // error reason, empty on success
	ChunksIndexed  int           // chunks written by ingestion
	IngestDuration time.Duration // zero unless ingestion ran
	Timestamp      time.Time
}

// Failed reports whether the submission ended in an error.
func (e SubmissionEvent) Failed() bool {
	return e.Outcome != OutcomeIngested && e.Outcome != OutcomeSkipped
}

// Listener receives submission events. It is called synchronously and must not block.
type Listener func(SubmissionEvent)
