package download

import "dlsite-manager/db"

// Event types emitted by the orchestrator.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventFailed   = "failed"
)

// Event is a progress, completion or failure notification for one product
// download. Progress fractions are monotonically non-decreasing within a
// phase; Decompressing marks the phase switch so a fraction reset is not
// read as regression. Complete events carry the committed download record.
type Event struct {
	Type          string
	AccountID     int64
	ProductID     string
	Progress      float64
	Decompressing bool

	// Set on complete
	Download *db.ProductDownload

	// Set on failed
	FailureKind    string
	FailureMessage string
}
