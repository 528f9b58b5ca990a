package genstate

import "time"

// Status enumerates the generation lifecycle.
type Status string

const (
	StatusDirty      Status = "dirty"
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusSuperseded Status = "superseded"
)

// statuses lists every concrete status. The empty string stands for a record
// that does not exist yet.
var statuses = []Status{
	StatusDirty,
	StatusQueued,
	StatusRunning,
	StatusSucceeded,
	StatusFailed,
	StatusSuperseded,
}

// Terminal reports whether no automatic transition leaves the status.
func (s Status) Terminal() bool {
	return s == StatusSuperseded
}

// Supersede reasons recorded as the last error of a superseded record.
const (
	ReasonNewBase           = "superseded_by_new_base"
	ReasonLocaleNotSelected = "locale_not_selected"
	ReasonStaleInstance     = "stale_instance"
)

// RetryExhaustedPrefix marks a failure that consumed the attempt ceiling.
const RetryExhaustedPrefix = "retry_exhausted:"

// Key identifies one logical generation record.
type Key struct {
	ContentID       string
	Layer           string
	Locale          string
	BaseFingerprint string
}

// Record is one persisted generation state row.
type Record struct {
	Key
	Status        Status
	Attempts      int
	NextAttemptAt *time.Time
	LastAttemptAt *time.Time
	LastError     string
	ChangedPaths  []string
	RemovedPaths  []string
	WidgetType    string
	WorkspaceID   string
	BaseUpdatedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AttemptsExhausted reports whether the record hit the attempt ceiling.
func (r *Record) AttemptsExhausted(maxAttempts int) bool {
	return r.Attempts >= maxAttempts
}
