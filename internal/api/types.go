package api

import "time"

// DaemonStatus summarizes daemon runtime health.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	DBPath       string         `json:"dbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Generation   map[string]int `json:"generation"`
}

// LocaleStatus is the best-known generate state for one locale.
type LocaleStatus struct {
	Locale          string     `json:"locale"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"lastError,omitempty"`
	NextAttemptAt   *time.Time `json:"nextAttemptAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	BaseFingerprint string     `json:"baseFingerprint"`
}

// GenerateStatusResponse is the per-content generate state view.
type GenerateStatusResponse struct {
	ContentID string         `json:"contentID"`
	Locales   []LocaleStatus `json:"locales"`
}

// GenerateResult reports what one enqueue pass did.
type GenerateResult struct {
	ContentID string            `json:"contentID"`
	Enqueued  []string          `json:"enqueued,omitempty"`
	Succeeded []string          `json:"succeeded,omitempty"`
	Skipped   map[string]string `json:"skipped,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// RetryResponse reports an operator re-trigger.
type RetryResponse struct {
	ContentID string         `json:"contentID"`
	Reopened  int64          `json:"reopened"`
	Result    GenerateResult `json:"result"`
}

// PublishResponse reports a publish or unpublish request.
type PublishResponse struct {
	ContentID        string    `json:"contentID"`
	State            string    `json:"state"`
	Revision         string    `json:"revision,omitempty"`
	PreviousRevision string    `json:"previousRevision,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}
