package jobqueue

import "time"

// TranslateJob asks a worker to translate one locale of one content at one
// fingerprint. The job carries everything needed to resume without
// re-fetching the triggering diff.
type TranslateJob struct {
	ContentID       string    `json:"content_id"`
	WidgetType      string    `json:"widget_type"`
	Locale          string    `json:"locale"`
	BaseFingerprint string    `json:"base_fingerprint"`
	BaseUpdatedAt   time.Time `json:"base_updated_at"`
	ChangedPaths    []string  `json:"changed_paths"`
	RemovedPaths    []string  `json:"removed_paths"`
	WorkspaceID     string    `json:"workspace_id"`
	Grant           string    `json:"grant"`
	TraceID         string    `json:"trace_id"`
}

// Publish job actions.
const (
	PublishActionUpsert = "upsert"
	PublishActionDelete = "delete"
)

// PublishJob asks the publish worker to regenerate or retire renders.
type PublishJob struct {
	ContentID string   `json:"content_id"`
	Locales   []string `json:"locales"`
	Action    string   `json:"action"`
	TraceID   string   `json:"trace_id"`
}
