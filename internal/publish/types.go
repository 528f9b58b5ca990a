package publish

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pointer names the current immutable revision of a content's renders.
type Pointer struct {
	V                int       `json:"v"`
	ContentID        string    `json:"contentID"`
	Revision         string    `json:"revision"`
	PreviousRevision string    `json:"previousRevision,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// LocaleHashes are the artifact digests for one published locale.
type LocaleHashes struct {
	ContentHash string `json:"contentHash"`
	RenderHash  string `json:"renderHash"`
	MetaHash    string `json:"metaHash"`
}

// Index lists the locales a revision serves.
type Index struct {
	V         int                     `json:"v"`
	ContentID string                  `json:"contentID"`
	Current   map[string]LocaleHashes `json:"current"`
}

// Publish states reported by WaitForCanonical.
const (
	StatePublished  = "published"
	StatePublishing = "publishing"
)

func pointerKey(contentID string) string {
	return fmt.Sprintf("renders/%s/published.json", contentID)
}

func indexKey(contentID, revision string) string {
	return fmt.Sprintf("renders/%s/revisions/%s/index.json", contentID, revision)
}

func artifactKey(contentID, revision, locale, name string) string {
	return fmt.Sprintf("renders/%s/revisions/%s/%s/%s", contentID, revision, locale, name)
}

// newRevision builds a sortable, collision-resistant revision id from the
// base36 timestamp and a uuid fragment.
func newRevision(now time.Time) string {
	fragment := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + fragment
}
