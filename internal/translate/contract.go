package translate

import (
	"context"
	"time"

	"glot/internal/l10n"
)

// Item is one translatable unit sent to the executor.
type Item struct {
	Path  string    `json:"path"`
	Kind  l10n.Kind `json:"kind"`
	Value string    `json:"value"`
}

// Request is the executor's input contract.
type Request struct {
	ContentID       string    `json:"content_id"`
	Locale          string    `json:"locale"`
	BaseFingerprint string    `json:"base_fingerprint"`
	BaseUpdatedAt   time.Time `json:"base_updated_at"`
	Items           []Item    `json:"items"`
}

// Output is one translated unit returned by the executor.
type Output struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// Response is the executor's output contract: exactly one output per input
// item, same paths, any order.
type Response struct {
	Items []Output `json:"items"`
}

// Executor calls the external translation service. The grant authorizes the
// call and scopes the providers and models the executor may use.
type Executor interface {
	Translate(ctx context.Context, grant string, req Request) (*Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, grant string, req Request) (*Response, error)

// Translate implements Executor.
func (f ExecutorFunc) Translate(ctx context.Context, grant string, req Request) (*Response, error) {
	return f(ctx, grant, req)
}
