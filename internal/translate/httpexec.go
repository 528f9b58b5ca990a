package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"glot/internal/services"
)

// HTTPExecutor talks to the translation executor over HTTP.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPExecutor builds an executor client. The timeout bounds the whole
// round trip including model latency.
func NewHTTPExecutor(baseURL string, timeout time.Duration) (*HTTPExecutor, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "executor", "base url is required", nil)
	}
	if timeout <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "executor", "timeout must be positive", nil)
	}
	return &HTTPExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Translate implements Executor.
func (e *HTTPExecutor) Translate(ctx context.Context, grant string, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "translate", "executor", "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/translate", bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "translate", "executor", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+grant)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "translate", "executor", "call executor", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "translate", "executor", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrDenied, "translate", "executor",
			fmt.Sprintf("executor rejected grant (status %d)", resp.StatusCode), nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, services.Wrap(services.ErrValidation, "translate", "executor",
			fmt.Sprintf("executor rejected request (status %d)", resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrTransient, "translate", "executor",
			fmt.Sprintf("executor unavailable (status %d)", resp.StatusCode), nil)
	}

	var out Response
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, services.Wrap(services.ErrValidation, "translate", "executor", "decode response", err)
	}
	return &out, nil
}
