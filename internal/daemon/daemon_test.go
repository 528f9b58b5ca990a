package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"glot/internal/api"
	"glot/internal/config"
	"glot/internal/content"
	"glot/internal/l10n"
	"glot/internal/logging"
	"glot/internal/publish"
	"glot/internal/translate"
)

// fakeExecutor serves the executor HTTP contract, prefixing every value
// with the target locale.
func fakeExecutor(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing grant", http.StatusUnauthorized)
			return
		}
		var req translate.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := translate.Response{}
		for _, item := range req.Items {
			resp.Items = append(resp.Items, translate.Output{
				Path:  item.Path,
				Value: req.Locale + ":" + item.Value,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, executorURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.RenderDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.APIToken = ""
	cfg.Queue.URL = ""
	cfg.Locales.Canonical = "en"
	cfg.Locales.Supported = []string{"en", "fr"}
	cfg.Capability.SigningKey = "test-signing-key"
	cfg.Executor.BaseURL = executorURL
	cfg.Publish.WaitTimeoutSeconds = 2
	cfg.Publish.PollIntervalMS = 10
	return &cfg
}

func startDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(t.Context()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	return d
}

func seedContent(t *testing.T, d *Daemon) {
	t.Helper()
	ctx := t.Context()
	src := content.NewSQLiteSource(d.DB())
	err := src.PutContent(ctx, content.Info{
		ID:          "wgt_1",
		WorkspaceID: "ws_1",
		WidgetType:  "faq",
		Object:      map[string]any{"title": "Hello", "items": []any{map[string]any{"q": "Why?"}}},
		UpdatedAt:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("put content: %v", err)
	}
	if err := src.SetActiveLocales(ctx, "ws_1", []string{"fr"}); err != nil {
		t.Fatalf("set locales: %v", err)
	}
	err = src.PutAllowlist(ctx, "faq", l10n.Allowlist{
		{Path: "title", Kind: l10n.KindString},
		{Path: "items.*.q", Kind: l10n.KindString},
	})
	if err != nil {
		t.Fatalf("put allowlist: %v", err)
	}
}

func request(t *testing.T, method, url string, want int) []byte {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("%s %s = %d, want %d: %s", method, url, resp.StatusCode, want, body)
	}
	return body
}

func TestDaemonGenerateAndPublishOverAPI(t *testing.T) {
	executor := fakeExecutor(t)
	d := startDaemon(t, testConfig(t, executor.URL))
	seedContent(t, d)
	base := "http://" + d.APIAddr()

	// The in-process queue dispatches synchronously, so the translate
	// worker has already run when the trigger returns.
	var result api.GenerateResult
	if err := json.Unmarshal(request(t, http.MethodPost, base+"/api/content/wgt_1/generate", http.StatusAccepted), &result); err != nil {
		t.Fatalf("decode trigger: %v", err)
	}
	if len(result.Enqueued) != 1 || result.Enqueued[0] != "fr" {
		t.Fatalf("enqueued = %v", result.Enqueued)
	}

	var status api.GenerateStatusResponse
	if err := json.Unmarshal(request(t, http.MethodGet, base+"/api/content/wgt_1/generate", http.StatusOK), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(status.Locales) != 1 || status.Locales[0].Status != "succeeded" {
		t.Fatalf("locales = %+v", status.Locales)
	}

	var published api.PublishResponse
	if err := json.Unmarshal(request(t, http.MethodPost, base+"/api/content/wgt_1/publish", http.StatusOK), &published); err != nil {
		t.Fatalf("decode publish: %v", err)
	}
	if published.State != publish.StatePublished || published.Revision == "" {
		t.Fatalf("publish = %+v", published)
	}

	var ptr publish.Pointer
	if err := json.Unmarshal(request(t, http.MethodGet, base+"/render/wgt_1/published.json", http.StatusOK), &ptr); err != nil {
		t.Fatalf("decode pointer: %v", err)
	}
	if ptr.Revision != published.Revision {
		t.Fatalf("pointer revision = %q, want %q", ptr.Revision, published.Revision)
	}

	var index publish.Index
	indexURL := fmt.Sprintf("%s/render/wgt_1/revisions/%s/index.json", base, ptr.Revision)
	if err := json.Unmarshal(request(t, http.MethodGet, indexURL, http.StatusOK), &index); err != nil {
		t.Fatalf("decode index: %v", err)
	}
	for _, locale := range []string{"en", "fr"} {
		if _, ok := index.Current[locale]; !ok {
			t.Fatalf("index missing %s: %+v", locale, index.Current)
		}
	}

	request(t, http.MethodPost, base+"/api/content/wgt_1/unpublish", http.StatusOK)
	request(t, http.MethodGet, base+"/render/wgt_1/published.json", http.StatusNotFound)
}

func TestDaemonStatusEndpoint(t *testing.T) {
	executor := fakeExecutor(t)
	d := startDaemon(t, testConfig(t, executor.URL))
	base := "http://" + d.APIAddr()

	var status api.DaemonStatus
	if err := json.Unmarshal(request(t, http.MethodGet, base+"/api/status", http.StatusOK), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.LockFilePath == "" {
		t.Fatalf("status = %+v", status)
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	executor := fakeExecutor(t)
	cfg := testConfig(t, executor.URL)
	startDaemon(t, cfg)

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if err := second.Start(t.Context()); err == nil {
		t.Fatal("second instance acquired the lock")
	}
}

func TestAPITokenGuardsOperatorRoutes(t *testing.T) {
	executor := fakeExecutor(t)
	cfg := testConfig(t, executor.URL)
	cfg.Paths.APIToken = "secret"
	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()

	request(t, http.MethodGet, base+"/api/status", http.StatusUnauthorized)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, base+"/api/status", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status = %d", resp.StatusCode)
	}

	// Render reads stay public.
	request(t, http.MethodGet, base+"/render/wgt_1/published.json", http.StatusNotFound)
}
