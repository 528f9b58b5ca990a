package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"glot/internal/api"
)

func runCommand(t *testing.T, server string, args ...string) string {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd := newRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if server != "" {
		args = append(args, "--server", server)
	}
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("glot %s: %v", strings.Join(args, " "), err)
	}
	return buf.String()
}

func TestStatusCommandRendersLocaleTable(t *testing.T) {
	next := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/content/wgt_1/generate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(api.GenerateStatusResponse{
			ContentID: "wgt_1",
			Locales: []api.LocaleStatus{
				{Locale: "de", Status: "succeeded", UpdatedAt: next},
				{Locale: "fr", Status: "failed", Attempts: 3, LastError: "executor timed out", NextAttemptAt: &next},
			},
		})
	}))
	defer srv.Close()

	out := runCommand(t, srv.URL, "status", "wgt_1")
	for _, want := range []string{"LOCALE", "de", "succeeded", "fr", "failed", "executor timed out"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCommandDaemonSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{
			Running:      true,
			DBPath:       "/data/glot.db",
			LockFilePath: "/logs/glotd.lock",
			Generation:   map[string]int{"succeeded": 4, "failed": 1},
		})
	}))
	defer srv.Close()

	out := runCommand(t, srv.URL, "status")
	for _, want := range []string{"running", "/data/glot.db", "succeeded", "4"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateCommandForceFlag(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(api.GenerateResult{ContentID: "wgt_1", Enqueued: []string{"fr"}})
	}))
	defer srv.Close()

	out := runCommand(t, srv.URL, "generate", "wgt_1", "--force")
	if gotPath != "/api/content/wgt_1/generate" || gotQuery != "force=1" {
		t.Fatalf("request = %s?%s", gotPath, gotQuery)
	}
	if !strings.Contains(out, "Enqueued: [fr]") {
		t.Fatalf("output = %q", out)
	}
}

func TestCommandSurfacesDaemonError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "publish budget exhausted"})
	}))
	defer srv.Close()

	cmd := newRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"publish", "wgt_1", "--server", srv.URL})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "publish budget exhausted") {
		t.Fatalf("err = %v", err)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out := runCommand(t, "", "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("output = %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[pipeline]") {
		t.Fatalf("sample missing pipeline section:\n%s", data)
	}

	// A second init must refuse to clobber the file.
	cmd := newRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("second init overwrote existing config")
	}
}
