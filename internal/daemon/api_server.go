package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"glot/internal/api"
	"glot/internal/config"
	"glot/internal/logging"
	"glot/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/content/", authMiddleware(token, srv.handleContent))
	// The render surface is the public read path and carries no credentials.
	mux.HandleFunc("/render/", srv.handleRender)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

// handleContent dispatches /api/content/{id}/{action}.
func (s *apiServer) handleContent(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/content/")
	contentID, action, ok := strings.Cut(rest, "/")
	if !ok || contentID == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "generate":
		s.handleGenerate(w, r, contentID)
	case "retry":
		s.handleRetry(w, r, contentID)
	case "publish":
		s.handlePublish(w, r, contentID)
	case "unpublish":
		s.handleUnpublish(w, r, contentID)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request, contentID string) {
	switch r.Method {
	case http.MethodGet:
		resp, err := s.daemon.Generate().Status(r.Context(), contentID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		force := queryFlag(r, "force")
		result, err := s.daemon.Generate().Trigger(r.Context(), contentID, force)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, result)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request, contentID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.daemon.Generate().Retry(r.Context(), contentID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handlePublish(w http.ResponseWriter, r *http.Request, contentID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	wait := !queryFlag(r, "nowait")
	state, ptr, err := s.daemon.Publisher().Publish(r.Context(), contentID, wait)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := api.PublishResponse{ContentID: contentID, State: state}
	if ptr != nil {
		resp.Revision = ptr.Revision
		resp.PreviousRevision = ptr.PreviousRevision
		resp.UpdatedAt = ptr.UpdatedAt
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleUnpublish(w http.ResponseWriter, r *http.Request, contentID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.Publisher().Unpublish(r.Context(), contentID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PublishResponse{ContentID: contentID, State: "unpublished"})
}

// handleRender serves the pointer and revision index documents:
// /render/{id}/published.json and /render/{id}/revisions/{rev}/index.json.
func (s *apiServer) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/render/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "published.json":
		ptr, err := s.daemon.Publisher().Pointer(r.Context(), parts[0])
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if ptr == nil {
			s.writeError(w, http.StatusNotFound, "not published")
			return
		}
		s.writeJSON(w, http.StatusOK, ptr)
	case len(parts) == 4 && parts[1] == "revisions" && parts[3] == "index.json":
		index, err := s.daemon.Publisher().RevisionIndex(r.Context(), parts[0], parts[2])
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if index == nil {
			s.writeError(w, http.StatusNotFound, "revision not found")
			return
		}
		s.writeJSON(w, http.StatusOK, index)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func queryFlag(r *http.Request, name string) bool {
	value := r.URL.Query().Get(name)
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrDenied):
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
