package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/fidc"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	circuits := map[string]string{}
	if s.breakers != nil {
		for provider, state := range s.breakers.States() {
			circuits[provider] = state.String()
		}
	}
	render.JSON(w, r, map[string]any{"status": "ok", "circuits": circuits})
}

func (s *Server) schemas(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"schemas": fidc.SupportedSchemas()})
}

var errOutsideSourceDir = errors.New("dir must be inside the configured source directory")

// dir resolves a client-supplied directory. Relative paths are taken from
// the source directory and nothing outside it is accepted.
func (s *Server) dir(requested string) (string, error) {
	if requested == "" {
		return s.sourceDir, nil
	}
	if s.sourceDir == "" {
		return "", errOutsideSourceDir
	}
	root, err := filepath.Abs(s.sourceDir)
	if err != nil {
		return "", err
	}
	target := requested
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideSourceDir
	}
	return target, nil
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	dir, err := s.dir(r.URL.Query().Get("dir"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	items, err := s.batcher.ListFilesWithPrompts(r.Context(), dir)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []fidc.RequestItem{}
	}
	render.JSON(w, r, map[string]any{"files": items})
}

type processRequest struct {
	Dir string `json:"dir"`
}

// process lists dir and runs the batch synchronously. Per-item failures are
// reported inside the result; only a listing failure is an HTTP error.
func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	dir, err := s.dir(req.Dir)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if !s.batchMu.TryLock() {
		writeError(w, r, http.StatusConflict, errors.New("a batch is already running"))
		return
	}
	defer s.batchMu.Unlock()

	items, err := s.batcher.ListFilesWithPrompts(r.Context(), dir)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, s.batcher.ProcessBatch(r.Context(), items))
}

func (s *Server) values(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.ConsolidatedValues(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, map[string]any{"values": rows})
}

func (s *Server) registrations(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.ConsolidatedRegistrations(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, map[string]any{"registrations": rows})
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	s.reports.ClearCache()
	render.NoContent(w, r)
}
