package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JustinTDCT/CineHub/internal/httputil"
	"github.com/JustinTDCT/CineHub/internal/jobs"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

var ingestKinds = map[string]models.MediaType{
	"shows":  models.MediaTypeShow,
	"movies": models.MediaTypeMovie,
}

// POST /api/v1/ingest/{kind}?pages=N
func (s *Server) handleIngestStart(w http.ResponseWriter, r *http.Request) {
	kind, ok := ingestKinds[strings.ToLower(chi.URLParam(r, "kind"))]
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "UNKNOWN_KIND", "kind must be shows or movies")
		return
	}

	pages := s.deps.IngestPages
	if p := r.URL.Query().Get("pages"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "BAD_PARAM", "pages must be a positive number")
			return
		}
		pages = n
	}

	taskID, err := jobs.EnqueueIngest(s.deps.Queue, kind, jobs.IngestPayload{Pages: pages, StorageRoot: s.deps.StorageRoot})
	if err != nil {
		logger.Error("enqueue ingest failed", "kind", kind, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", "could not schedule ingestion")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id": taskID,
		"kind":    kind,
		"pages":   pages,
	})
}

func (s *Server) handleIngestGenres(w http.ResponseWriter, r *http.Request) {
	taskID, err := jobs.EnqueueGenres(s.deps.Queue)
	if err != nil {
		logger.Error("enqueue genre seed failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", "could not schedule genre seeding")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Status.List(r.Context())
	if err != nil {
		logger.Error("read ingest status failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "could not read ingestion status")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
