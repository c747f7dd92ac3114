// Package media serves the catalog's read and edit endpoints.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JustinTDCT/CineHub/internal/auth"
	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/httputil"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxUploadBytes  = 32 << 20
)

type Reconciler interface {
	Reconcile(ctx context.Context, p *models.EditPayload, requestingUserID, storageRoot string) (string, error)
}

type Handler struct {
	pipeline    *catalog.QueryPipeline
	reconciler  Reconciler
	storageRoot string
}

func NewHandler(pipeline *catalog.QueryPipeline, reconciler Reconciler, storageRoot string) *Handler {
	return &Handler{pipeline: pipeline, reconciler: reconciler, storageRoot: storageRoot}
}

// Router mounts the media routes. requireAuth guards the write endpoint.
func (h *Handler) Router(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/batch", h.batch)
	r.With(requireAuth).Post("/", h.edit)
	r.Get("/{id}", h.getByID)
	r.Get("/{id}/complete", h.complete)
	return r
}

// WriteCatalogError maps catalog sentinels onto HTTP statuses.
func WriteCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrTypeResolution):
		httputil.WriteError(w, http.StatusBadRequest, "UNKNOWN_MEDIA_TYPE", err.Error())
	case errors.Is(err, catalog.ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "media not found")
	default:
		logger.Error("catalog request failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// ──────── Query ────────

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_PARAM", err.Error())
		return
	}
	if user := auth.UserFromContext(r.Context()); user != nil {
		q.UserID = user.UserID
	}

	res, err := h.pipeline.Page(r.Context(), q)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func parseQuery(r *http.Request) (models.MediaQuery, error) {
	v := r.URL.Query()
	q := models.MediaQuery{
		Page:      1,
		PageSize:  defaultPageSize,
		MediaType: v.Get("type"),
		WatchType: v.Get("watch_type"),
		Search:    v.Get("search"),
		Sort:      v.Get("sort"),
	}

	var err error
	if s := v.Get("page"); s != "" {
		if q.Page, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("page: %q is not a number", s)
		}
	}
	if s := v.Get("page_size"); s != "" {
		if q.PageSize, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("page_size: %q is not a number", s)
		}
		if q.PageSize > maxPageSize {
			q.PageSize = maxPageSize
		}
	}
	for _, s := range splitList(v["keyword"]) {
		id, err := strconv.Atoi(s)
		if err != nil {
			return q, fmt.Errorf("keyword: %q is not an id", s)
		}
		q.KeywordIDs = append(q.KeywordIDs, id)
	}
	q.Genres = splitList(v["genre"])
	if s := v.Get("include_unwatched"); s != "" {
		if q.IncludeUnwatched, err = strconv.ParseBool(s); err != nil {
			return q, fmt.Errorf("include_unwatched: %q is not a boolean", s)
		}
	}
	return q, nil
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (h *Handler) getByID(w http.ResponseWriter, r *http.Request) {
	m, err := h.pipeline.Details(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	title, err := h.pipeline.IncompleteTitle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"complete": title == "",
		"title":    title,
	})
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := httputil.ReadJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	items, err := h.pipeline.Batch(r.Context(), req.IDs)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

// ──────── Edit ────────

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	p, err := payloadFromForm(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_PARAM", err.Error())
		return
	}

	file, header, err := r.FormFile("poster")
	switch {
	case err == nil:
		defer file.Close()
		p.Poster = &models.ImageUpload{FileName: header.Filename, Content: file}
	case !errors.Is(err, http.ErrMissingFile):
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "poster: "+err.Error())
		return
	}

	id, err := h.reconciler.Reconcile(r.Context(), p, user.UserID, h.storageRoot)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"id": id})
}

func payloadFromForm(r *http.Request) (*models.EditPayload, error) {
	p := &models.EditPayload{
		ID:         r.FormValue("id"),
		MediaType:  r.FormValue("media_type"),
		Title:      r.FormValue("title"),
		Overview:   r.FormValue("overview"),
		Language:   r.FormValue("language"),
		TrailerURL: r.FormValue("trailer_url"),
		Genres:     r.FormValue("genres"),
		Keywords:   r.FormValue("keywords"),
	}

	if s := r.FormValue("runtime"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("runtime: %q is not a number", s)
		}
		p.Runtime = &n
	}
	if s := r.FormValue("budget"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("budget: %q is not a number", s)
		}
		p.Budget = &n
	}
	if s := r.FormValue("external_id"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("external_id: %q is not a number", s)
		}
		p.ExternalID = n
	}
	if s := r.FormValue("release_date"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("release_date: %q is not YYYY-MM-DD", s)
		}
		p.ReleaseDate = &d
	}
	return p, nil
}
