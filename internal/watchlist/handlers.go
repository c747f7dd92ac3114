// Package watchlist lets a signed-in user mark media as watching, watched or
// plan-to-watch. Those entries drive the catalog's watch-type filter and the
// others-watched pass.
package watchlist

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JustinTDCT/CineHub/internal/auth"
	"github.com/JustinTDCT/CineHub/internal/httputil"
	"github.com/JustinTDCT/CineHub/internal/media"
	"github.com/JustinTDCT/CineHub/internal/models"
)

type Store interface {
	SetWatch(ctx context.Context, mediaID, userID string, wt models.WatchType) error
	ClearWatch(ctx context.Context, mediaID, userID string) error
	ListWatches(ctx context.Context, userID string) ([]models.MediaWatcher, error)
}

type Entry struct {
	MediaID   string `json:"media_id"`
	WatchType string `json:"watch_type"`
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Router wraps every route in requireAuth; handlers rely on a context user.
func (h *Handler) Router(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(requireAuth)
	r.Get("/", h.list)
	r.Put("/{mediaID}", h.set)
	r.Delete("/{mediaID}", h.clear)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	watches, err := h.store.ListWatches(r.Context(), u.UserID)
	if err != nil {
		media.WriteCatalogError(w, err)
		return
	}
	entries := make([]Entry, 0, len(watches))
	for _, wt := range watches {
		entries = append(entries, Entry{MediaID: wt.MediaID, WatchType: wt.WatchType.String()})
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())

	var req struct {
		WatchType string `json:"watch_type"`
	}
	if err := httputil.ReadJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	wt, ok := models.ParseWatchType(req.WatchType)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_PARAM", "watch_type must be watching, watched or plantowatch")
		return
	}

	mediaID := chi.URLParam(r, "mediaID")
	if err := h.store.SetWatch(r.Context(), mediaID, u.UserID, wt); err != nil {
		media.WriteCatalogError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Entry{MediaID: mediaID, WatchType: wt.String()})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if err := h.store.ClearWatch(r.Context(), chi.URLParam(r, "mediaID"), u.UserID); err != nil {
		media.WriteCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
