package playout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teampat/obs-playout-mac/internal/media"
	"github.com/teampat/obs-playout-mac/internal/settings"
	"github.com/teampat/obs-playout-mac/internal/switcher"
)

// Handler exposes the playout HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	store   *settings.Store
	catalog *media.Catalog
	log     *slog.Logger
}

// NewHandler returns a Handler over the given Service, settings Store, and
// media Catalog.
func NewHandler(svc *Service, store *settings.Store, catalog *media.Catalog, log *slog.Logger) *Handler {
	return &Handler{svc: svc, store: store, catalog: catalog, log: log}
}

// Register mounts all playout endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/play", h.Play)
	r.Post("/image", h.Image)
	r.Post("/stop", h.Stop)
	r.Get("/state", h.State)
	r.Get("/media", h.Media)
	r.Post("/scene", h.SetScene)
	r.Get("/scenes", h.Scenes)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
	r.Post("/obs/connect", h.Connect)
	r.Post("/obs/disconnect", h.Disconnect)
}

type pathRequest struct {
	Path string `json:"path"`
}

// Play handles POST /api/play. Body: { "path": "/media/clip.mp4" }.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.svc.PlayVideo(r.Context(), req.Path); err != nil {
		h.writeTransitionError(w, "play video", req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// Image handles POST /api/image. Body: { "path": "/media/pic.png" }.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.svc.ShowImage(r.Context(), req.Path); err != nil {
		h.writeTransitionError(w, "show image", req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// Stop handles POST /api/stop. It always succeeds: clearing the on-air
// record locally is the primary success criterion.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.svc.StopAll(r.Context())
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// State handles GET /api/state, returning the same payload an observer
// receives on join.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// Media handles GET /api/media.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List()
	if err != nil {
		h.log.Error("media scan failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "media scan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media": items})
}

// SetScene handles POST /api/scene. Body: { "scene": "Program" }. An empty
// scene switches to follow mode.
func (h *Handler) SetScene(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene string `json:"scene"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.store.SaveTargetScene(req.Scene); err != nil {
		h.log.Error("save target scene failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save target scene")
		return
	}
	h.log.Info("target scene updated", slog.String("scene", req.Scene))
	w.WriteHeader(http.StatusOK)
}

// Scenes handles GET /api/scenes, listing the scenes OBS knows about so an
// operator can pick a target scene. Requires a live connection.
func (h *Handler) Scenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := h.svc.Scenes(r.Context())
	if err != nil {
		if errors.Is(err, ErrNotConnected) || errors.Is(err, switcher.ErrNotConnected) {
			writeError(w, http.StatusConflict, ErrNotConnected.Error())
			return
		}
		h.log.Error("list scenes failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Current())
}

// PutSettings handles PUT /api/settings. Changing the OBS URL or credential
// drops any live engine connection; the operator reconnects explicitly.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	old := h.store.Current()
	if err := h.store.Save(req); err != nil {
		h.log.Error("save settings failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	if req.OBSURL != old.OBSURL || req.OBSPassword != old.OBSPassword {
		h.log.Info("obs endpoint changed, dropping connection")
		h.svc.DisconnectEngine()
	}
	writeJSON(w, http.StatusOK, h.store.Current())
}

// Connect handles POST /api/obs/connect.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ConnectEngine(r.Context()); err != nil {
		h.log.Error("obs connect failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// Disconnect handles POST /api/obs/disconnect. Idempotent.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.svc.DisconnectEngine()
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// writeTransitionError maps state machine failures to HTTP statuses:
// invalid path 400, not connected 409, engine failure 502.
func (h *Handler) writeTransitionError(w http.ResponseWriter, op, path string, err error) {
	switch {
	case IsInvalidPath(err):
		h.log.Info("rejected path outside media root",
			slog.String("op", op),
			slog.String("path", path))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotConnected), errors.Is(err, switcher.ErrNotConnected):
		writeError(w, http.StatusConflict, ErrNotConnected.Error())
	default:
		h.log.Error("transition failed",
			slog.String("op", op),
			slog.String("path", path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a consistent JSON error payload.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
