package waterfall

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the waterfall over HTTP using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/surfaces/{surface_id:[^/]+}/interstitial", h.ShowInterstitial)
	r.Route("/sources", func(r chi.Router) {
		r.Get("/", h.ListSources)
		r.Post("/reload", h.Reload)
	})
}

type showRequest struct {
	Placement string `json:"placement"`
}

type showResponse struct {
	Shown     bool   `json:"shown"`
	SurfaceID string `json:"surface_id"`
}

// ShowInterstitial handles POST /surfaces/{surface_id}/interstitial.
// Body (optional): { "placement": "level_end" }.
// Responds 200 when an ad was displayed and 202 when none was ready; a reload
// runs in the background and the caller should retry later. An empty surface
// id does not match the route and gets chi's 404.
func (h *Handler) ShowInterstitial(w http.ResponseWriter, r *http.Request) {
	surfaceID := chi.URLParam(r, "surface_id")

	var req showRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug("invalid show body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	surface := Surface{ID: surfaceID, Placement: req.Placement}
	shown := h.svc.ShowInterstitial(surface)

	status := http.StatusOK
	if !shown {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, showResponse{Shown: shown, SurfaceID: surfaceID})
}

// ListSources handles GET /sources.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Sources())
}

// Reload handles POST /sources/reload. The load cycle is bounded by the
// request context, so a client that disconnects stops waiting on it.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Reload(r.Context()))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("write response failed", slog.String("error", err.Error()))
	}
}
