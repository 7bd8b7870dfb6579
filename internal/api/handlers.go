package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shehryarbajwa/rentharvest/internal/coordinator"
	"github.com/shehryarbajwa/rentharvest/internal/export"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// Handler exposes the coordinator's command set over REST
type Handler struct {
	coord  *coordinator.Coordinator
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(coord *coordinator.Coordinator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		coord:  coord,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// StartSession handles POST /v1/session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Config.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusCreated, h.coord.Start(r.Context(), req.Config))
}

// GetSession handles GET /v1/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.coord.GetState())
}

// UpdateSession handles PUT /v1/session/items
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, h.coord.Update(r.Context(), req))
}

// StopSession handles DELETE /v1/session
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.coord.Stop(r.Context()))
}

// ExportSession handles GET /v1/session/export and streams the items as CSV
func (h *Handler) ExportSession(w http.ResponseWriter, r *http.Request) {
	snap := h.coord.GetState()
	site := snap.Config.Site
	if site == "" {
		site = "site"
	}
	name := fmt.Sprintf("cars_%s_%d.csv", site, h.now().UnixMilli())

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := export.WriteCSV(w, snap.Items); err != nil {
		h.logger.Warn("export stream failed", "err", err)
	}
}

// StorePayment handles POST /v1/payments
func (h *Handler) StorePayment(w http.ResponseWriter, r *http.Request) {
	var req models.StorePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, h.coord.StorePayment(req.URL, req.Data))
}

// GetPayment handles GET /v1/payments?url=
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "url query parameter is required", http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, h.coord.GetPayment(url))
}

// TrackTab handles POST /v1/tabs
func (h *Handler) TrackTab(w http.ResponseWriter, r *http.Request) {
	var req models.TrackTabRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, h.coord.TrackTab(req.URL))
}

// MostRecentTab handles GET /v1/tabs/recent
func (h *Handler) MostRecentTab(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.MostRecentTabResponse{Tab: h.coord.MostRecentTab()})
}

// CloseTabs handles POST /v1/tabs/close. An empty body closes secondary tabs.
func (h *Handler) CloseTabs(w http.ResponseWriter, r *http.Request) {
	var req models.CloseTabsRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, h.coord.CloseTabs(r.Context(), req.Pattern))
}

// TabLoaded handles POST /v1/tabs/loaded, the REST form of the tab-lifecycle feed
func (h *Handler) TabLoaded(w http.ResponseWriter, r *http.Request) {
	var ev models.TabLoadedEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	h.coord.TabLoaded(ev)
	w.WriteHeader(http.StatusAccepted)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.coord.GetState()
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": snap.Active,
		"items":  len(snap.Items),
	})
}
