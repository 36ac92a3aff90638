package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jjtheshooterr/autobot/internal/leads"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// AdminLeadsHandler exposes lead inspection and bot control to the
// owner dashboard.
type AdminLeadsHandler struct {
	repo   leads.Repository
	logger *logging.Logger
}

func NewAdminLeadsHandler(repo leads.Repository, logger *logging.Logger) *AdminLeadsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminLeadsHandler{
		repo:   repo,
		logger: logger,
	}
}

// LeadResponse is the admin API shape of a lead row.
type LeadResponse struct {
	ExternalID   string  `json:"external_id"`
	Source       string  `json:"source"`
	Status       string  `json:"status"`
	BotEnabled   bool    `json:"bot_enabled"`
	Address      string  `json:"address,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	PendingSlot  string  `json:"pending_slot,omitempty"`
	PendingSince *string `json:"pending_since,omitempty"`
	BookedSlot   string  `json:"booked_slot,omitempty"`
	BookedEvent  string  `json:"booked_event_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func leadResponse(lead *leads.Lead) LeadResponse {
	resp := LeadResponse{
		ExternalID: lead.ExternalID,
		Source:     lead.Source,
		Status:     string(lead.Status),
		BotEnabled: lead.BotEnabled,
		Address:    lead.Address,
		Phone:      lead.Phone,
		CreatedAt:  lead.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  lead.UpdatedAt.Format(time.RFC3339),
	}
	if lead.Pending != nil {
		resp.PendingSlot = lead.Pending.SlotLabel
		since := lead.Pending.ClaimedAt.Format(time.RFC3339)
		resp.PendingSince = &since
	}
	if lead.Booked != nil {
		resp.BookedSlot = lead.Booked.SlotLabel
		resp.BookedEvent = lead.Booked.EventID
	}
	return resp
}

// GetLead returns one lead by its external id.
func (h *AdminLeadsHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	lead, err := h.repo.GetByExternalID(r.Context(), externalID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("admin lead lookup failed", "error", err, "external_id", externalID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, leadResponse(lead))
}

// SetBot toggles the bot for a lead, the kill switch for manual takeover.
func (h *AdminLeadsHandler) SetBot(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetBotEnabled(r.Context(), externalID, req.Enabled); err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.logger.Error("admin bot toggle failed", "error", err, "external_id", externalID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("bot toggled", "external_id", externalID, "enabled", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// ReleaseClaim drops a lead's pending slot hold so the slot can be
// offered again, used when a hold is stuck.
func (h *AdminLeadsHandler) ReleaseClaim(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")

	if err := h.repo.ReleasePendingClaim(r.Context(), externalID); err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.logger.Error("admin claim release failed", "error", err, "external_id", externalID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("pending claim released by admin", "external_id", externalID)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
