package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-invites/internal/auth"
	"ms-invites/internal/event"
	"ms-invites/internal/ledger"
	"ms-invites/internal/logger"
	"ms-invites/internal/models"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *event.Service
	Logger  *logger.Logger
}

func NewHandler(service *event.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var patch models.EventPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.Service.CreateEvent(r.Context(), userID, &patch)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateEvent: %v", err))
		http.Error(w, "Could not create event", http.StatusInternalServerError)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateEvent: created event %s", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	events, err := h.Service.ListEvents(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListEvents: %v", err))
		http.Error(w, "Could not list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventID")

	ev, err := h.Service.GetEvent(r.Context(), eventID, userID)
	if err != nil {
		h.respondError(w, "GetEvent", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) PatchEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventID")

	var patch models.EventPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.Service.PatchEvent(r.Context(), eventID, userID, &patch)
	if err != nil {
		h.respondError(w, "PatchEvent", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("PatchEvent: event %s updated", eventID))
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventID")

	if err := h.Service.DeleteEvent(r.Context(), eventID, userID); err != nil {
		h.respondError(w, "DeleteEvent", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublicEvent serves the invitation page payload without authentication.
func (h *Handler) PublicEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	ev, err := h.Service.PublicEvent(r.Context(), eventID)
	if err != nil {
		h.respondError(w, "PublicEvent", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.Is(err, event.ErrEventNotFound):
		http.Error(w, "Event not found", http.StatusNotFound)
	case errors.Is(err, event.ErrNoFields):
		http.Error(w, "No fields to update", http.StatusBadRequest)
	case errors.As(err, &insufficient):
		// The shortfall is part of the contract: the UI prompts a top-up.
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":     insufficient.Error(),
			"needed":    insufficient.Needed,
			"available": insufficient.Available,
		})
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
