package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-invites/internal/auth"
	"ms-invites/internal/logger"
	"ms-invites/internal/models"
	"ms-invites/internal/rsvp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *rsvp.Service
	Logger  *logger.Logger
}

func NewHandler(service *rsvp.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// ---------------- PUBLIC ----------------

// SubmitRSVP accepts the public invitation page's group submission.
func (h *Handler) SubmitRSVP(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var sub rsvp.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	node, err := h.Service.SubmitPublicRSVP(r.Context(), eventID, &sub)
	if err != nil {
		h.respondError(w, "SubmitRSVP", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("SubmitRSVP: group %s stored for event %s", node.ID, eventID))
	writeJSON(w, http.StatusCreated, node)
}

// GetGuest serves the personalized RSVP page's guest payload.
func (h *Handler) GetGuest(w http.ResponseWriter, r *http.Request) {
	guestID := chi.URLParam(r, "guestID")

	guest, err := h.Service.GuestForRSVP(r.Context(), guestID)
	if err != nil {
		h.respondError(w, "GetGuest", err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

// SubmitGuestRSVP records a known guest's personalized answer.
func (h *Handler) SubmitGuestRSVP(w http.ResponseWriter, r *http.Request) {
	guestID := chi.URLParam(r, "guestID")

	var req struct {
		Attending *bool `json:"attending"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Attending == nil {
		http.Error(w, "attending is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.SubmitPersonalizedRSVP(r.Context(), guestID, *req.Attending); err != nil {
		h.respondError(w, "SubmitGuestRSVP", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ---------------- OWNER ----------------

// GetTree returns all groups with their guests for the owner's dashboard.
func (h *Handler) GetTree(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventID")

	tree, err := h.Service.Tree(r.Context(), eventID, userID)
	if err != nil {
		h.respondError(w, "GetTree", err)
		return
	}
	if tree == nil {
		tree = []models.GroupWithGuests{}
	}
	writeJSON(w, http.StatusOK, tree)
}

// CreateGroup lets the owner add a group of guests, which is how email
// events build their recipient list.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventID")

	var sub rsvp.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	node, err := h.Service.OwnerCreateGroup(r.Context(), eventID, userID, &sub)
	if err != nil {
		h.respondError(w, "CreateGroup", err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (h *Handler) PatchGuest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	guestID := chi.URLParam(r, "guestID")

	var patch models.GuestPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	guest, err := h.Service.PatchGuest(r.Context(), guestID, userID, &patch)
	if err != nil {
		h.respondError(w, "PatchGuest", err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

func (h *Handler) DeleteGuest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	guestID := chi.URLParam(r, "guestID")

	if err := h.Service.DeleteGuest(r.Context(), guestID, userID); err != nil {
		h.respondError(w, "DeleteGuest", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PatchGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	groupID := chi.URLParam(r, "groupID")

	var patch models.GroupPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	group, err := h.Service.PatchGroup(r.Context(), groupID, userID, &patch)
	if err != nil {
		h.respondError(w, "PatchGroup", err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	groupID := chi.URLParam(r, "groupID")

	if err := h.Service.DeleteGroup(r.Context(), groupID, userID); err != nil {
		h.respondError(w, "DeleteGroup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, rsvp.ErrEventNotFound):
		http.Error(w, "Event not found", http.StatusNotFound)
	case errors.Is(err, rsvp.ErrGuestNotFound):
		http.Error(w, "Guest not found", http.StatusNotFound)
	case errors.Is(err, rsvp.ErrGroupNotFound):
		http.Error(w, "Group not found", http.StatusNotFound)
	case errors.Is(err, rsvp.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, rsvp.ErrNoGuests), errors.Is(err, rsvp.ErrNameRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
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
