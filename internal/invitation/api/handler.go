package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-invites/internal/auth"
	"ms-invites/internal/invitation"
	"ms-invites/internal/ledger"
	"ms-invites/internal/logger"

	"github.com/go-chi/chi/v5"
)

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type Handler struct {
	Service *invitation.Service
	Logger  *logger.Logger
}

func NewHandler(service *invitation.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// SendInvitation delivers one guest's invitation email.
func (h *Handler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	guestID := chi.URLParam(r, "guestID")

	result, err := h.Service.SendGuestInvitation(r.Context(), guestID, userID)
	if err != nil {
		h.respondError(w, "SendInvitation", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("SendInvitation: guest %s status=%s", guestID, result.Status))
	writeJSON(w, http.StatusOK, result)
}

// SendAllInvitations delivers to every addressable guest of the event.
// ?pendingOnly=true restricts the run to guests not yet sent to.
func (h *Handler) SendAllInvitations(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventID")
	pendingOnly := r.URL.Query().Get("pendingOnly") == "true"

	result, err := h.Service.SendAllInvitations(r.Context(), eventID, userID, pendingOnly)
	if err != nil {
		h.respondError(w, "SendAllInvitations", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TrackPixel records an email open and always answers with the GIF, so a
// broken guest id still renders in the mail client.
func (h *Handler) TrackPixel(w http.ResponseWriter, r *http.Request) {
	guestID := chi.URLParam(r, "guestID")

	h.Service.TrackOpen(r.Context(), guestID)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Length", strconv.Itoa(len(trackingPixel)))
	w.WriteHeader(http.StatusOK)
	w.Write(trackingPixel)
}

// InvitationQR renders the guest's personalized RSVP link as a QR PNG.
func (h *Handler) InvitationQR(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	guestID := chi.URLParam(r, "guestID")

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			size = parsed
		}
	}

	png, err := h.Service.InvitationQR(r.Context(), guestID, userID, size)
	if err != nil {
		h.respondError(w, "InvitationQR", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.Is(err, invitation.ErrEventNotFound):
		http.Error(w, "Event not found", http.StatusNotFound)
	case errors.Is(err, invitation.ErrGuestNotFound):
		http.Error(w, "Guest not found", http.StatusNotFound)
	case errors.Is(err, invitation.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, invitation.ErrNotEmailEvent), errors.Is(err, invitation.ErrGuestNoEmail):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &insufficient):
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
