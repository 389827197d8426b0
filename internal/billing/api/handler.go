package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-invites/internal/auth"
	"ms-invites/internal/billing"
	"ms-invites/internal/logger"
	"ms-invites/internal/models"
	"ms-invites/internal/sse"
)

type Handler struct {
	Stripe    *billing.StripeService
	Finalizer *billing.Finalizer
	Purchases billing.PurchaseStore
	Emitter   *sse.PurchaseEventEmitter
	Logger    *logger.Logger
}

func NewHandler(stripe *billing.StripeService, finalizer *billing.Finalizer, purchases billing.PurchaseStore, emitter *sse.PurchaseEventEmitter, log *logger.Logger) *Handler {
	return &Handler{Stripe: stripe, Finalizer: finalizer, Purchases: purchases, Emitter: emitter, Logger: log}
}

// ListProducts serves the pricing page catalog. Public route.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Stripe.ListProducts(r.Context())
	if err != nil {
		http.Error(w, "Could not fetch products", http.StatusBadGateway)
		return
	}
	if products == nil {
		products = []models.StripeProduct{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.Stripe.CreateCheckoutSession(r.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, billing.ErrPriceRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("CreateCheckoutSession: %v", err))
		http.Error(w, "Could not create checkout session", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// VerifySession lets the dashboard poll a session after the Stripe redirect.
// It reads Stripe state only; crediting happens exclusively in the webhook.
func (h *Handler) VerifySession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	verification, err := h.Stripe.VerifySession(r.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrSessionForbidden) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("VerifySession: %v", err))
		http.Error(w, "Could not verify session", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

// ListPurchases serves the user's purchase history.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	purchases, err := h.Purchases.ListPurchases(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPurchases: %v", err))
		http.Error(w, "Could not fetch purchases", http.StatusInternalServerError)
		return
	}
	if purchases == nil {
		purchases = []models.PurchaseRecord{}
	}
	writeJSON(w, http.StatusOK, purchases)
}

// HandleWebhook receives Stripe deliveries. The route is public; the
// signature check inside HandleWebhook is the authentication.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Stripe.HandleWebhook(r, h.Finalizer); err != nil {
		var webhookErr *billing.WebhookError
		if errors.As(err, &webhookErr) {
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

// StreamPurchases streams finalized purchases to the dashboard over SSE.
// EventSource cannot set headers, so the token arrives as a query param and
// is parsed here instead of in the OIDC middleware.
func (h *Handler) StreamPurchases(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := auth.ExtractUserIDFromJWT(token)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Token parsing failed: %v", err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	ctx := r.Context()
	purchaseChan := h.Emitter.SubscribeToUser(ctx, userID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to purchase stream for user %s", userID))

	for {
		select {
		case record, ok := <-purchaseChan:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(record)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize purchase event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: purchase\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from purchase stream for user %s", userID))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
