package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-invites/internal/auth"
	"ms-invites/internal/ledger"
	"ms-invites/internal/logger"
	"ms-invites/internal/models"
)

type Handler struct {
	Service *ledger.Service
	Logger  *logger.Logger
}

func NewHandler(service *ledger.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// GetBalances serves the dashboard's per-product-type credit summary.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	balances, err := h.Service.Balances(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBalances: %v", err))
		http.Error(w, "Could not fetch balances", http.StatusInternalServerError)
		return
	}
	if balances == nil {
		balances = []models.BalanceSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balances)
}
