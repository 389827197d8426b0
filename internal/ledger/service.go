package ledger

import (
	"context"
	"fmt"

	"ms-invites/internal/logger"
	"ms-invites/internal/models"
)

// InsufficientBalanceError rejects a publish or send that would exceed the
// available credits. Needed and Available are included so the frontend can
// prompt a top-up with the exact shortfall.
type InsufficientBalanceError struct {
	Needed    int `json:"needed"`
	Available int `json:"available"`
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient invitation balance: needed %d, available %d", e.Needed, e.Available)
}

type BalanceStore interface {
	GetBalance(ctx context.Context, userID, productType string) (*models.InvitationBalance, error)
	ListBalances(ctx context.Context, userID string) ([]models.InvitationBalance, error)
	AddPurchased(ctx context.Context, userID, productType string, quantity int) error
	AddUsed(ctx context.Context, userID, productType string, n int) error
}

// ReservationReader computes how much capacity a user's published events
// currently hold for a product type. Implemented by the event service.
type ReservationReader interface {
	ReservedCapacity(ctx context.Context, userID, productType string) (int, error)
}

// Service answers balance questions. Availability shown to users and used
// for publish gating is reservation-based (purchased minus the capacity held
// by published events); the usage counters still gate email sends.
type Service struct {
	Store        BalanceStore
	Reservations ReservationReader
	Logger       *logger.Logger
}

func NewService(store BalanceStore, reservations ReservationReader, log *logger.Logger) *Service {
	return &Service{Store: store, Reservations: reservations, Logger: log}
}

// TotalPurchased returns the purchased counter, defaulting to 0 when the
// user has never bought credits of this product type.
func (s *Service) TotalPurchased(ctx context.Context, userID, productType string) (int, error) {
	balance, err := s.Store.GetBalance(ctx, userID, productType)
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	if balance == nil {
		return 0, nil
	}
	return balance.TotalPurchased, nil
}

// Available is the reservation-based availability: purchased minus the
// capacity reserved by all published events of this product type. The raw
// difference may be negative; callers gating a mutation must compare against
// it unclamped.
func (s *Service) Available(ctx context.Context, userID, productType string) (int, error) {
	purchased, err := s.TotalPurchased(ctx, userID, productType)
	if err != nil {
		return 0, err
	}
	reserved, err := s.Reservations.ReservedCapacity(ctx, userID, productType)
	if err != nil {
		return 0, fmt.Errorf("compute reservations: %w", err)
	}
	return purchased - reserved, nil
}

// UsageAvailable is the purchase-vs-usage difference that gates email sends:
// purchased minus used, unclamped.
func (s *Service) UsageAvailable(ctx context.Context, userID, productType string) (int, error) {
	balance, err := s.Store.GetBalance(ctx, userID, productType)
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	if balance == nil {
		return 0, nil
	}
	return balance.TotalPurchased - balance.TotalUsed, nil
}

// Balances returns the enriched per-product-type summaries for the dashboard.
// Available is clamped at zero here: this is display, not gating.
func (s *Service) Balances(ctx context.Context, userID string) ([]models.BalanceSummary, error) {
	rows, err := s.Store.ListBalances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	summaries := make([]models.BalanceSummary, 0, len(rows))
	for _, row := range rows {
		reserved, err := s.Reservations.ReservedCapacity(ctx, userID, row.ProductType)
		if err != nil {
			return nil, fmt.Errorf("compute reservations for %s: %w", row.ProductType, err)
		}
		available := row.TotalPurchased - reserved
		if available < 0 {
			available = 0
		}
		summaries = append(summaries, models.BalanceSummary{
			ProductType:    row.ProductType,
			TotalPurchased: row.TotalPurchased,
			TotalUsed:      row.TotalUsed,
			TotalReserved:  reserved,
			Available:      available,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return summaries, nil
}

// DebitUsage increments total_used by n. Called by the RSVP and invitation
// flows once usage is confirmed; the increment is atomic in the store.
func (s *Service) DebitUsage(ctx context.Context, userID, productType string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := s.Store.AddUsed(ctx, userID, productType, n); err != nil {
		return fmt.Errorf("debit usage: %w", err)
	}
	if s.Logger != nil {
		s.Logger.LogLedger("DEBIT", userID, fmt.Sprintf("%s -%d", productType, n))
	}
	return nil
}
