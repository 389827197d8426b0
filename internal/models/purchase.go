package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PurchaseRecord is one completed Stripe checkout session. The unique
// checkout_session_id column is the idempotency guard against duplicate
// webhook delivery: a given session credits the ledger at most once.
//
// The event-patch intent from the session metadata is persisted alongside
// the payment so the reconciler can retry steps that failed after the
// record was inserted (balance_applied / event_applied).
type PurchaseRecord struct {
	bun.BaseModel `bun:"table:invitation_purchases"`

	ID                  int64     `bun:"id,pk,autoincrement" json:"id"`
	CheckoutSessionID   string    `bun:"checkout_session_id,notnull,unique" json:"checkout_session_id"`
	StripeEventID       string    `bun:"stripe_event_id" json:"stripe_event_id"`
	UserID              string    `bun:"user_id,notnull" json:"user_id"`
	ProductType         string    `bun:"product_type,notnull" json:"product_type"`
	PackName            string    `bun:"pack_name" json:"pack_name"`
	Quantity            int       `bun:"quantity,notnull" json:"quantity"`
	Price               float64   `bun:"price" json:"price"`
	Currency            string    `bun:"currency" json:"currency"`
	PaymentStatus       string    `bun:"payment_status" json:"payment_status"`
	UnitType            string    `bun:"unit_type" json:"unit_type"`
	EventID             string    `bun:"event_id" json:"event_id,omitempty"`
	TargetMaxGuests     int       `bun:"target_max_guests" json:"target_max_guests,omitempty"`
	HasTargetMaxGuests  bool      `bun:"has_target_max_guests" json:"-"`
	PublishAfterPayment bool      `bun:"publish_after_payment" json:"publish_after_payment"`
	BalanceApplied      bool      `bun:"balance_applied" json:"-"`
	EventApplied        bool      `bun:"event_applied" json:"-"`
	CreatedAt           time.Time `bun:"created_at,nullzero" json:"created_at"`
}

// HasEventWork reports whether the purchase still owes an event patch:
// it is linked to an event and asks for a resize or a publish.
func (r *PurchaseRecord) HasEventWork() bool {
	return r.EventID != "" && (r.HasTargetMaxGuests || r.PublishAfterPayment)
}
