package models

import (
	"time"

	"github.com/uptrace/bun"
)

// InvitationBalance holds the purchased/used credit counters for one
// (user, product type) pair. One row per pair, created on first purchase,
// never deleted.
type InvitationBalance struct {
	bun.BaseModel `bun:"table:invitation_balances,alias:invitation_balance"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID         string    `bun:"user_id,notnull,unique:balance_user_product" json:"user_id"`
	ProductType    string    `bun:"product_type,notnull,unique:balance_user_product" json:"product_type"`
	TotalPurchased int       `bun:"total_purchased,notnull,default:0" json:"total_purchased"`
	TotalUsed      int       `bun:"total_used,notnull,default:0" json:"total_used"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

// BalanceSummary is the enriched view returned to the dashboard: the stored
// counters plus the live reservation aggregate and the derived availability.
type BalanceSummary struct {
	ProductType    string    `json:"product_type"`
	TotalPurchased int       `json:"total_purchased"`
	TotalUsed      int       `json:"total_used"`
	TotalReserved  int       `json:"total_reserved"`
	Available      int       `json:"available"`
	UpdatedAt      time.Time `json:"updated_at"`
}
