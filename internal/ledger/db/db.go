package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-invites/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- BALANCES ----------------

// GetBalance fetches the counters for one (user, product type) pair.
// Returns (nil, nil) when no balance row exists yet.
func (d *DB) GetBalance(ctx context.Context, userID, productType string) (*models.InvitationBalance, error) {
	var balance models.InvitationBalance
	err := d.Bun.NewSelect().
		Model(&balance).
		Where("user_id = ?", userID).
		Where("product_type = ?", productType).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// ListBalances returns all balance rows of a user, ordered by product type.
func (d *DB) ListBalances(ctx context.Context, userID string) ([]models.InvitationBalance, error) {
	var balances []models.InvitationBalance
	err := d.Bun.NewSelect().
		Model(&balances).
		Where("user_id = ?", userID).
		Order("product_type ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// AddPurchased credits quantity to total_purchased in a single atomic upsert.
// The increment happens inside the database, so concurrent webhook deliveries
// for different sessions cannot lose updates.
func (d *DB) AddPurchased(ctx context.Context, userID, productType string, quantity int) error {
	return addPurchased(ctx, d.Bun, userID, productType, quantity)
}

func addPurchased(ctx context.Context, idb bun.IDB, userID, productType string, quantity int) error {
	balance := &models.InvitationBalance{
		UserID:         userID,
		ProductType:    productType,
		TotalPurchased: quantity,
		UpdatedAt:      time.Now(),
	}
	_, err := idb.NewInsert().
		Model(balance).
		On("CONFLICT (user_id, product_type) DO UPDATE").
		Set("total_purchased = invitation_balance.total_purchased + excluded.total_purchased").
		Set("updated_at = excluded.updated_at").
		Exec(ctx)
	return err
}

// AddUsed debits n credits by incrementing total_used atomically. A missing
// balance row is created, so a debit against an unfunded pair is visible as
// used > purchased rather than silently dropped.
func (d *DB) AddUsed(ctx context.Context, userID, productType string, n int) error {
	balance := &models.InvitationBalance{
		UserID:      userID,
		ProductType: productType,
		TotalUsed:   n,
		UpdatedAt:   time.Now(),
	}
	_, err := d.Bun.NewInsert().
		Model(balance).
		On("CONFLICT (user_id, product_type) DO UPDATE").
		Set("total_used = invitation_balance.total_used + excluded.total_used").
		Set("updated_at = excluded.updated_at").
		Exec(ctx)
	return err
}

// ---------------- PURCHASES ----------------

// InsertPurchaseIfAbsent inserts a purchase record unless one already exists
// for the same checkout session. Returns whether a row was actually inserted.
// The unique constraint on checkout_session_id is the sole idempotency guard
// against at-least-once webhook delivery.
func (d *DB) InsertPurchaseIfAbsent(ctx context.Context, record *models.PurchaseRecord) (bool, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	res, err := d.Bun.NewInsert().
		Model(record).
		On("CONFLICT (checkout_session_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPurchases returns a user's purchase history, newest first.
func (d *DB) ListPurchases(ctx context.Context, userID string) ([]models.PurchaseRecord, error) {
	var purchases []models.PurchaseRecord
	err := d.Bun.NewSelect().
		Model(&purchases).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

// ListUnappliedPurchases returns paid purchases whose balance credit or
// event patch has not stuck yet. The reconciler retries these.
func (d *DB) ListUnappliedPurchases(ctx context.Context, limit int) ([]models.PurchaseRecord, error) {
	var purchases []models.PurchaseRecord
	err := d.Bun.NewSelect().
		Model(&purchases).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("balance_applied = ?", false).
				WhereOr("event_applied = ?", false)
		}).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

// ApplyPurchaseCredit credits a recorded purchase to its balance exactly
// once. The conditional flag flip and the counter upsert run in one
// transaction, so a retry after a partial failure cannot credit the same
// purchase twice. Returns whether this call applied the credit.
func (d *DB) ApplyPurchaseCredit(ctx context.Context, record *models.PurchaseRecord) (bool, error) {
	applied := false
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.PurchaseRecord)(nil)).
			Set("balance_applied = ?", true).
			Where("id = ?", record.ID).
			Where("balance_applied = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if record.Quantity > 0 {
			if err := addPurchased(ctx, tx, record.UserID, record.ProductType, record.Quantity); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (d *DB) MarkEventApplied(ctx context.Context, purchaseID int64) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.PurchaseRecord)(nil)).
		Set("event_applied = ?", true).
		Where("id = ?", purchaseID).
		Exec(ctx)
	return err
}
