package billing

import (
	"context"
	"fmt"
	"time"

	"ms-invites/internal/logger"
	"ms-invites/internal/models"
)

// PurchaseStore is the ledger slice the finalizer writes through.
type PurchaseStore interface {
	InsertPurchaseIfAbsent(ctx context.Context, record *models.PurchaseRecord) (bool, error)
	ApplyPurchaseCredit(ctx context.Context, record *models.PurchaseRecord) (bool, error)
	ListPurchases(ctx context.Context, userID string) ([]models.PurchaseRecord, error)
	ListUnappliedPurchases(ctx context.Context, limit int) ([]models.PurchaseRecord, error)
	MarkEventApplied(ctx context.Context, purchaseID int64) error
}

// EventPatcher applies the paid publish/resize to the linked event.
type EventPatcher interface {
	ApplyPaidEventPatch(ctx context.Context, eventID, userID string, targetMax *int, publish bool) error
}

// PurchaseNotifier pushes a finalized purchase to the owner's open SSE
// streams so the dashboard refreshes without polling.
type PurchaseNotifier interface {
	NotifyPurchase(userID string, record models.PurchaseRecord)
}

type PurchasePublisher interface {
	PublishPurchaseFinalized(record models.PurchaseRecord) error
}

type FinalizeResult struct {
	AlreadyProcessed bool
	Record           *models.PurchaseRecord
}

// Finalizer turns a paid checkout session into credits and, when the session
// carries an event link, into a published or resized event. The purchase row
// insert is the idempotency guard; the two follow-up steps are retried by
// the reconciler until their applied flags stick.
type Finalizer struct {
	Store    PurchaseStore
	Events   EventPatcher
	Notifier PurchaseNotifier
	Kafka    PurchasePublisher
	Logger   *logger.Logger
}

func NewFinalizer(store PurchaseStore, events EventPatcher, notifier PurchaseNotifier, kafka PurchasePublisher, log *logger.Logger) *Finalizer {
	return &Finalizer{Store: store, Events: events, Notifier: notifier, Kafka: kafka, Logger: log}
}

// FinalizePurchase runs the fulfillment saga for one paid session:
//
//  1. insert the purchase row, unique on checkout_session_id; a duplicate
//     means another delivery already won and the call returns immediately
//  2. credit total_purchased atomically
//  3. apply the paid event patch when the session is linked to an event
//
// Steps 2 and 3 never fail the webhook: once the row exists the payment is
// acknowledged, and failures here are logged and left for the reconciler.
func (f *Finalizer) FinalizePurchase(ctx context.Context, record *models.PurchaseRecord) (*FinalizeResult, error) {
	if !record.HasEventWork() {
		// Nothing to patch, so the event step is settled up front.
		record.EventApplied = true
	}

	inserted, err := f.Store.InsertPurchaseIfAbsent(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	if !inserted {
		f.Logger.Info("FINALIZE", fmt.Sprintf("Session %s already processed, skipping", record.CheckoutSessionID))
		return &FinalizeResult{AlreadyProcessed: true, Record: record}, nil
	}

	f.Logger.LogLedger("PURCHASE", record.UserID, fmt.Sprintf("%s +%d (%s, session %s)",
		record.ProductType, record.Quantity, record.PackName, record.CheckoutSessionID))

	f.applyBalance(ctx, record)
	f.applyEvent(ctx, record)

	if f.Notifier != nil {
		f.Notifier.NotifyPurchase(record.UserID, *record)
	}
	if f.Kafka != nil {
		if err := f.Kafka.PublishPurchaseFinalized(*record); err != nil {
			f.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish purchase-finalized message: %v", err))
		}
	}

	return &FinalizeResult{Record: record}, nil
}

func (f *Finalizer) applyBalance(ctx context.Context, record *models.PurchaseRecord) {
	if record.BalanceApplied {
		return
	}
	if record.Quantity <= 0 {
		f.Logger.Warn("FINALIZE", fmt.Sprintf("Session %s grants no credits (invitations=%d)", record.CheckoutSessionID, record.Quantity))
	}
	// The credit and the applied flag commit together; the conditional
	// flag update inside the store is the double-credit guard.
	applied, err := f.Store.ApplyPurchaseCredit(ctx, record)
	if err != nil {
		f.Logger.Error("FINALIZE", fmt.Sprintf("Failed to credit balance for session %s: %v", record.CheckoutSessionID, err))
		return
	}
	if !applied {
		f.Logger.Info("FINALIZE", fmt.Sprintf("Balance for session %s already credited", record.CheckoutSessionID))
	}
	record.BalanceApplied = true
}

func (f *Finalizer) applyEvent(ctx context.Context, record *models.PurchaseRecord) {
	if record.EventApplied {
		return
	}
	var targetMax *int
	if record.HasTargetMaxGuests {
		n := record.TargetMaxGuests
		targetMax = &n
	}
	if err := f.Events.ApplyPaidEventPatch(ctx, record.EventID, record.UserID, targetMax, record.PublishAfterPayment); err != nil {
		f.Logger.Error("FINALIZE", fmt.Sprintf("Failed to apply event patch for session %s (event %s): %v",
			record.CheckoutSessionID, record.EventID, err))
		return
	}
	if err := f.Store.MarkEventApplied(ctx, record.ID); err != nil {
		f.Logger.Error("FINALIZE", fmt.Sprintf("Failed to mark event applied for session %s: %v", record.CheckoutSessionID, err))
		return
	}
	record.EventApplied = true
}

// Reconcile retries purchases whose balance credit or event patch has not
// stuck. Both steps are idempotent against a recorded purchase: the applied
// flags make sure a credit is never granted twice.
func (f *Finalizer) Reconcile(ctx context.Context) error {
	pending, err := f.Store.ListUnappliedPurchases(ctx, 100)
	if err != nil {
		return fmt.Errorf("list unapplied purchases: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	f.Logger.Info("RECONCILE", fmt.Sprintf("Retrying %d incomplete purchase(s)", len(pending)))
	for i := range pending {
		record := &pending[i]
		f.applyBalance(ctx, record)
		f.applyEvent(ctx, record)
	}
	return nil
}

// RunReconciler loops Reconcile on the given interval until ctx is done.
func (f *Finalizer) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Reconcile(ctx); err != nil {
				f.Logger.Error("RECONCILE", fmt.Sprintf("Reconcile pass failed: %v", err))
			}
		}
	}
}
