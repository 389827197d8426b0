package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ms-invites/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

// GetEvent fetches one event by id. Returns (nil, nil) when absent.
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEventOwned fetches one event scoped to its owner. Returns (nil, nil)
// when the event does not exist or belongs to someone else.
func (d *DB) GetEventOwned(ctx context.Context, id, userID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents returns all events of a user, newest first.
func (d *DB) ListEvents(ctx context.Context, userID string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListPublishedEvents returns a user's published events whose invitation
// type starts with the given product type prefix. This is the reservation
// aggregate's source query.
func (d *DB) ListPublishedEvents(ctx context.Context, userID, productTypePrefix string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("user_id = ?", userID).
		Where("status = ?", models.EventStatusPublished).
		Where("lower(invitation_type) LIKE ?", strings.ToLower(productTypePrefix)+"%").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent inserts a new event.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

// UpdateEvent applies a patch to an event scoped to its owner and returns
// the fresh row. Returns (nil, nil) when no row matched.
func (d *DB) UpdateEvent(ctx context.Context, id, userID string, patch *models.EventPatch) (*models.Event, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("user_id = ?", userID)

	if patch.TitleText != nil {
		q = q.Set("title_text = ?", *patch.TitleText)
	}
	if patch.EventDate != nil {
		q = q.Set("event_date = ?", *patch.EventDate)
	}
	if patch.EventTime != nil {
		q = q.Set("event_time = ?", *patch.EventTime)
	}
	if patch.Location != nil {
		q = q.Set("location = ?", *patch.Location)
	}
	if patch.Notes != nil {
		q = q.Set("notes = ?", *patch.Notes)
	}
	if patch.DesignJSON != nil {
		q = q.Set("design_json = ?", *patch.DesignJSON)
	}
	if patch.MaxGuests != nil {
		q = q.Set("max_guests = ?", *patch.MaxGuests)
	}
	if patch.InvitationType != nil {
		q = q.Set("invitation_type = ?", *patch.InvitationType)
	}
	if patch.Status != nil {
		q = q.Set("status = ?", *patch.Status)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return d.GetEventOwned(ctx, id, userID)
}

// DeleteEvent removes an event scoped to its owner. Returns whether a row
// was deleted. Deleting a published event implicitly releases its
// reservation: it simply stops matching the published-events query.
func (d *DB) DeleteEvent(ctx context.Context, id, userID string) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Event)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
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
