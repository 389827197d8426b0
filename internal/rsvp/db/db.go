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

// ---------------- GROUPS ----------------

func (d *DB) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	_, err := d.Bun.NewInsert().Model(group).Exec(ctx)
	return err
}

// GetGroup fetches one group. Returns (nil, nil) when absent.
func (d *DB) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group
	err := d.Bun.NewSelect().
		Model(&group).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (d *DB) UpdateGroup(ctx context.Context, id string, patch *models.GroupPatch) (*models.Group, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Group)(nil)).
		Where("id = ?", id)

	if patch.GroupName != nil {
		q = q.Set("group_name = ?", *patch.GroupName)
	}
	if patch.ContactEmail != nil {
		q = q.Set("contact_email = ?", *patch.ContactEmail)
	}
	if patch.ContactPhone != nil {
		q = q.Set("contact_phone = ?", *patch.ContactPhone)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return d.GetGroup(ctx, id)
}

// DeleteGroup removes a group and its guests. Returns whether the group row
// was deleted.
func (d *DB) DeleteGroup(ctx context.Context, id string) (bool, error) {
	if _, err := d.Bun.NewDelete().
		Model((*models.Guest)(nil)).
		Where("group_id = ?", id).
		Exec(ctx); err != nil {
		return false, err
	}

	res, err := d.Bun.NewDelete().
		Model((*models.Group)(nil)).
		Where("id = ?", id).
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

// ---------------- GUESTS ----------------

// CreateGuests inserts a batch of guests in one statement.
func (d *DB) CreateGuests(ctx context.Context, guests []models.Guest) error {
	if len(guests) == 0 {
		return nil
	}
	now := time.Now()
	for i := range guests {
		if guests[i].CreatedAt.IsZero() {
			guests[i].CreatedAt = now
		}
	}
	_, err := d.Bun.NewInsert().Model(&guests).Exec(ctx)
	return err
}

// GetGuest fetches one guest. Returns (nil, nil) when absent.
func (d *DB) GetGuest(ctx context.Context, id string) (*models.Guest, error) {
	var guest models.Guest
	err := d.Bun.NewSelect().
		Model(&guest).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &guest, nil
}

// ListGuestsByEvent returns all guests of an event, oldest first.
func (d *DB) ListGuestsByEvent(ctx context.Context, eventID string) ([]models.Guest, error) {
	var guests []models.Guest
	err := d.Bun.NewSelect().
		Model(&guests).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return guests, nil
}

// ListGroupsWithGuests builds the owner's RSVP tree: every group of the
// event with its guests attached.
func (d *DB) ListGroupsWithGuests(ctx context.Context, eventID string) ([]models.GroupWithGuests, error) {
	var groups []models.Group
	err := d.Bun.NewSelect().
		Model(&groups).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	guests, err := d.ListGuestsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	byGroup := make(map[string][]models.Guest, len(groups))
	for _, g := range guests {
		byGroup[g.GroupID] = append(byGroup[g.GroupID], g)
	}

	tree := make([]models.GroupWithGuests, 0, len(groups))
	for _, group := range groups {
		node := models.GroupWithGuests{Group: group, Guests: byGroup[group.ID]}
		if node.Guests == nil {
			node.Guests = []models.Guest{}
		}
		tree = append(tree, node)
	}
	return tree, nil
}

func (d *DB) UpdateGuest(ctx context.Context, id string, patch *models.GuestPatch) (*models.Guest, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Guest)(nil)).
		Where("id = ?", id)

	if patch.FullName != nil {
		q = q.Set("full_name = ?", *patch.FullName)
	}
	if patch.Email != nil {
		q = q.Set("email = ?", *patch.Email)
	}
	if patch.Phone != nil {
		q = q.Set("phone = ?", *patch.Phone)
	}
	if patch.Attending != nil {
		q = q.Set("attending = ?", *patch.Attending)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return d.GetGuest(ctx, id)
}

func (d *DB) DeleteGuest(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Guest)(nil)).
		Where("id = ?", id).
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

// ---------------- EMAIL STATUS ----------------

// SetGuestAttending records a guest's answer.
func (d *DB) SetGuestAttending(ctx context.Context, id string, attending bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Guest)(nil)).
		Set("attending = ?", attending).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// SetGuestEmailResult records a delivery attempt's outcome.
func (d *DB) SetGuestEmailResult(ctx context.Context, id string, status models.EmailStatus, messageID, emailErr string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Guest)(nil)).
		Set("email_status = ?", status).
		Set("email_message_id = ?", messageID).
		Set("email_error = ?", emailErr).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// MarkGuestOpened advances queued/sent to opened. The WHERE clause makes the
// transition idempotent and monotonic under concurrent pixel hits.
func (d *DB) MarkGuestOpened(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Guest)(nil)).
		Set("email_status = ?", models.EmailStatusOpened).
		Where("id = ?", id).
		Where("email_status IN (?)", bun.In([]models.EmailStatus{models.EmailStatusQueued, models.EmailStatusSent})).
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

// MarkGuestCompleted moves queued/sent/opened to completed when the guest
// answers through the personalized page. Failed stays failed.
func (d *DB) MarkGuestCompleted(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Guest)(nil)).
		Set("email_status = ?", models.EmailStatusCompleted).
		Where("id = ?", id).
		Where("email_status IN (?)", bun.In([]models.EmailStatus{models.EmailStatusQueued, models.EmailStatusSent, models.EmailStatusOpened})).
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
