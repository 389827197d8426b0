package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-invites/internal/ledger"
	"ms-invites/internal/logger"
	"ms-invites/internal/models"

	"github.com/google/uuid"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrNoFields      = errors.New("no fields to update")
)

type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetEventOwned(ctx context.Context, id, userID string) (*models.Event, error)
	ListEvents(ctx context.Context, userID string) ([]models.Event, error)
	ListPublishedEvents(ctx context.Context, userID, productTypePrefix string) ([]models.Event, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	UpdateEvent(ctx context.Context, id, userID string, patch *models.EventPatch) (*models.Event, error)
	DeleteEvent(ctx context.Context, id, userID string) (bool, error)
}

// BalanceReader is the slice of the ledger the publish guard needs.
type BalanceReader interface {
	TotalPurchased(ctx context.Context, userID, productType string) (int, error)
}

// BalanceLocker serializes capacity decisions per (user, product type) so
// two concurrent publishes cannot both pass the same check.
type BalanceLocker interface {
	LockBalance(ctx context.Context, userID, productType, holder string) (bool, error)
	UnlockBalance(ctx context.Context, userID, productType, holder string) error
}

type KafkaPublisher interface {
	PublishEventPublished(event models.Event) error
}

type Service struct {
	DB       DBLayer
	Balances BalanceReader
	Locks    BalanceLocker
	Kafka    KafkaPublisher
	Logger   *logger.Logger
}

func NewService(db DBLayer, balances BalanceReader, locks BalanceLocker, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, Balances: balances, Locks: locks, Kafka: kafka, Logger: log}
}

// ---------------- RESERVATION CALCULATOR ----------------

// ReservedCapacity sums max_guests over the user's published events whose
// invitation type starts with productType. Read-only aggregate; no caching,
// so deleting or unpublishing an event releases its reservation immediately.
func (s *Service) ReservedCapacity(ctx context.Context, userID, productType string) (int, error) {
	events, err := s.DB.ListPublishedEvents(ctx, userID, productType)
	if err != nil {
		return 0, fmt.Errorf("list published events: %w", err)
	}
	total := 0
	for _, ev := range events {
		total += ev.MaxGuests
	}
	return total, nil
}

// ---------------- PUBLISH GUARD ----------------

// CheckPublishCapacity decides whether the event may hold nextMax guests of
// nextType. When the event is already published under the same product type,
// its own stored reservation is excluded so it is not counted against itself.
// Returns *ledger.InsufficientBalanceError on rejection.
func (s *Service) CheckPublishCapacity(ctx context.Context, current *models.Event, userID string, nextMax int, nextType string) error {
	purchased, err := s.Balances.TotalPurchased(ctx, userID, nextType)
	if err != nil {
		return fmt.Errorf("fetch purchased total: %w", err)
	}

	reserved, err := s.ReservedCapacity(ctx, userID, nextType)
	if err != nil {
		return err
	}

	usageOthers := reserved
	if current != nil && current.Status == models.EventStatusPublished && current.ProductType() == nextType {
		usageOthers -= current.MaxGuests
	}

	availableForThisEvent := purchased - usageOthers
	if nextMax > availableForThisEvent {
		available := availableForThisEvent
		if available < 0 {
			available = 0
		}
		return &ledger.InsufficientBalanceError{Needed: nextMax, Available: available}
	}
	return nil
}

// withBalanceLock runs fn while holding the per-balance lock, retrying the
// acquire briefly before giving up. Runs fn unlocked when no locker is wired.
func (s *Service) withBalanceLock(ctx context.Context, userID, productType string, fn func() error) error {
	if s.Locks == nil {
		return fn()
	}

	holder := uuid.NewString()
	const attempts = 5
	for i := 0; i < attempts; i++ {
		ok, err := s.Locks.LockBalance(ctx, userID, productType, holder)
		if err != nil {
			return fmt.Errorf("balance lock: %w", err)
		}
		if ok {
			defer func() {
				if err := s.Locks.UnlockBalance(ctx, userID, productType, holder); err != nil && s.Logger != nil {
					s.Logger.Warn("LOCK", fmt.Sprintf("failed to release balance lock %s/%s: %v", userID, productType, err))
				}
			}()
			return fn()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("balance %s/%s is locked by a concurrent request", userID, productType)
}

// ---------------- EVENT OPERATIONS ----------------

// CreateEvent inserts a new draft event for the user. Status on create is
// always draft; publishing goes through PatchEvent or a paid checkout.
func (s *Service) CreateEvent(ctx context.Context, userID string, patch *models.EventPatch) (*models.Event, error) {
	event := &models.Event{
		ID:     uuid.NewString(),
		UserID: userID,
		Status: models.EventStatusDraft,
	}
	if patch != nil {
		if patch.TitleText != nil {
			event.TitleText = *patch.TitleText
		}
		if patch.EventDate != nil {
			event.EventDate = *patch.EventDate
		}
		if patch.EventTime != nil {
			event.EventTime = *patch.EventTime
		}
		if patch.Location != nil {
			event.Location = *patch.Location
		}
		if patch.Notes != nil {
			event.Notes = *patch.Notes
		}
		if patch.DesignJSON != nil {
			event.DesignJSON = *patch.DesignJSON
		}
		if patch.MaxGuests != nil {
			event.MaxGuests = *patch.MaxGuests
		}
		if patch.InvitationType != nil {
			event.InvitationType = *patch.InvitationType
		}
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, id, userID string) (*models.Event, error) {
	event, err := s.DB.GetEventOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (s *Service) ListEvents(ctx context.Context, userID string) ([]models.Event, error) {
	return s.DB.ListEvents(ctx, userID)
}

// PublicEvent serves the invitation page: published events only, public
// fields only. Drafts are reported as not found rather than revealed.
func (s *Service) PublicEvent(ctx context.Context, id string) (*models.PublicEvent, error) {
	event, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil || event.Status != models.EventStatusPublished {
		return nil, ErrEventNotFound
	}
	return event.Public(), nil
}

// PatchEvent applies an owner edit. The capacity gate runs whenever the
// patch would publish the event or change max_guests/invitation_type on an
// already-published one, so balance cannot be exceeded through edits.
func (s *Service) PatchEvent(ctx context.Context, id, userID string, patch *models.EventPatch) (*models.Event, error) {
	if patch == nil || patch.Empty() {
		return nil, ErrNoFields
	}

	current, err := s.DB.GetEventOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrEventNotFound
	}

	nextStatus := current.Status
	if patch.Status != nil {
		nextStatus = *patch.Status
	}
	nextMax := current.MaxGuests
	if patch.MaxGuests != nil {
		nextMax = *patch.MaxGuests
	}
	nextType := current.ProductType()
	if patch.InvitationType != nil {
		nextType = models.ProductTypeOf(*patch.InvitationType)
	}

	wasPublished := current.Status == models.EventStatusPublished
	needsGate := nextStatus == models.EventStatusPublished &&
		(!wasPublished || nextMax != current.MaxGuests || nextType != current.ProductType())

	apply := func() (*models.Event, error) {
		updated, err := s.DB.UpdateEvent(ctx, id, userID, patch)
		if err != nil {
			return nil, fmt.Errorf("update event: %w", err)
		}
		if updated == nil {
			return nil, ErrEventNotFound
		}
		return updated, nil
	}

	var updated *models.Event
	if needsGate {
		err = s.withBalanceLock(ctx, userID, nextType, func() error {
			if err := s.CheckPublishCapacity(ctx, current, userID, nextMax, nextType); err != nil {
				return err
			}
			var applyErr error
			updated, applyErr = apply()
			return applyErr
		})
	} else {
		updated, err = apply()
	}
	if err != nil {
		return nil, err
	}

	if !wasPublished && updated.Status == models.EventStatusPublished {
		s.notifyPublished(*updated)
	}
	return updated, nil
}

// ApplyPaidEventPatch publishes and/or resizes an event after a finalized
// purchase. The payment already covers the capacity, so no gate runs here;
// the update is still scoped to (id, userID) from the session metadata.
func (s *Service) ApplyPaidEventPatch(ctx context.Context, eventID, userID string, targetMax *int, publish bool) error {
	patch := &models.EventPatch{MaxGuests: targetMax}
	if publish {
		status := models.EventStatusPublished
		patch.Status = &status
	}
	if patch.Empty() {
		return nil
	}

	current, err := s.DB.GetEventOwned(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrEventNotFound
	}

	updated, err := s.DB.UpdateEvent(ctx, eventID, userID, patch)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if updated == nil {
		return ErrEventNotFound
	}

	if current.Status != models.EventStatusPublished && updated.Status == models.EventStatusPublished {
		s.notifyPublished(*updated)
	}
	return nil
}

// MarkPending flags a draft event as pending while its checkout session is
// open. Non-draft events are left alone.
func (s *Service) MarkPending(ctx context.Context, eventID, userID string) error {
	current, err := s.DB.GetEventOwned(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if current == nil || current.Status != models.EventStatusDraft {
		return nil
	}
	status := models.EventStatusPending
	_, err = s.DB.UpdateEvent(ctx, eventID, userID, &models.EventPatch{Status: &status})
	return err
}

// DeleteEvent removes the event; its reservation is released implicitly.
func (s *Service) DeleteEvent(ctx context.Context, id, userID string) error {
	deleted, err := s.DB.DeleteEvent(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrEventNotFound
	}
	return nil
}

func (s *Service) notifyPublished(event models.Event) {
	if s.Logger != nil {
		s.Logger.Info("EVENT", fmt.Sprintf("event %s published with max_guests=%d (%s)", event.ID, event.MaxGuests, event.InvitationType))
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishEventPublished(event); err != nil && s.Logger != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("publish event-published message failed: %v", err))
		}
	}
}
