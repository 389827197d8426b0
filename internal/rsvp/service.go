package rsvp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-invites/internal/logger"
	"ms-invites/internal/models"

	"github.com/google/uuid"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrGuestNotFound = errors.New("guest not found")
	ErrGroupNotFound = errors.New("group not found")
	ErrForbidden     = errors.New("not the event owner")
	ErrNoGuests      = errors.New("at least one guest is required")
	ErrNameRequired  = errors.New("guest full_name is required")
)

// DBLayer is the rsvp store surface.
type DBLayer interface {
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	UpdateGroup(ctx context.Context, id string, patch *models.GroupPatch) (*models.Group, error)
	DeleteGroup(ctx context.Context, id string) (bool, error)
	CreateGuests(ctx context.Context, guests []models.Guest) error
	GetGuest(ctx context.Context, id string) (*models.Guest, error)
	ListGuestsByEvent(ctx context.Context, eventID string) ([]models.Guest, error)
	ListGroupsWithGuests(ctx context.Context, eventID string) ([]models.GroupWithGuests, error)
	UpdateGuest(ctx context.Context, id string, patch *models.GuestPatch) (*models.Guest, error)
	DeleteGuest(ctx context.Context, id string) (bool, error)
	SetGuestAttending(ctx context.Context, id string, attending bool) error
	MarkGuestCompleted(ctx context.Context, id string) (bool, error)
}

// EventReader looks events up without an ownership scope; the service does
// its own ownership checks where they apply.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// UsageDebitor charges credits when link-based events collect attendees.
type UsageDebitor interface {
	DebitUsage(ctx context.Context, userID, productType string, n int) error
}

type Service struct {
	DB     DBLayer
	Events EventReader
	Ledger UsageDebitor
	Logger *logger.Logger
}

func NewService(db DBLayer, events EventReader, ledger UsageDebitor, log *logger.Logger) *Service {
	return &Service{DB: db, Events: events, Ledger: ledger, Logger: log}
}

// GuestSubmission is one guest inside an RSVP submission.
type GuestSubmission struct {
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Attending *bool  `json:"attending"`
}

// Submission is the public RSVP payload: one contact group with its guests.
type Submission struct {
	GroupName    string            `json:"group_name"`
	ContactEmail string            `json:"contact_email"`
	ContactPhone string            `json:"contact_phone"`
	Guests       []GuestSubmission `json:"guests"`
}

// SubmitPublicRSVP stores a group and its guests for a published event.
// For link-type events this is the moment credits are consumed: one per
// guest who answered attending.
func (s *Service) SubmitPublicRSVP(ctx context.Context, eventID string, sub *Submission) (*models.GroupWithGuests, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil || event.Status != models.EventStatusPublished {
		return nil, ErrEventNotFound
	}

	node, attending, err := s.storeSubmission(ctx, event, sub)
	if err != nil {
		return nil, err
	}

	// Link invitations are charged per attending response. Email
	// invitations were already charged at send time.
	if event.ProductType() == "url" && attending > 0 {
		if err := s.Ledger.DebitUsage(ctx, event.UserID, event.ProductType(), attending); err != nil {
			s.Logger.Error("RSVP", fmt.Sprintf("Failed to debit %d credit(s) for event %s: %v", attending, eventID, err))
		}
	}

	return node, nil
}

// GuestForRSVP serves the personalized RSVP page: the guest's public view
// only, and only when the event is still published.
func (s *Service) GuestForRSVP(ctx context.Context, guestID string) (*models.PublicGuest, error) {
	guest, err := s.DB.GetGuest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, ErrGuestNotFound
	}
	event, err := s.Events.GetEvent(ctx, guest.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil || event.Status != models.EventStatusPublished {
		return nil, ErrEventNotFound
	}
	return guest.Public(), nil
}

// SubmitPersonalizedRSVP records a known guest's answer and closes out
// their invitation lifecycle. The completed transition only fires from
// queued/sent/opened; a failed invitation stays failed.
func (s *Service) SubmitPersonalizedRSVP(ctx context.Context, guestID string, attending bool) error {
	guest, err := s.DB.GetGuest(ctx, guestID)
	if err != nil {
		return err
	}
	if guest == nil {
		return ErrGuestNotFound
	}

	if err := s.DB.SetGuestAttending(ctx, guestID, attending); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}

	advanced, err := s.DB.MarkGuestCompleted(ctx, guestID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if advanced {
		s.Logger.Info("RSVP", fmt.Sprintf("Guest %s completed their invitation (attending=%v)", guestID, attending))
	}
	return nil
}

// ---------------- OWNER OPERATIONS ----------------

// assertEventOwner distinguishes a missing event from someone else's.
func (s *Service) assertEventOwner(ctx context.Context, eventID, userID string) (*models.Event, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	if event.UserID != userID {
		return nil, ErrForbidden
	}
	return event, nil
}

// Tree returns the owner's full RSVP view: all groups with their guests.
func (s *Service) Tree(ctx context.Context, eventID, userID string) ([]models.GroupWithGuests, error) {
	if _, err := s.assertEventOwner(ctx, eventID, userID); err != nil {
		return nil, err
	}
	return s.DB.ListGroupsWithGuests(ctx, eventID)
}

// OwnerCreateGroup lets the owner build the guest list up front, which is
// how email-type events get their recipients.
func (s *Service) OwnerCreateGroup(ctx context.Context, eventID, userID string, sub *Submission) (*models.GroupWithGuests, error) {
	event, err := s.assertEventOwner(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	node, _, err := s.storeSubmission(ctx, event, sub)
	return node, err
}

func (s *Service) PatchGuest(ctx context.Context, guestID, userID string, patch *models.GuestPatch) (*models.Guest, error) {
	guest, err := s.DB.GetGuest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, ErrGuestNotFound
	}
	if _, err := s.assertEventOwner(ctx, guest.EventID, userID); err != nil {
		return nil, err
	}

	updated, err := s.DB.UpdateGuest(ctx, guestID, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrGuestNotFound
	}
	return updated, nil
}

func (s *Service) DeleteGuest(ctx context.Context, guestID, userID string) error {
	guest, err := s.DB.GetGuest(ctx, guestID)
	if err != nil {
		return err
	}
	if guest == nil {
		return ErrGuestNotFound
	}
	if _, err := s.assertEventOwner(ctx, guest.EventID, userID); err != nil {
		return err
	}

	deleted, err := s.DB.DeleteGuest(ctx, guestID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrGuestNotFound
	}
	return nil
}

func (s *Service) PatchGroup(ctx context.Context, groupID, userID string, patch *models.GroupPatch) (*models.Group, error) {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	if _, err := s.assertEventOwner(ctx, group.EventID, userID); err != nil {
		return nil, err
	}

	updated, err := s.DB.UpdateGroup(ctx, groupID, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrGroupNotFound
	}
	return updated, nil
}

func (s *Service) DeleteGroup(ctx context.Context, groupID, userID string) error {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return ErrGroupNotFound
	}
	if _, err := s.assertEventOwner(ctx, group.EventID, userID); err != nil {
		return err
	}

	deleted, err := s.DB.DeleteGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrGroupNotFound
	}
	return nil
}

// storeSubmission validates and persists one group with its guests and
// returns the stored tree node plus the attending count.
func (s *Service) storeSubmission(ctx context.Context, event *models.Event, sub *Submission) (*models.GroupWithGuests, int, error) {
	if sub == nil || len(sub.Guests) == 0 {
		return nil, 0, ErrNoGuests
	}
	for _, g := range sub.Guests {
		if strings.TrimSpace(g.FullName) == "" {
			return nil, 0, ErrNameRequired
		}
	}

	group := &models.Group{
		ID:           uuid.NewString(),
		EventID:      event.ID,
		GroupName:    sub.GroupName,
		ContactEmail: sub.ContactEmail,
		ContactPhone: sub.ContactPhone,
	}
	if err := s.DB.CreateGroup(ctx, group); err != nil {
		return nil, 0, fmt.Errorf("create group: %w", err)
	}

	// Guests of email events start queued so the send pipeline can find
	// them; link-event guests have no email lifecycle.
	initialStatus := models.EmailStatusNone
	if event.ProductType() == "email" {
		initialStatus = models.EmailStatusQueued
	}

	attending := 0
	guests := make([]models.Guest, 0, len(sub.Guests))
	for _, g := range sub.Guests {
		guest := models.Guest{
			ID:          uuid.NewString(),
			EventID:     event.ID,
			GroupID:     group.ID,
			FullName:    strings.TrimSpace(g.FullName),
			Email:       strings.TrimSpace(g.Email),
			Phone:       strings.TrimSpace(g.Phone),
			Attending:   g.Attending,
			EmailStatus: initialStatus,
		}
		if g.Attending != nil && *g.Attending {
			attending++
		}
		guests = append(guests, guest)
	}
	if err := s.DB.CreateGuests(ctx, guests); err != nil {
		return nil, 0, fmt.Errorf("create guests: %w", err)
	}

	s.Logger.Info("RSVP", fmt.Sprintf("Stored group %s with %d guest(s) for event %s (%d attending)",
		group.ID, len(guests), event.ID, attending))

	return &models.GroupWithGuests{Group: *group, Guests: guests}, attending, nil
}
