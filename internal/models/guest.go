package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EmailStatus tracks an emailed invitation through its lifecycle:
//
//	"" -> queued -> sent -> opened -> completed
//
// with failed reachable from queued/sent attempts. Once a guest reaches
// opened or completed the status never moves backwards.
type EmailStatus string

const (
	EmailStatusNone      EmailStatus = ""
	EmailStatusQueued    EmailStatus = "queued"
	EmailStatusSent      EmailStatus = "sent"
	EmailStatusOpened    EmailStatus = "opened"
	EmailStatusFailed    EmailStatus = "failed"
	EmailStatusCompleted EmailStatus = "completed"
)

func (s EmailStatus) rank() int {
	switch s {
	case EmailStatusQueued:
		return 1
	case EmailStatusSent:
		return 2
	case EmailStatusOpened:
		return 3
	case EmailStatusCompleted:
		return 4
	default:
		return 0
	}
}

// CanMarkSent reports whether a successful dispatch may set the status to
// "sent". A failed guest may be retried; opened/completed never regress.
func (s EmailStatus) CanMarkSent() bool {
	return s == EmailStatusFailed || s.rank() < EmailStatusSent.rank()
}

// CanMarkFailed reports whether a failed delivery attempt may set the
// status to "failed". Opened and completed guests are never downgraded.
func (s EmailStatus) CanMarkFailed() bool {
	return s.rank() <= EmailStatusSent.rank()
}

// CanMarkOpened reports whether a tracking-pixel hit may advance the status.
// Only queued and sent advance; later states and failed are left alone.
func (s EmailStatus) CanMarkOpened() bool {
	return s == EmailStatusQueued || s == EmailStatusSent
}

// CanMarkCompleted reports whether a personalized RSVP submission may mark
// the invitation completed. Requires a non-empty status; failed is terminal.
func (s EmailStatus) CanMarkCompleted() bool {
	return s == EmailStatusQueued || s == EmailStatusSent || s == EmailStatusOpened
}

// Group is the contact-level wrapper around one or more guests of an event.
type Group struct {
	bun.BaseModel `bun:"table:groups"`

	ID           string    `bun:"id,pk" json:"id"`
	EventID      string    `bun:"event_id,notnull" json:"event_id"`
	GroupName    string    `bun:"group_name" json:"group_name"`
	ContactEmail string    `bun:"contact_email" json:"contact_email"`
	ContactPhone string    `bun:"contact_phone" json:"contact_phone"`
	CreatedAt    time.Time `bun:"created_at,nullzero" json:"created_at"`
}

// Guest belongs to one event and one group. Attending is tri-state:
// nil means the guest has not responded yet.
type Guest struct {
	bun.BaseModel `bun:"table:guests"`

	ID             string      `bun:"id,pk" json:"id"`
	EventID        string      `bun:"event_id,notnull" json:"event_id"`
	GroupID        string      `bun:"group_id,notnull" json:"group_id"`
	FullName       string      `bun:"full_name,notnull" json:"full_name"`
	Email          string      `bun:"email" json:"email"`
	Phone          string      `bun:"phone" json:"phone"`
	Attending      *bool       `bun:"attending" json:"attending"`
	EmailStatus    EmailStatus `bun:"email_status" json:"email_status"`
	EmailError     string      `bun:"email_error" json:"email_error,omitempty"`
	EmailMessageID string      `bun:"email_message_id" json:"email_message_id,omitempty"`
	CreatedAt      time.Time   `bun:"created_at,nullzero" json:"created_at"`
}

// PublicGuest is what the personalized RSVP page may see about a guest.
type PublicGuest struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (g *Guest) Public() *PublicGuest {
	return &PublicGuest{ID: g.ID, FullName: g.FullName, Email: g.Email, Phone: g.Phone}
}

// GroupWithGuests is one node of the owner's RSVP tree.
type GroupWithGuests struct {
	Group
	Guests []Guest `json:"guests"`
}

// GuestPatch carries the owner-editable guest fields.
type GuestPatch struct {
	FullName  *string `json:"full_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Attending *bool   `json:"attending"`
}

// GroupPatch carries the owner-editable group fields.
type GroupPatch struct {
	GroupName    *string `json:"group_name"`
	ContactEmail *string `json:"contact_email"`
	ContactPhone *string `json:"contact_phone"`
}
