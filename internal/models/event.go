package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPending   EventStatus = "pending"
	EventStatusPublished EventStatus = "published"
)

// Event is an invitation page. While published, its MaxGuests reserves that
// much capacity of the event's product type against the owner's balance.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID             string      `bun:"id,pk" json:"id"`
	UserID         string      `bun:"user_id,notnull" json:"user_id"`
	TitleText      string      `bun:"title_text" json:"title_text"`
	EventDate      string      `bun:"event_date" json:"event_date"`
	EventTime      string      `bun:"event_time" json:"event_time"`
	Location       string      `bun:"location" json:"location"`
	Notes          string      `bun:"notes" json:"notes"`
	DesignJSON     string      `bun:"design_json" json:"design_json"`
	Status         EventStatus `bun:"status,notnull,default:'draft'" json:"status"`
	MaxGuests      int         `bun:"max_guests,notnull,default:0" json:"max_guests"`
	InvitationType string      `bun:"invitation_type" json:"invitation_type"`
	CreatedAt      time.Time   `bun:"created_at,nullzero" json:"created_at"`
	UpdatedAt      time.Time   `bun:"updated_at,nullzero" json:"updated_at"`
}

// ProductType returns the credit category this event is metered against:
// the invitation_type prefix before ":", lowercased ("url:classic" -> "url").
func (e *Event) ProductType() string {
	return ProductTypeOf(e.InvitationType)
}

func ProductTypeOf(invitationType string) string {
	t := strings.ToLower(strings.TrimSpace(invitationType))
	if i := strings.Index(t, ":"); i >= 0 {
		return t[:i]
	}
	return t
}

// EventPatch carries the owner-editable fields of an event. Nil fields are
// left untouched. Status is settable only through the publish flow.
type EventPatch struct {
	TitleText      *string      `json:"title_text"`
	EventDate      *string      `json:"event_date"`
	EventTime      *string      `json:"event_time"`
	Location       *string      `json:"location"`
	Notes          *string      `json:"notes"`
	DesignJSON     *string      `json:"design_json"`
	MaxGuests      *int         `json:"max_guests"`
	InvitationType *string      `json:"invitation_type"`
	Status         *EventStatus `json:"status"`
}

// Empty reports whether the patch would change nothing.
func (p *EventPatch) Empty() bool {
	return p.TitleText == nil && p.EventDate == nil && p.EventTime == nil &&
		p.Location == nil && p.Notes == nil && p.DesignJSON == nil &&
		p.MaxGuests == nil && p.InvitationType == nil && p.Status == nil
}

// PublicEvent is the subset of fields exposed on the public invitation page.
type PublicEvent struct {
	ID             string      `json:"id"`
	TitleText      string      `json:"title_text"`
	EventDate      string      `json:"event_date"`
	EventTime      string      `json:"event_time"`
	Location       string      `json:"location"`
	Notes          string      `json:"notes"`
	Status         EventStatus `json:"status"`
	DesignJSON     string      `json:"design_json"`
	MaxGuests      int         `json:"max_guests"`
	InvitationType string      `json:"invitation_type"`
}

func (e *Event) Public() *PublicEvent {
	return &PublicEvent{
		ID:             e.ID,
		TitleText:      e.TitleText,
		EventDate:      e.EventDate,
		EventTime:      e.EventTime,
		Location:       e.Location,
		Notes:          e.Notes,
		Status:         e.Status,
		DesignJSON:     e.DesignJSON,
		MaxGuests:      e.MaxGuests,
		InvitationType: e.InvitationType,
	}
}
