package invitation

import (
	"context"
	"errors"
	"fmt"
	"html"

	"ms-invites/internal/ledger"
	"ms-invites/internal/logger"
	"ms-invites/internal/models"

	qrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrGuestNotFound = errors.New("guest not found")
	ErrForbidden     = errors.New("not the event owner")
	ErrNotEmailEvent = errors.New("event does not use email invitations")
	ErrGuestNoEmail  = errors.New("guest has no email address")
)

// GuestStore is the guest surface the send pipeline needs.
type GuestStore interface {
	GetGuest(ctx context.Context, id string) (*models.Guest, error)
	ListGuestsByEvent(ctx context.Context, eventID string) ([]models.Guest, error)
	SetGuestEmailResult(ctx context.Context, id string, status models.EmailStatus, messageID, emailErr string) error
	MarkGuestOpened(ctx context.Context, id string) (bool, error)
}

type EventReader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// BalanceAccess combines the read and the debit the send pipeline performs.
type BalanceAccess interface {
	UsageAvailable(ctx context.Context, userID, productType string) (int, error)
	DebitUsage(ctx context.Context, userID, productType string, n int) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) (string, error)
}

type UsagePublisher interface {
	PublishUsageDebited(userID, productType string, n int) error
}

type Service struct {
	Guests GuestStore
	Events EventReader
	Ledger BalanceAccess
	Mailer Mailer
	Kafka  UsagePublisher
	Logger *logger.Logger
	Links  LinkBuilder
}

// LinkBuilder renders the URLs embedded in outbound invitations.
type LinkBuilder struct {
	FrontendURL string
	APIURL      string
}

// RSVPLink is the guest's personalized RSVP page.
func (l LinkBuilder) RSVPLink(guestID string) string {
	return fmt.Sprintf("%s/rsvp/%s", l.FrontendURL, guestID)
}

// PixelLink is the open-tracking image served by this service.
func (l LinkBuilder) PixelLink(guestID string) string {
	return fmt.Sprintf("%s/api/invitations/track/%s/pixel.gif", l.APIURL, guestID)
}

func NewService(guests GuestStore, events EventReader, ledgerSvc BalanceAccess, m Mailer, kafka UsagePublisher, links LinkBuilder, log *logger.Logger) *Service {
	return &Service{Guests: guests, Events: events, Ledger: ledgerSvc, Mailer: m, Kafka: kafka, Links: links, Logger: log}
}

// SendResult reports one delivery attempt.
type SendResult struct {
	GuestID   string             `json:"guest_id"`
	Status    models.EmailStatus `json:"status"`
	MessageID string             `json:"message_id,omitempty"`
	Error     string             `json:"error,omitempty"`
	Debited   bool               `json:"debited"`
}

// BulkSendResult aggregates a send-all run.
type BulkSendResult struct {
	Total   int          `json:"total"`
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
	Skipped int          `json:"skipped"`
	Debited int          `json:"debited"`
	Results []SendResult `json:"results"`
}

// SendGuestInvitation delivers one invitation email. The credit is debited
// before the delivery attempt whenever the guest has not been sent to yet,
// and is never refunded on failure: an attempt consumes the credit.
func (s *Service) SendGuestInvitation(ctx context.Context, guestID, userID string) (*SendResult, error) {
	guest, event, err := s.guestForSend(ctx, guestID, userID)
	if err != nil {
		return nil, err
	}

	productType := event.ProductType()
	needsDebit := guest.EmailStatus != models.EmailStatusSent
	if needsDebit {
		available, err := s.Ledger.UsageAvailable(ctx, userID, productType)
		if err != nil {
			return nil, fmt.Errorf("check balance: %w", err)
		}
		if available <= 0 {
			if available < 0 {
				available = 0
			}
			return nil, &ledger.InsufficientBalanceError{Needed: 1, Available: available}
		}
		if err := s.Ledger.DebitUsage(ctx, userID, productType, 1); err != nil {
			return nil, fmt.Errorf("debit credit: %w", err)
		}
		s.notifyDebit(userID, productType, 1)
	}

	result := s.deliver(ctx, guest, event)
	result.Debited = needsDebit
	return &result, nil
}

// SendAllInvitations delivers to every addressable guest of the event.
// The balance is read once and decremented locally so a long run cannot
// overspend; the successful first-time sends are debited in one aggregated
// write at the end.
func (s *Service) SendAllInvitations(ctx context.Context, eventID, userID string, pendingOnly bool) (*BulkSendResult, error) {
	event, err := s.emailEventOwned(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	guests, err := s.Guests.ListGuestsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}

	productType := event.ProductType()
	available, err := s.Ledger.UsageAvailable(ctx, userID, productType)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if available < 0 {
		available = 0
	}

	out := &BulkSendResult{}
	for i := range guests {
		guest := &guests[i]
		if guest.Email == "" {
			continue
		}
		alreadySent := guest.EmailStatus == models.EmailStatusSent ||
			guest.EmailStatus == models.EmailStatusOpened ||
			guest.EmailStatus == models.EmailStatusCompleted
		if pendingOnly && alreadySent {
			continue
		}
		out.Total++

		needsDebit := guest.EmailStatus != models.EmailStatusSent
		if needsDebit && available-out.Debited <= 0 {
			out.Skipped++
			out.Results = append(out.Results, SendResult{
				GuestID: guest.ID,
				Status:  guest.EmailStatus,
				Error:   "insufficient balance",
			})
			continue
		}

		result := s.deliver(ctx, guest, event)
		if result.Status == models.EmailStatusSent {
			out.Sent++
			if needsDebit {
				result.Debited = true
				out.Debited++
			}
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, result)
	}

	// One aggregated debit for the run; only successful first-time sends
	// consume credits here.
	if out.Debited > 0 {
		if err := s.Ledger.DebitUsage(ctx, userID, productType, out.Debited); err != nil {
			s.Logger.Error("INVITE", fmt.Sprintf("Failed to debit %d credit(s) after bulk send for event %s: %v", out.Debited, eventID, err))
		} else {
			s.notifyDebit(userID, productType, out.Debited)
		}
	}

	s.Logger.Info("INVITE", fmt.Sprintf("Bulk send for event %s: %d sent, %d failed, %d skipped, %d debited",
		eventID, out.Sent, out.Failed, out.Skipped, out.Debited))
	return out, nil
}

// TrackOpen handles a tracking-pixel hit. Advancing is best-effort and
// monotonic; unknown guests are ignored so the pixel never errors.
func (s *Service) TrackOpen(ctx context.Context, guestID string) {
	advanced, err := s.Guests.MarkGuestOpened(ctx, guestID)
	if err != nil {
		s.Logger.Warn("INVITE", fmt.Sprintf("Failed to record open for guest %s: %v", guestID, err))
		return
	}
	if advanced {
		s.Logger.Info("INVITE", fmt.Sprintf("Guest %s opened their invitation", guestID))
	}
}

// InvitationQR renders the guest's personalized RSVP link as a QR PNG for
// printed invitations.
func (s *Service) InvitationQR(ctx context.Context, guestID, userID string, size int) ([]byte, error) {
	guest, err := s.Guests.GetGuest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, ErrGuestNotFound
	}
	if _, err := s.ownedEvent(ctx, guest.EventID, userID); err != nil {
		return nil, err
	}

	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(s.Links.RSVPLink(guestID), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// ---------------- internals ----------------

func (s *Service) ownedEvent(ctx context.Context, eventID, userID string) (*models.Event, error) {
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

func (s *Service) emailEventOwned(ctx context.Context, eventID, userID string) (*models.Event, error) {
	event, err := s.ownedEvent(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if event.ProductType() != "email" {
		return nil, ErrNotEmailEvent
	}
	return event, nil
}

func (s *Service) guestForSend(ctx context.Context, guestID, userID string) (*models.Guest, *models.Event, error) {
	guest, err := s.Guests.GetGuest(ctx, guestID)
	if err != nil {
		return nil, nil, err
	}
	if guest == nil {
		return nil, nil, ErrGuestNotFound
	}
	event, err := s.emailEventOwned(ctx, guest.EventID, userID)
	if err != nil {
		return nil, nil, err
	}
	if guest.Email == "" {
		return nil, nil, ErrGuestNoEmail
	}
	return guest, event, nil
}

// deliver sends one email and records the outcome on the guest. Status
// writes respect the lifecycle: opened/completed are never regressed.
func (s *Service) deliver(ctx context.Context, guest *models.Guest, event *models.Event) SendResult {
	subject, htmlBody, textBody := s.composeInvitation(guest, event)

	messageID, err := s.Mailer.Send(ctx, guest.Email, subject, htmlBody, textBody)
	if err != nil {
		s.Logger.Error("INVITE", fmt.Sprintf("Delivery to guest %s failed: %v", guest.ID, err))
		if guest.EmailStatus.CanMarkFailed() {
			if dbErr := s.Guests.SetGuestEmailResult(ctx, guest.ID, models.EmailStatusFailed, "", err.Error()); dbErr != nil {
				s.Logger.Error("INVITE", fmt.Sprintf("Failed to record failure for guest %s: %v", guest.ID, dbErr))
			}
			guest.EmailStatus = models.EmailStatusFailed
		}
		return SendResult{GuestID: guest.ID, Status: models.EmailStatusFailed, Error: err.Error()}
	}

	if guest.EmailStatus.CanMarkSent() {
		if dbErr := s.Guests.SetGuestEmailResult(ctx, guest.ID, models.EmailStatusSent, messageID, ""); dbErr != nil {
			s.Logger.Error("INVITE", fmt.Sprintf("Failed to record send for guest %s: %v", guest.ID, dbErr))
		}
		guest.EmailStatus = models.EmailStatusSent
	}
	return SendResult{GuestID: guest.ID, Status: models.EmailStatusSent, MessageID: messageID}
}

func (s *Service) composeInvitation(guest *models.Guest, event *models.Event) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("You're invited: %s", event.TitleText)
	link := s.Links.RSVPLink(guest.ID)
	pixel := s.Links.PixelLink(guest.ID)

	htmlBody = fmt.Sprintf(
		`<p>Hi %s,</p>
<p>You are invited to <strong>%s</strong> on %s %s at %s.</p>
<p><a href="%s">Open your invitation and RSVP</a></p>
<img src="%s" width="1" height="1" alt="" />`,
		html.EscapeString(guest.FullName),
		html.EscapeString(event.TitleText),
		html.EscapeString(event.EventDate),
		html.EscapeString(event.EventTime),
		html.EscapeString(event.Location),
		link, pixel)

	textBody = fmt.Sprintf("Hi %s,\n\nYou are invited to %s on %s %s at %s.\n\nRSVP here: %s\n",
		guest.FullName, event.TitleText, event.EventDate, event.EventTime, event.Location, link)
	return subject, htmlBody, textBody
}

func (s *Service) notifyDebit(userID, productType string, n int) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishUsageDebited(userID, productType, n); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish usage-debited message: %v", err))
	}
}
