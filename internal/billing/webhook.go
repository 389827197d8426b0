package billing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ms-invites/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookError classifies a webhook failure so the handler can pick the
// right status code without leaking internals to the caller.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleWebhook verifies and processes one Stripe webhook delivery. Only
// paid checkout sessions reach the finalizer; everything else is logged and
// acknowledged so Stripe stops retrying.
func (s *StripeService) HandleWebhook(r *http.Request, finalizer *Finalizer) error {
	if s.cfg.WebhookSecret == "" {
		s.log.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.cfg.WebhookSecret, opts)
	if err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.log.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			s.log.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
				OriginalErr:   err,
			}
		}

		// completed fires for async methods before the money moves; the
		// async_payment_succeeded delivery finishes those later.
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			s.log.Info("WEBHOOK", fmt.Sprintf("Session %s not paid yet (%s), waiting for async settlement", sess.ID, sess.PaymentStatus))
			return nil
		}

		record, werr := s.purchaseFromSession(&sess, event.ID)
		if werr != nil {
			return werr
		}

		if _, err := finalizer.FinalizePurchase(r.Context(), record); err != nil {
			s.log.Error("WEBHOOK", fmt.Sprintf("Failed to finalize session %s: %v", sess.ID, err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("Failed to finalize session %s: %v", sess.ID, err),
				OriginalErr:   err,
			}
		}

	case "checkout.session.async_payment_failed", "checkout.session.expired":
		s.log.Warn("WEBHOOK", fmt.Sprintf("Checkout session did not complete: %s", event.Type))

	default:
		s.log.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}

	return nil
}

// purchaseFromSession maps a paid checkout session and its metadata contract
// onto a purchase record ready for the finalizer.
func (s *StripeService) purchaseFromSession(sess *stripe.CheckoutSession, stripeEventID string) (*models.PurchaseRecord, *WebhookError) {
	md := models.ParseSessionMetadata(sess.Metadata)

	userID := md.UserID
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	if userID == "" {
		s.log.Error("WEBHOOK", fmt.Sprintf("Session %s has no user in metadata", sess.ID))
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: fmt.Sprintf("Session %s has no userId in metadata", sess.ID),
		}
	}

	productType := md.ProductType
	if productType == "" {
		productType = "url"
	}

	record := &models.PurchaseRecord{
		CheckoutSessionID: sess.ID,
		StripeEventID:     stripeEventID,
		UserID:            userID,
		ProductType:       productType,
		PackName:          md.PackName,
		Quantity:          md.Quantity(),
		Price:             float64(sess.AmountTotal) / 100.0,
		Currency:          string(sess.Currency),
		PaymentStatus:     string(sess.PaymentStatus),
		UnitType:          "invitations",
	}
	if md.HasEvent() {
		record.EventID = md.EventID
		if n, ok := md.TargetMax(); ok {
			record.TargetMaxGuests = n
			record.HasTargetMaxGuests = true
		}
		record.PublishAfterPayment = md.WantsPublish()
	}
	return record, nil
}
