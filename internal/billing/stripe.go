package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ms-invites/internal/config"
	"ms-invites/internal/logger"
	"ms-invites/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrPriceRequired          = errors.New("priceId is required")
	ErrSessionForbidden       = errors.New("checkout session belongs to another user")
)

// EventMarker flags an event as pending while its checkout session is open.
type EventMarker interface {
	MarkPending(ctx context.Context, eventID, userID string) error
}

// StripeService wraps the Stripe client for the pricing page, checkout
// session creation and post-redirect verification.
type StripeService struct {
	client      *client.API
	cfg         config.StripeConfig
	frontendURL string
	events      EventMarker
	log         *logger.Logger
}

func NewStripeService(cfg config.StripeConfig, frontendURL string, events EventMarker, log *logger.Logger) (*StripeService, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client:      sc,
		cfg:         cfg,
		frontendURL: frontendURL,
		events:      events,
		log:         log,
	}, nil
}

// ListProducts returns the active catalog flattened for the pricing page.
// Pack sizing lives in product metadata (productType, invitations, packName).
func (s *StripeService) ListProducts(ctx context.Context) ([]models.StripeProduct, error) {
	params := &stripe.ProductListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.AddExpand("data.default_price")

	var products []models.StripeProduct
	iter := s.client.Products.List(params)
	for iter.Next() {
		p := iter.Product()
		out := models.StripeProduct{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Metadata:    p.Metadata,
		}
		if len(p.Images) > 0 {
			out.Image = p.Images[0]
		}
		if p.DefaultPrice != nil {
			out.PriceID = p.DefaultPrice.ID
			out.Amount = float64(p.DefaultPrice.UnitAmount) / 100.0
			out.Currency = string(p.DefaultPrice.Currency)
		}
		products = append(products, out)
	}
	if err := iter.Err(); err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to list products: %v", err))
		return nil, err
	}
	return products, nil
}

// CreateCheckoutSession starts a credit purchase. Pack details are resolved
// from the price's product so the frontend cannot inflate quantities, and
// the full fulfillment contract travels as session metadata for the webhook.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID string, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	if req == nil || req.PriceID == "" {
		return nil, ErrPriceRequired
	}

	priceParams := &stripe.PriceParams{}
	priceParams.Context = ctx
	priceParams.AddExpand("product")
	price, err := s.client.Prices.Get(req.PriceID, priceParams)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve price %s: %v", req.PriceID, err))
		return nil, err
	}

	packMeta := price.Metadata
	if price.Product != nil && len(price.Product.Metadata) > 0 {
		packMeta = price.Product.Metadata
	}

	metadata := models.SessionMetadata{
		UserID:      userID,
		ProductType: packMeta["productType"],
		Invitations: packMeta["invitations"],
		PackName:    packMeta["packName"],
	}
	if metadata.PackName == "" && price.Product != nil {
		metadata.PackName = price.Product.Name
	}
	if req.EventID != "" {
		metadata.EventID = req.EventID
		metadata.TargetMaxGuests = strconv.Itoa(req.TargetMaxGuests)
		metadata.PublishAfterPayment = strconv.FormatBool(req.PublishAfterPayment)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.frontendURL + "/dashboard?checkout=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.frontendURL + "/pricing?checkout=cancelled"),
		ClientReferenceID: stripe.String(userID),
	}
	params.Context = ctx
	for k, v := range metadata.ToMap() {
		if v != "" {
			params.AddMetadata(k, v)
		}
	}

	sess, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session: %v", err))
		return nil, err
	}

	if req.EventID != "" && s.events != nil {
		if err := s.events.MarkPending(ctx, req.EventID, userID); err != nil {
			s.log.Warn("STRIPE", fmt.Sprintf("Failed to mark event %s pending: %v", req.EventID, err))
		}
	}

	s.log.Info("STRIPE", fmt.Sprintf("Created checkout session %s for user %s (price %s)", sess.ID, userID, req.PriceID))
	return &models.CheckoutResponse{URL: sess.URL}, nil
}

// VerifySession echoes a checkout session's state to the user who started
// it. Verification never credits anything; the webhook is the only writer.
func (s *StripeService) VerifySession(ctx context.Context, userID, sessionID string) (*models.SessionVerification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve checkout session %s: %v", sessionID, err))
		return nil, err
	}

	owner := sess.Metadata["userId"]
	if owner == "" {
		owner = sess.ClientReferenceID
	}
	if owner != userID {
		return nil, ErrSessionForbidden
	}

	return &models.SessionVerification{
		OK:            sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		PaymentStatus: string(sess.PaymentStatus),
		Status:        string(sess.Status),
		Metadata:      sess.Metadata,
	}, nil
}
