package models

import "strconv"

// CheckoutRequest is the dashboard's request to start a credit purchase.
// The optional event fields let the purchase double as a publish action
// once the payment lands.
type CheckoutRequest struct {
	PriceID             string `json:"priceId"`
	EventID             string `json:"eventId,omitempty"`
	TargetMaxGuests     int    `json:"targetMaxGuests,omitempty"`
	PublishAfterPayment bool   `json:"publishAfterPayment,omitempty"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// SessionMetadata is the contract carried through Stripe: written onto the
// checkout session at creation, read back by the webhook. All values are
// strings because Stripe metadata is a string map.
type SessionMetadata struct {
	UserID              string
	ProductType         string
	Invitations         string
	PackName            string
	EventID             string
	TargetMaxGuests     string
	PublishAfterPayment string
}

func ParseSessionMetadata(m map[string]string) SessionMetadata {
	return SessionMetadata{
		UserID:              m["userId"],
		ProductType:         m["productType"],
		Invitations:         m["invitations"],
		PackName:            m["packName"],
		EventID:             m["eventId"],
		TargetMaxGuests:     m["targetMaxGuests"],
		PublishAfterPayment: m["publishAfterPayment"],
	}
}

func (m SessionMetadata) ToMap() map[string]string {
	return map[string]string{
		"userId":              m.UserID,
		"productType":         m.ProductType,
		"invitations":         m.Invitations,
		"packName":            m.PackName,
		"eventId":             m.EventID,
		"targetMaxGuests":     m.TargetMaxGuests,
		"publishAfterPayment": m.PublishAfterPayment,
	}
}

// Quantity is the number of credits the purchased pack grants.
func (m SessionMetadata) Quantity() int {
	n, err := strconv.Atoi(m.Invitations)
	if err != nil {
		return 0
	}
	return n
}

// HasEvent reports whether the session is linked to an event. The frontend
// historically sent the literal string "null" for no event; treat it as absent.
func (m SessionMetadata) HasEvent() bool {
	return m.EventID != "" && m.EventID != "null"
}

// TargetMax returns the prospective max_guests, if the metadata carries a
// numeric value.
func (m SessionMetadata) TargetMax() (int, bool) {
	n, err := strconv.Atoi(m.TargetMaxGuests)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (m SessionMetadata) WantsPublish() bool {
	return m.PublishAfterPayment == "true"
}

// StripeProduct is the flattened product+price view served to the pricing page.
type StripeProduct struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image,omitempty"`
	PriceID     string            `json:"priceId,omitempty"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// SessionVerification echoes the state of a checkout session back to the
// frontend polling after redirect.
type SessionVerification struct {
	OK            bool              `json:"ok"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
}
