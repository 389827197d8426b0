package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductTypeOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"url:classic", "url"},
		{"url", "url"},
		{"EMAIL:Premium", "email"},
		{"  email:basic  ", "email"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ProductTypeOf(c.in), "input %q", c.in)
	}
}

func TestEmailStatusTransitions(t *testing.T) {
	cases := []struct {
		status    EmailStatus
		sent      bool
		failed    bool
		opened    bool
		completed bool
	}{
		{EmailStatusNone, true, true, false, false},
		{EmailStatusQueued, true, true, true, true},
		{EmailStatusSent, false, true, true, true},
		{EmailStatusFailed, true, true, false, false},
		{EmailStatusOpened, false, false, false, true},
		{EmailStatusCompleted, false, false, false, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.sent, c.status.CanMarkSent(), "%q CanMarkSent", c.status)
		assert.Equal(t, c.failed, c.status.CanMarkFailed(), "%q CanMarkFailed", c.status)
		assert.Equal(t, c.opened, c.status.CanMarkOpened(), "%q CanMarkOpened", c.status)
		assert.Equal(t, c.completed, c.status.CanMarkCompleted(), "%q CanMarkCompleted", c.status)
	}
}

func TestSessionMetadataRoundTrip(t *testing.T) {
	md := ParseSessionMetadata(map[string]string{
		"userId":              "user-1",
		"productType":         "url",
		"invitations":         "50",
		"packName":            "Starter",
		"eventId":             "event-1",
		"targetMaxGuests":     "120",
		"publishAfterPayment": "true",
	})

	assert.Equal(t, "user-1", md.UserID)
	assert.Equal(t, 50, md.Quantity())
	assert.True(t, md.HasEvent())
	assert.True(t, md.WantsPublish())

	targetMax, ok := md.TargetMax()
	assert.True(t, ok)
	assert.Equal(t, 120, targetMax)

	assert.Equal(t, "event-1", md.ToMap()["eventId"])
}

func TestSessionMetadataAbsentValues(t *testing.T) {
	md := ParseSessionMetadata(map[string]string{
		"userId": "user-1",
	})

	assert.Equal(t, 0, md.Quantity())
	assert.False(t, md.HasEvent())
	assert.False(t, md.WantsPublish())

	_, ok := md.TargetMax()
	assert.False(t, ok)
}

func TestSessionMetadataNullEventID(t *testing.T) {
	// The frontend sends the literal string "null" when no event is linked.
	md := ParseSessionMetadata(map[string]string{"eventId": "null"})
	assert.False(t, md.HasEvent())
}

func TestPurchaseRecordHasEventWork(t *testing.T) {
	assert.False(t, (&PurchaseRecord{}).HasEventWork())
	assert.False(t, (&PurchaseRecord{EventID: "event-1"}).HasEventWork())
	assert.True(t, (&PurchaseRecord{EventID: "event-1", PublishAfterPayment: true}).HasEventWork())
	assert.True(t, (&PurchaseRecord{EventID: "event-1", HasTargetMaxGuests: true}).HasEventWork())
	assert.False(t, (&PurchaseRecord{PublishAfterPayment: true}).HasEventWork())
}
