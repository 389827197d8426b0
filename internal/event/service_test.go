package event

import (
	"context"
	"errors"
	"testing"

	"ms-invites/internal/ledger"
	"ms-invites/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDB struct {
	mock.Mock
}

func (m *mockDB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *mockDB) GetEventOwned(ctx context.Context, id, userID string) (*models.Event, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *mockDB) ListEvents(ctx context.Context, userID string) ([]models.Event, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *mockDB) ListPublishedEvents(ctx context.Context, userID, productTypePrefix string) ([]models.Event, error) {
	args := m.Called(ctx, userID, productTypePrefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *mockDB) CreateEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockDB) UpdateEvent(ctx context.Context, id, userID string, patch *models.EventPatch) (*models.Event, error) {
	args := m.Called(ctx, id, userID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *mockDB) DeleteEvent(ctx context.Context, id, userID string) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

type mockBalances struct {
	mock.Mock
}

func (m *mockBalances) TotalPurchased(ctx context.Context, userID, productType string) (int, error) {
	args := m.Called(ctx, userID, productType)
	return args.Int(0), args.Error(1)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) LockBalance(ctx context.Context, userID, productType, holder string) (bool, error) {
	args := m.Called(ctx, userID, productType, holder)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocker) UnlockBalance(ctx context.Context, userID, productType, holder string) error {
	args := m.Called(ctx, userID, productType, holder)
	return args.Error(0)
}

func publishedEvents(maxes ...int) []models.Event {
	events := make([]models.Event, 0, len(maxes))
	for i, max := range maxes {
		events = append(events, models.Event{
			ID:             string(rune('a' + i)),
			Status:         models.EventStatusPublished,
			MaxGuests:      max,
			InvitationType: "url:classic",
		})
	}
	return events
}

func TestReservedCapacitySumsPublishedMaxGuests(t *testing.T) {
	db := new(mockDB)
	db.On("ListPublishedEvents", mock.Anything, "user-1", "url").
		Return(publishedEvents(25, 15), nil)

	service := NewService(db, new(mockBalances), nil, nil, nil)

	reserved, err := service.ReservedCapacity(context.Background(), "user-1", "url")
	require.NoError(t, err)
	assert.Equal(t, 40, reserved)
}

func TestCheckPublishCapacityRejectsOverBalance(t *testing.T) {
	db := new(mockDB)
	db.On("ListPublishedEvents", mock.Anything, "user-1", "url").
		Return(publishedEvents(25, 15), nil)

	balances := new(mockBalances)
	balances.On("TotalPurchased", mock.Anything, "user-1", "url").Return(100, nil)

	service := NewService(db, balances, nil, nil, nil)

	// 100 purchased, 40 reserved elsewhere: 61 does not fit, 60 does.
	err := service.CheckPublishCapacity(context.Background(), nil, "user-1", 61, "url")
	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 61, insufficient.Needed)
	assert.Equal(t, 60, insufficient.Available)

	require.NoError(t, service.CheckPublishCapacity(context.Background(), nil, "user-1", 60, "url"))
}

func TestCheckPublishCapacityExcludesOwnReservation(t *testing.T) {
	current := &models.Event{
		ID:             "event-1",
		Status:         models.EventStatusPublished,
		MaxGuests:      40,
		InvitationType: "url:classic",
	}

	db := new(mockDB)
	db.On("ListPublishedEvents", mock.Anything, "user-1", "url").
		Return([]models.Event{*current}, nil)

	balances := new(mockBalances)
	balances.On("TotalPurchased", mock.Anything, "user-1", "url").Return(50, nil)

	service := NewService(db, balances, nil, nil, nil)

	// The event holds all 40 reserved credits itself, so growing it to 50
	// is allowed while 51 is not.
	require.NoError(t, service.CheckPublishCapacity(context.Background(), current, "user-1", 50, "url"))

	err := service.CheckPublishCapacity(context.Background(), current, "user-1", 51, "url")
	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 51, insufficient.Needed)
	assert.Equal(t, 50, insufficient.Available)
}

func TestCheckPublishCapacityClampsNegativeAvailable(t *testing.T) {
	db := new(mockDB)
	db.On("ListPublishedEvents", mock.Anything, "user-1", "url").
		Return(publishedEvents(30), nil)

	balances := new(mockBalances)
	balances.On("TotalPurchased", mock.Anything, "user-1", "url").Return(10, nil)

	service := NewService(db, balances, nil, nil, nil)

	err := service.CheckPublishCapacity(context.Background(), nil, "user-1", 5, "url")
	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Needed)
	assert.Equal(t, 0, insufficient.Available)
}

func TestPatchEventPublishRunsGateUnderLock(t *testing.T) {
	draft := &models.Event{
		ID:             "event-1",
		UserID:         "user-1",
		Status:         models.EventStatusDraft,
		MaxGuests:      30,
		InvitationType: "url:classic",
	}
	published := *draft
	published.Status = models.EventStatusPublished

	db := new(mockDB)
	db.On("GetEventOwned", mock.Anything, "event-1", "user-1").Return(draft, nil)
	db.On("ListPublishedEvents", mock.Anything, "user-1", "url").Return([]models.Event{}, nil)
	db.On("UpdateEvent", mock.Anything, "event-1", "user-1", mock.Anything).Return(&published, nil)

	balances := new(mockBalances)
	balances.On("TotalPurchased", mock.Anything, "user-1", "url").Return(50, nil)

	locker := new(mockLocker)
	locker.On("LockBalance", mock.Anything, "user-1", "url", mock.Anything).Return(true, nil)
	locker.On("UnlockBalance", mock.Anything, "user-1", "url", mock.Anything).Return(nil)

	service := NewService(db, balances, locker, nil, nil)

	status := models.EventStatusPublished
	updated, err := service.PatchEvent(context.Background(), "event-1", "user-1", &models.EventPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusPublished, updated.Status)
	locker.AssertExpectations(t)
}

func TestPatchEventPublishRejectedOverBalance(t *testing.T) {
	draft := &models.Event{
		ID:             "event-1",
		UserID:         "user-1",
		Status:         models.EventStatusDraft,
		MaxGuests:      30,
		InvitationType: "url:classic",
	}

	db := new(mockDB)
	db.On("GetEventOwned", mock.Anything, "event-1", "user-1").Return(draft, nil)
	db.On("ListPublishedEvents", mock.Anything, "user-1", "url").Return([]models.Event{}, nil)

	balances := new(mockBalances)
	balances.On("TotalPurchased", mock.Anything, "user-1", "url").Return(10, nil)

	service := NewService(db, balances, nil, nil, nil)

	status := models.EventStatusPublished
	_, err := service.PatchEvent(context.Background(), "event-1", "user-1", &models.EventPatch{Status: &status})

	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 30, insufficient.Needed)
	assert.Equal(t, 10, insufficient.Available)
	db.AssertNotCalled(t, "UpdateEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPatchEventContentEditSkipsGate(t *testing.T) {
	published := &models.Event{
		ID:             "event-1",
		UserID:         "user-1",
		Status:         models.EventStatusPublished,
		MaxGuests:      30,
		InvitationType: "url:classic",
	}
	updated := *published
	updated.TitleText = "New title"

	db := new(mockDB)
	db.On("GetEventOwned", mock.Anything, "event-1", "user-1").Return(published, nil)
	db.On("UpdateEvent", mock.Anything, "event-1", "user-1", mock.Anything).Return(&updated, nil)

	balances := new(mockBalances)
	service := NewService(db, balances, nil, nil, nil)

	title := "New title"
	result, err := service.PatchEvent(context.Background(), "event-1", "user-1", &models.EventPatch{TitleText: &title})
	require.NoError(t, err)
	assert.Equal(t, "New title", result.TitleText)
	balances.AssertNotCalled(t, "TotalPurchased", mock.Anything, mock.Anything, mock.Anything)
}

func TestPatchEventEmptyPatch(t *testing.T) {
	service := NewService(new(mockDB), new(mockBalances), nil, nil, nil)

	_, err := service.PatchEvent(context.Background(), "event-1", "user-1", &models.EventPatch{})
	assert.ErrorIs(t, err, ErrNoFields)
}

func TestPatchEventNotFound(t *testing.T) {
	db := new(mockDB)
	db.On("GetEventOwned", mock.Anything, "missing", "user-1").Return(nil, nil)

	service := NewService(db, new(mockBalances), nil, nil, nil)

	title := "x"
	_, err := service.PatchEvent(context.Background(), "missing", "user-1", &models.EventPatch{TitleText: &title})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestApplyPaidEventPatchSkipsGate(t *testing.T) {
	pending := &models.Event{
		ID:             "event-1",
		UserID:         "user-1",
		Status:         models.EventStatusPending,
		MaxGuests:      10,
		InvitationType: "url:classic",
	}
	published := *pending
	published.Status = models.EventStatusPublished
	published.MaxGuests = 200

	db := new(mockDB)
	db.On("GetEventOwned", mock.Anything, "event-1", "user-1").Return(pending, nil)
	db.On("UpdateEvent", mock.Anything, "event-1", "user-1", mock.Anything).Return(&published, nil)

	balances := new(mockBalances)
	service := NewService(db, balances, nil, nil, nil)

	targetMax := 200
	require.NoError(t, service.ApplyPaidEventPatch(context.Background(), "event-1", "user-1", &targetMax, true))
	balances.AssertNotCalled(t, "TotalPurchased", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkPendingOnlyTouchesDrafts(t *testing.T) {
	published := &models.Event{
		ID:     "event-1",
		UserID: "user-1",
		Status: models.EventStatusPublished,
	}

	db := new(mockDB)
	db.On("GetEventOwned", mock.Anything, "event-1", "user-1").Return(published, nil)

	service := NewService(db, new(mockBalances), nil, nil, nil)

	require.NoError(t, service.MarkPending(context.Background(), "event-1", "user-1"))
	db.AssertNotCalled(t, "UpdateEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteEventNotFound(t *testing.T) {
	db := new(mockDB)
	db.On("DeleteEvent", mock.Anything, "missing", "user-1").Return(false, nil)

	service := NewService(db, new(mockBalances), nil, nil, nil)

	err := service.DeleteEvent(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestPublicEventHidesDrafts(t *testing.T) {
	draft := &models.Event{ID: "event-1", Status: models.EventStatusDraft}

	db := new(mockDB)
	db.On("GetEvent", mock.Anything, "event-1").Return(draft, nil)

	service := NewService(db, new(mockBalances), nil, nil, nil)

	_, err := service.PublicEvent(context.Background(), "event-1")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCheckPublishCapacityPropagatesBalanceError(t *testing.T) {
	balances := new(mockBalances)
	balances.On("TotalPurchased", mock.Anything, "user-1", "url").Return(0, errors.New("db down"))

	service := NewService(new(mockDB), balances, nil, nil, nil)

	err := service.CheckPublishCapacity(context.Background(), nil, "user-1", 5, "url")
	require.Error(t, err)
	var insufficient *ledger.InsufficientBalanceError
	assert.False(t, errors.As(err, &insufficient))
}
