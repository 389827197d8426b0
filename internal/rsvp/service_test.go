package rsvp

import (
	"context"
	"testing"

	"ms-invites/internal/logger"
	"ms-invites/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateGroup(ctx context.Context, group *models.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *mockStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *mockStore) UpdateGroup(ctx context.Context, id string, patch *models.GroupPatch) (*models.Group, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *mockStore) DeleteGroup(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CreateGuests(ctx context.Context, guests []models.Guest) error {
	args := m.Called(ctx, guests)
	return args.Error(0)
}

func (m *mockStore) GetGuest(ctx context.Context, id string) (*models.Guest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Guest), args.Error(1)
}

func (m *mockStore) ListGuestsByEvent(ctx context.Context, eventID string) ([]models.Guest, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Guest), args.Error(1)
}

func (m *mockStore) ListGroupsWithGuests(ctx context.Context, eventID string) ([]models.GroupWithGuests, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GroupWithGuests), args.Error(1)
}

func (m *mockStore) UpdateGuest(ctx context.Context, id string, patch *models.GuestPatch) (*models.Guest, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Guest), args.Error(1)
}

func (m *mockStore) DeleteGuest(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SetGuestAttending(ctx context.Context, id string, attending bool) error {
	args := m.Called(ctx, id, attending)
	return args.Error(0)
}

func (m *mockStore) MarkGuestCompleted(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockEventReader struct {
	mock.Mock
}

func (m *mockEventReader) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

type mockDebitor struct {
	mock.Mock
}

func (m *mockDebitor) DebitUsage(ctx context.Context, userID, productType string, n int) error {
	args := m.Called(ctx, userID, productType, n)
	return args.Error(0)
}

func newTestService(store DBLayer, events EventReader, debitor UsageDebitor) *Service {
	return NewService(store, events, debitor, &logger.Logger{})
}

func boolPtr(b bool) *bool { return &b }

func urlEvent() *models.Event {
	return &models.Event{
		ID:             "event-1",
		UserID:         "owner-1",
		Status:         models.EventStatusPublished,
		InvitationType: "url:classic",
	}
}

func emailEvent() *models.Event {
	ev := urlEvent()
	ev.InvitationType = "email:classic"
	return ev
}

func TestSubmitPublicRSVPDebitsAttendingForURLEvents(t *testing.T) {
	store := new(mockStore)
	store.On("CreateGroup", mock.Anything, mock.Anything).Return(nil)
	store.On("CreateGuests", mock.Anything, mock.Anything).Return(nil)

	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(urlEvent(), nil)

	debitor := new(mockDebitor)
	debitor.On("DebitUsage", mock.Anything, "owner-1", "url", 2).Return(nil)

	service := newTestService(store, events, debitor)

	sub := &Submission{
		GroupName: "Smith family",
		Guests: []GuestSubmission{
			{FullName: "Ann Smith", Attending: boolPtr(true)},
			{FullName: "Bob Smith", Attending: boolPtr(true)},
			{FullName: "Cleo Smith", Attending: boolPtr(false)},
		},
	}
	node, err := service.SubmitPublicRSVP(context.Background(), "event-1", sub)
	require.NoError(t, err)
	require.Len(t, node.Guests, 3)
	debitor.AssertExpectations(t)
}

func TestSubmitPublicRSVPNoDebitWhenNobodyAttends(t *testing.T) {
	store := new(mockStore)
	store.On("CreateGroup", mock.Anything, mock.Anything).Return(nil)
	store.On("CreateGuests", mock.Anything, mock.Anything).Return(nil)

	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(urlEvent(), nil)

	debitor := new(mockDebitor)
	service := newTestService(store, events, debitor)

	sub := &Submission{Guests: []GuestSubmission{{FullName: "Ann", Attending: boolPtr(false)}}}
	_, err := service.SubmitPublicRSVP(context.Background(), "event-1", sub)
	require.NoError(t, err)
	debitor.AssertNotCalled(t, "DebitUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitPublicRSVPEmailEventQueuesGuestsWithoutDebit(t *testing.T) {
	var stored []models.Guest
	store := new(mockStore)
	store.On("CreateGroup", mock.Anything, mock.Anything).Return(nil)
	store.On("CreateGuests", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).([]models.Guest)
	}).Return(nil)

	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(emailEvent(), nil)

	debitor := new(mockDebitor)
	service := newTestService(store, events, debitor)

	sub := &Submission{Guests: []GuestSubmission{{FullName: "Ann", Email: "ann@example.com", Attending: boolPtr(true)}}}
	_, err := service.SubmitPublicRSVP(context.Background(), "event-1", sub)
	require.NoError(t, err)

	// Email events charge at send time, and their guests enter the email
	// pipeline as queued.
	debitor.AssertNotCalled(t, "DebitUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, stored, 1)
	assert.Equal(t, models.EmailStatusQueued, stored[0].EmailStatus)
}

func TestSubmitPublicRSVPRejectsDrafts(t *testing.T) {
	draft := urlEvent()
	draft.Status = models.EventStatusDraft

	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(draft, nil)

	service := newTestService(new(mockStore), events, new(mockDebitor))

	_, err := service.SubmitPublicRSVP(context.Background(), "event-1",
		&Submission{Guests: []GuestSubmission{{FullName: "Ann"}}})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestSubmitPublicRSVPValidation(t *testing.T) {
	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(urlEvent(), nil)

	service := newTestService(new(mockStore), events, new(mockDebitor))

	_, err := service.SubmitPublicRSVP(context.Background(), "event-1", &Submission{})
	assert.ErrorIs(t, err, ErrNoGuests)

	_, err = service.SubmitPublicRSVP(context.Background(), "event-1",
		&Submission{Guests: []GuestSubmission{{FullName: "   "}}})
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestSubmitPersonalizedRSVPMarksCompleted(t *testing.T) {
	guest := &models.Guest{ID: "guest-1", EventID: "event-1", EmailStatus: models.EmailStatusOpened}

	store := new(mockStore)
	store.On("GetGuest", mock.Anything, "guest-1").Return(guest, nil)
	store.On("SetGuestAttending", mock.Anything, "guest-1", true).Return(nil)
	store.On("MarkGuestCompleted", mock.Anything, "guest-1").Return(true, nil)

	service := newTestService(store, new(mockEventReader), new(mockDebitor))

	require.NoError(t, service.SubmitPersonalizedRSVP(context.Background(), "guest-1", true))
	store.AssertExpectations(t)
}

func TestGuestForRSVPRequiresPublishedEvent(t *testing.T) {
	guest := &models.Guest{ID: "guest-1", EventID: "event-1", FullName: "Ann"}
	draft := urlEvent()
	draft.Status = models.EventStatusDraft

	store := new(mockStore)
	store.On("GetGuest", mock.Anything, "guest-1").Return(guest, nil)

	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(draft, nil)

	service := newTestService(store, events, new(mockDebitor))

	_, err := service.GuestForRSVP(context.Background(), "guest-1")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestTreeForbiddenForNonOwner(t *testing.T) {
	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(urlEvent(), nil)

	service := newTestService(new(mockStore), events, new(mockDebitor))

	_, err := service.Tree(context.Background(), "event-1", "someone-else")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPatchGuestChecksOwnershipThroughEvent(t *testing.T) {
	guest := &models.Guest{ID: "guest-1", EventID: "event-1"}

	store := new(mockStore)
	store.On("GetGuest", mock.Anything, "guest-1").Return(guest, nil)

	events := new(mockEventReader)
	events.On("GetEvent", mock.Anything, "event-1").Return(urlEvent(), nil)

	service := newTestService(store, events, new(mockDebitor))

	name := "Renamed"
	_, err := service.PatchGuest(context.Background(), "guest-1", "someone-else", &models.GuestPatch{FullName: &name})
	assert.ErrorIs(t, err, ErrForbidden)
	store.AssertNotCalled(t, "UpdateGuest", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteGroupNotFound(t *testing.T) {
	store := new(mockStore)
	store.On("GetGroup", mock.Anything, "missing").Return(nil, nil)

	service := newTestService(store, new(mockEventReader), new(mockDebitor))

	err := service.DeleteGroup(context.Background(), "missing", "owner-1")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
