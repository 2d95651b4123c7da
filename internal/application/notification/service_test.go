package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/learnhub-notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}
func (m *mockNotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockNotificationStore) ListByUser(ctx context.Context, userID string, page, size int) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, page, size)
	return args.Get(0).([]domain.Notification), args.Error(1)
}
func (m *mockNotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
func (m *mockNotificationStore) MarkRead(ctx context.Context, notificationID, userID string, readAt time.Time) (bool, error) {
	args := m.Called(ctx, notificationID, userID, readAt)
	return args.Bool(0), args.Error(1)
}
func (m *mockNotificationStore) ListFailedSince(ctx context.Context, cutoff time.Time) ([]domain.Notification, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
	mu    sync.Mutex
	calls []string
}

func (m *mockDispatcher) Dispatch(ctx context.Context, n *domain.Notification) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, n.UserID)
	m.mu.Unlock()
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func (m *mockDispatcher) dispatchedUsers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func newTestService(store *mockNotificationStore, users *mockDirectory, disp *mockDispatcher, window time.Duration) Service {
	return NewService(ServiceDeps{
		NotificationRepo: store,
		UserRepo:         users,
		Dispatcher:       disp,
		RetryWindow:      window,
	})
}

func validSendRequest(userID string) domain.SendNotificationRequest {
	return domain.SendNotificationRequest{
		UserID:   userID,
		Type:     domain.TypeOrderUpdate,
		Title:    "Order shipped",
		Content:  "Your order is on the way",
		Channels: []string{"mobile", "email"},
	}
}

func TestSend_InvalidRequest_NothingPersisted(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockDirectory{}
	disp := &mockDispatcher{}
	svc := newTestService(store, users, disp, 0)

	req := validSendRequest("u1")
	req.Title = ""

	_, err := svc.Send(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	disp.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSend_UnknownType_Rejected(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockDirectory{}
	disp := &mockDispatcher{}
	svc := newTestService(store, users, disp, 0)

	req := validSendRequest("u1")
	req.Type = "NEWSLETTER"

	_, err := svc.Send(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSend_UnknownRecipient_Rejected(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockDirectory{}
	disp := &mockDispatcher{}
	svc := newTestService(store, users, disp, 0)

	users.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	_, err := svc.Send(context.Background(), validSendRequest("ghost"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSend_PersistsOneRowAndDispatchesAsync(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockDirectory{}
	disp := &mockDispatcher{}
	svc := newTestService(store, users, disp, 0)

	users.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "u1@example.com"}, nil)
	store.On("Put", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(domain.StatusSent, nil)

	n, err := svc.Send(context.Background(), validSendRequest("u1"))

	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotEmpty(t, n.NotificationID)
	assert.Equal(t, domain.StatusPending, n.Status)
	assert.Equal(t, []domain.Channel{domain.ChannelPush, domain.ChannelEmail}, n.Channels)

	svc.Wait()
	store.AssertNumberOfCalls(t, "Put", 1)
	disp.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestSendBulk_EmptyRecipients_Rejected(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockDirectory{}
	disp := &mockDispatcher{}
	svc := newTestService(store, users, disp, 0)

	_, err := svc.SendBulk(context.Background(), domain.BulkSendRequest{Template: validSendRequest("")})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestSendBulk_OneBadRecipient_OthersDelivered(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockDirectory{}
	disp := &mockDispatcher{}
	svc := newTestService(store, users, disp, 0)

	users.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1"}, nil)
	users.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	users.On("Get", mock.Anything, "u3").Return(&domain.User{UserID: "u3"}, nil)
	store.On("Put", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(domain.StatusSent, nil)

	template := validSendRequest("")
	results, err := svc.SendBulk(context.Background(), domain.BulkSendRequest{
		UserIDs:  []string{"u1", "ghost", "u3"},
		Template: template,
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, n := range results {
		assert.Equal(t, domain.StatusSent, n.Status)
	}
	assert.ElementsMatch(t, []string{"u1", "u3"}, disp.dispatchedUsers())
	store.AssertNumberOfCalls(t, "Put", 2)
}

func TestSendBulk_ReturnsFinalStatusPerRow(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockDirectory{}
	disp := &mockDispatcher{}
	svc := newTestService(store, users, disp, 0)

	users.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1"}, nil)
	store.On("Put", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(domain.StatusFailed, nil)

	results, err := svc.SendBulk(context.Background(), domain.BulkSendRequest{
		UserIDs:  []string{"u1"},
		Template: validSendRequest(""),
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.StatusFailed, results[0].Status)
}

func TestMarkRead_CountsOnlyFlippedRows(t *testing.T) {
	store := &mockNotificationStore{}
	svc := newTestService(store, &mockDirectory{}, &mockDispatcher{}, 0)

	store.On("MarkRead", mock.Anything, "n1", "u1", mock.Anything).Return(true, nil)
	store.On("MarkRead", mock.Anything, "n2", "u1", mock.Anything).Return(false, nil) // already read or not owned
	store.On("MarkRead", mock.Anything, "n3", "u1", mock.Anything).Return(true, nil)

	updated, err := svc.MarkRead(context.Background(), "u1", []string{"n1", "n2", "n3"})

	require.NoError(t, err)
	assert.Equal(t, 2, updated)
}

func TestMarkRead_Repeat_IsIdempotent(t *testing.T) {
	store := &mockNotificationStore{}
	svc := newTestService(store, &mockDirectory{}, &mockDispatcher{}, 0)

	store.On("MarkRead", mock.Anything, "n1", "u1", mock.Anything).Return(true, nil).Once()
	store.On("MarkRead", mock.Anything, "n1", "u1", mock.Anything).Return(false, nil)

	first, err := svc.MarkRead(context.Background(), "u1", []string{"n1"})
	require.NoError(t, err)
	second, err := svc.MarkRead(context.Background(), "u1", []string{"n1"})
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestUnreadCount_Passthrough(t *testing.T) {
	store := &mockNotificationStore{}
	svc := newTestService(store, &mockDirectory{}, &mockDispatcher{}, 0)

	store.On("CountUnread", mock.Anything, "u1").Return(7, nil)

	count, err := svc.UnreadCount(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestRetryFailed_UsesConfiguredWindow(t *testing.T) {
	store := &mockNotificationStore{}
	disp := &mockDispatcher{}
	svc := newTestService(store, &mockDirectory{}, disp, 24*time.Hour)

	var gotCutoff time.Time
	store.On("ListFailedSince", mock.Anything, mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { gotCutoff = args.Get(1).(time.Time) }).
		Return([]domain.Notification{}, nil)

	retried, err := svc.RetryFailed(context.Background())

	require.NoError(t, err)
	assert.Zero(t, retried)
	want := time.Now().UTC().Add(-24 * time.Hour)
	assert.WithinDuration(t, want, gotCutoff, 5*time.Second)
	disp.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestRetryFailed_OneCandidateErrors_RestStillRetried(t *testing.T) {
	store := &mockNotificationStore{}
	disp := &mockDispatcher{}
	svc := newTestService(store, &mockDirectory{}, disp, 24*time.Hour)

	store.On("ListFailedSince", mock.Anything, mock.Anything).Return([]domain.Notification{
		{NotificationID: "n1", UserID: "u1", Status: domain.StatusFailed},
		{NotificationID: "n2", UserID: "u2", Status: domain.StatusFailed},
		{NotificationID: "n3", UserID: "u3", Status: domain.StatusFailed},
	}, nil)
	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.NotificationID == "n2"
	})).Return("", errors.New("dynamo throttled"))
	disp.On("Dispatch", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(domain.StatusSent, nil)

	retried, err := svc.RetryFailed(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, retried)
	disp.AssertNumberOfCalls(t, "Dispatch", 3)
}
