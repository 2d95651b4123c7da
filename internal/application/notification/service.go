package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/learnhub-notify/internal/domain"
	"github.com/learnhub-notify/internal/pkg/id"
	"github.com/learnhub-notify/internal/pkg/validate"
)

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, page, size int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string, readAt time.Time) (bool, error)
	ListFailedSince(ctx context.Context, cutoff time.Time) ([]domain.Notification, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification) (string, error)
}

type Service interface {
	// Send validates the request, persists exactly one PENDING notification
	// and schedules dispatch asynchronously. The returned row reflects the
	// pre-dispatch state; delivery outcomes land in the store later.
	Send(ctx context.Context, req domain.SendNotificationRequest) (*domain.Notification, error)
	// SendBulk runs the full send pipeline per recipient, each as an isolated
	// unit of work, and returns once every pipeline has completed.
	SendBulk(ctx context.Context, req domain.BulkSendRequest) ([]domain.Notification, error)
	ListForUser(ctx context.Context, userID string, page, size int) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, notificationIDs []string) (int, error)
	// RetryFailed re-dispatches FAILED notifications still inside the retry
	// window and reports how many candidates were processed.
	RetryFailed(ctx context.Context) (int, error)
	// Wait blocks until all in-flight dispatch tasks have finished.
	Wait()
}

type ServiceDeps struct {
	NotificationRepo notificationStore
	UserRepo         directory
	Dispatcher       dispatcher
	RetryWindow      time.Duration
	Logger           *slog.Logger
}

type service struct {
	notifs      notificationStore
	users       directory
	dispatcher  dispatcher
	retryWindow time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewService(deps ServiceDeps) Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RetryWindow <= 0 {
		deps.RetryWindow = 24 * time.Hour
	}
	return &service{
		notifs:      deps.NotificationRepo,
		users:       deps.UserRepo,
		dispatcher:  deps.Dispatcher,
		retryWindow: deps.RetryWindow,
		logger:      deps.Logger,
	}
}

func (s *service) Send(ctx context.Context, req domain.SendNotificationRequest) (*domain.Notification, error) {
	n, err := s.buildAndPersist(ctx, req)
	if err != nil {
		return nil, err
	}

	// Dispatch outlives the request; detach from its cancellation.
	dispatchCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.dispatcher.Dispatch(dispatchCtx, n); err != nil {
			s.logger.Error("dispatch failed", "notification_id", n.NotificationID, "err", err)
		}
	}()
	return n, nil
}

func (s *service) SendBulk(ctx context.Context, req domain.BulkSendRequest) ([]domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	var mu sync.Mutex
	var results []domain.Notification
	var wg sync.WaitGroup
	for _, userID := range req.UserIDs {
		perRecipient := req.Template
		perRecipient.UserID = userID

		wg.Add(1)
		go func(req domain.SendNotificationRequest) {
			defer wg.Done()
			n, err := s.buildAndPersist(ctx, req)
			if err != nil {
				// One recipient's failure never aborts the batch.
				s.logger.Warn("bulk recipient skipped", "user_id", req.UserID, "err", err)
				return
			}
			if status, err := s.dispatcher.Dispatch(ctx, n); err != nil {
				s.logger.Error("bulk dispatch failed", "notification_id", n.NotificationID, "err", err)
			} else if status != "" {
				n.Status = status
			}
			mu.Lock()
			results = append(results, *n)
			mu.Unlock()
		}(perRecipient)
	}
	wg.Wait()
	return results, nil
}

// buildAndPersist is the request builder/validator: request-shape errors are
// the only ones surfaced synchronously, and exactly one row is created per
// accepted request. The channel list and overrides are resolved here, once.
func (s *service) buildAndPersist(ctx context.Context, req domain.SendNotificationRequest) (*domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if !domain.ValidType(req.Type) {
		return nil, fmt.Errorf("unknown notification type %q: %w", req.Type, domain.ErrBadRequest)
	}
	if _, err := s.users.Get(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		UserID:         req.UserID,
		Type:           req.Type,
		Title:          req.Title,
		Content:        req.Content,
		ActionURL:      req.ActionURL,
		Metadata:       req.Metadata,
		Channels:       domain.ParseChannels(req.Channels),
		TokenOverride:  req.TokenOverride,
		EmailOverride:  req.EmailOverride,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.notifs.Put(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *service) ListForUser(ctx context.Context, userID string, page, size int) ([]domain.Notification, error) {
	if size < 1 {
		size = 20
	}
	return s.notifs.ListByUser(ctx, userID, page, size)
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifs.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, userID string, notificationIDs []string) (int, error) {
	now := time.Now().UTC()
	updated := 0
	for _, nid := range notificationIDs {
		ok, err := s.notifs.MarkRead(ctx, nid, userID, now)
		if err != nil {
			return updated, err
		}
		if ok {
			updated++
		}
	}
	return updated, nil
}

func (s *service) RetryFailed(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.retryWindow)
	candidates, err := s.notifs.ListFailedSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	retried := 0
	for i := range candidates {
		n := candidates[i]
		if _, err := s.dispatcher.Dispatch(ctx, &n); err != nil {
			// Keep working through the batch.
			s.logger.Error("retry dispatch failed", "notification_id", n.NotificationID, "err", err)
			continue
		}
		retried++
	}
	return retried, nil
}

func (s *service) Wait() {
	s.wg.Wait()
}
