package device

import (
	"context"
	"fmt"
	"time"

	"github.com/learnhub-notify/internal/domain"
	"github.com/learnhub-notify/internal/pkg/validate"
)

type Service interface {
	// Register records a push token for the user. Registering a token that
	// already exists — for the same or another user — is a silent no-op.
	Register(ctx context.Context, userID string, req domain.RegisterDeviceTokenRequest) error
	List(ctx context.Context, userID string) ([]domain.DeviceToken, error)
}

type tokenStore interface {
	Register(ctx context.Context, d *domain.DeviceToken) error
	ListByUser(ctx context.Context, userID string) ([]domain.DeviceToken, error)
}

type service struct {
	repo tokenStore
}

func NewService(repo tokenStore) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, userID string, req domain.RegisterDeviceTokenRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	now := time.Now().UTC()
	return s.repo.Register(ctx, &domain.DeviceToken{
		Token:     req.Token,
		UserID:    userID,
		Platform:  req.Platform,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *service) List(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	return s.repo.ListByUser(ctx, userID)
}
