package http

import (
	"log/slog"

	"github.com/learnhub-notify/internal/application/device"
	"github.com/learnhub-notify/internal/application/notification"
	jwtinfra "github.com/learnhub-notify/internal/infrastructure/jwt"
)

// Deps holds the application services and infrastructure the router needs.
// Services are wired in main so the retry scheduler can share the same
// notification service instance.
type Deps struct {
	NotificationSvc notification.Service
	DeviceSvc       device.Service
	JWTProvider     *jwtinfra.Provider
	Logger          *slog.Logger
}
