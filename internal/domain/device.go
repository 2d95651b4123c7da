package domain

import "time"

// DeviceToken maps a user to one push-capable app installation. The opaque
// token string is the partition key, so a token can belong to at most one
// user and re-registration is a store-level no-op.
type DeviceToken struct {
	Token     string    `json:"token" dynamodbav:"token"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Platform  string    `json:"platform" dynamodbav:"platform"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

// RegisterDeviceTokenRequest is the inbound payload for token registration.
type RegisterDeviceTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}
