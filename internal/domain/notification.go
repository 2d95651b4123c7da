package domain

import "time"

// Notification statuses. A dispatch task must win the claim
// (PENDING/FAILED -> IN_PROGRESS) before calling any provider; it always
// finishes by writing SENT or FAILED.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusSent       = "SENT"
	StatusFailed     = "FAILED"
)

// Notification types. Closed set; requests carrying anything else are rejected.
const (
	TypeSystemAlert = "SYSTEM_ALERT"
	TypePromotional = "PROMOTIONAL"
	TypeOrderUpdate = "ORDER_UPDATE"
	TypeSecurity    = "SECURITY"
	TypeSocial      = "SOCIAL"
)

// ValidType reports whether t is one of the known notification types.
func ValidType(t string) bool {
	switch t {
	case TypeSystemAlert, TypePromotional, TypeOrderUpdate, TypeSecurity, TypeSocial:
		return true
	}
	return false
}

// Channel is a delivery mechanism kind.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// ParseChannels maps raw channel tokens to channel kinds, deduplicated.
// "mobile", "push", "web" and "browser" all select push delivery; "email"
// selects email. Unknown tokens are ignored. An empty result falls back to
// push, the platform default.
func ParseChannels(raw []string) []Channel {
	seen := map[Channel]bool{}
	var out []Channel
	for _, tok := range raw {
		var ch Channel
		switch tok {
		case "mobile", "push", "web", "browser":
			ch = ChannelPush
		case "email":
			ch = ChannelEmail
		default:
			continue
		}
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		out = []Channel{ChannelPush}
	}
	return out
}

// Notification is a persisted record of an intended message to a user.
// The channel list and delivery overrides are resolved once at request-build
// time and stored typed on the row; Metadata carries payload data only.
type Notification struct {
	NotificationID string            `json:"id" dynamodbav:"notification_id"`
	UserID         string            `json:"user_id" dynamodbav:"user_id"`
	Type           string            `json:"type" dynamodbav:"type"`
	Title          string            `json:"title" dynamodbav:"title"`
	Content        string            `json:"content" dynamodbav:"content"`
	ActionURL      string            `json:"action_url,omitempty" dynamodbav:"action_url,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	Channels       []Channel         `json:"channels" dynamodbav:"channels"`
	TokenOverride  string            `json:"-" dynamodbav:"token_override,omitempty"`
	EmailOverride  string            `json:"-" dynamodbav:"email_override,omitempty"`
	Status         string            `json:"status" dynamodbav:"status"`
	Read           bool              `json:"read" dynamodbav:"read"`
	ReadAt         *time.Time        `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
	SentAt         *time.Time        `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
	CreatedAt      time.Time         `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time         `json:"updated" dynamodbav:"updated_at"`
}

// SendNotificationRequest is the inbound payload for a single send.
type SendNotificationRequest struct {
	UserID        string            `json:"user_id" validate:"required"`
	Type          string            `json:"type" validate:"required"`
	Title         string            `json:"title" validate:"required"`
	Content       string            `json:"content" validate:"required"`
	ActionURL     string            `json:"action_url"`
	Metadata      map[string]string `json:"metadata"`
	Channels      []string          `json:"channels"`
	TokenOverride string            `json:"device_token_override"`
	EmailOverride string            `json:"email_override"`
}

// BulkSendRequest fans one template out to many recipients. The template is
// validated per recipient, after its user_id is filled in.
type BulkSendRequest struct {
	UserIDs  []string                `json:"user_ids" validate:"required,min=1"`
	Template SendNotificationRequest `json:"template" validate:"-"`
}

// MarkReadRequest carries the ids to flip to read.
type MarkReadRequest struct {
	NotificationIDs []string `json:"notification_ids" validate:"required,min=1"`
}

// DeliveryAttempt records the latest delivery outcome for one
// (notification, channel) pair. Retries overwrite the pair's row, so the
// aggregate status can always be derived instead of blindly assigned.
type DeliveryAttempt struct {
	NotificationID string    `json:"notification_id" dynamodbav:"notification_id"`
	Channel        Channel   `json:"channel" dynamodbav:"channel"`
	Succeeded      bool      `json:"succeeded" dynamodbav:"succeeded"`
	Target         string    `json:"target,omitempty" dynamodbav:"target,omitempty"`
	Error          string    `json:"error,omitempty" dynamodbav:"error,omitempty"`
	AttemptedAt    time.Time `json:"attempted_at" dynamodbav:"attempted_at"`
}
