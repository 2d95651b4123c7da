package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/learnhub-notify/internal/domain"
)

type claimStore interface {
	Claim(ctx context.Context, notificationID string, sentAt time.Time) (bool, error)
	SetStatus(ctx context.Context, notificationID, status string) error
}

type tokenStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.DeviceToken, error)
}

type attemptStore interface {
	Put(ctx context.Context, a *domain.DeliveryAttempt) error
}

type directory interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type pushSender interface {
	SendPush(ctx context.Context, token, platform, title, body string, data map[string]string) error
}

type emailSender interface {
	SendEmail(to, subject, body string) error
}

// Dispatcher fans one notification out across its resolved channels and
// persists the outcome. Provider failures are absorbed here; the original
// caller only ever sees them through the stored status.
type Dispatcher struct {
	notifs   claimStore
	users    directory
	tokens   tokenStore
	attempts attemptStore
	push     pushSender
	mailer   emailSender
	logger   *slog.Logger
}

func NewDispatcher(notifs claimStore, users directory, tokens tokenStore, attempts attemptStore, push pushSender, mailer emailSender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifs:   notifs,
		users:    users,
		tokens:   tokens,
		attempts: attempts,
		push:     push,
		mailer:   mailer,
		logger:   logger,
	}
}

// Dispatch claims the notification, attempts every channel concurrently and
// writes the derived aggregate status: SENT if at least one channel
// succeeded, FAILED if all failed. Returns the final status. A lost claim
// means another dispatch task owns the row; no providers are called and the
// empty status is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) (string, error) {
	claimed, err := d.notifs.Claim(ctx, n.NotificationID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("claim notification %s: %w", n.NotificationID, err)
	}
	if !claimed {
		d.logger.Info("dispatch claim lost, skipping", "notification_id", n.NotificationID)
		return "", nil
	}

	succeeded := make([]bool, len(n.Channels))
	var wg sync.WaitGroup
	for i, ch := range n.Channels {
		wg.Add(1)
		go func(i int, ch domain.Channel) {
			defer wg.Done()
			succeeded[i] = d.attemptChannel(ctx, n, ch)
		}(i, ch)
	}
	wg.Wait()

	status := domain.StatusFailed
	for _, ok := range succeeded {
		if ok {
			status = domain.StatusSent
			break
		}
	}
	if err := d.notifs.SetStatus(ctx, n.NotificationID, status); err != nil {
		return "", fmt.Errorf("persist status for %s: %w", n.NotificationID, err)
	}
	return status, nil
}

func (d *Dispatcher) attemptChannel(ctx context.Context, n *domain.Notification, ch domain.Channel) bool {
	var ok bool
	var target string
	var attemptErr error

	switch ch {
	case domain.ChannelPush:
		ok, target, attemptErr = d.attemptPush(ctx, n)
	case domain.ChannelEmail:
		ok, target, attemptErr = d.attemptEmail(ctx, n)
	default:
		return false
	}

	attempt := &domain.DeliveryAttempt{
		NotificationID: n.NotificationID,
		Channel:        ch,
		Succeeded:      ok,
		Target:         target,
		AttemptedAt:    time.Now().UTC(),
	}
	if attemptErr != nil {
		attempt.Error = attemptErr.Error()
		d.logger.Warn("channel attempt failed",
			"notification_id", n.NotificationID, "channel", ch, "err", attemptErr)
	}
	if err := d.attempts.Put(ctx, attempt); err != nil {
		d.logger.Error("could not record delivery attempt",
			"notification_id", n.NotificationID, "channel", ch, "err", err)
	}
	return ok
}

// attemptPush fans out to every registered device token, or to the explicit
// override token when one was set at request build. A failure on one token
// does not stop the others; the channel succeeds when at least one device
// accepted the message. Zero available tokens is a channel failure.
func (d *Dispatcher) attemptPush(ctx context.Context, n *domain.Notification) (bool, string, error) {
	if d.push == nil {
		return false, "", fmt.Errorf("push delivery not configured: %w", domain.ErrProvider)
	}
	var tokens []domain.DeviceToken
	if n.TokenOverride != "" {
		tokens = []domain.DeviceToken{{Token: n.TokenOverride, UserID: n.UserID}}
	} else {
		var err error
		tokens, err = d.tokens.ListByUser(ctx, n.UserID)
		if err != nil {
			return false, "", fmt.Errorf("list device tokens: %w", err)
		}
	}
	if len(tokens) == 0 {
		return false, "0 devices", fmt.Errorf("no device tokens registered for user %s: %w", n.UserID, domain.ErrProvider)
	}

	data := map[string]string{
		"notification_id": n.NotificationID,
	}
	if n.ActionURL != "" {
		data["action_url"] = n.ActionURL
	}
	for k, v := range n.Metadata {
		data[k] = v
	}

	delivered := 0
	var lastErr error
	for _, t := range tokens {
		if err := d.push.SendPush(ctx, t.Token, t.Platform, n.Title, n.Content, data); err != nil {
			lastErr = fmt.Errorf("push to device: %v: %w", err, domain.ErrProvider)
			d.logger.Warn("push delivery failed",
				"notification_id", n.NotificationID, "platform", t.Platform, "err", err)
			continue
		}
		delivered++
	}
	target := fmt.Sprintf("%d/%d devices", delivered, len(tokens))
	if delivered == 0 {
		return false, target, lastErr
	}
	return true, target, nil
}

// attemptEmail sends a single message to the override address or, failing
// that, the recipient's directory email.
func (d *Dispatcher) attemptEmail(ctx context.Context, n *domain.Notification) (bool, string, error) {
	addr := n.EmailOverride
	if addr == "" {
		u, err := d.users.Get(ctx, n.UserID)
		if err != nil {
			return false, "", fmt.Errorf("resolve recipient email: %w", err)
		}
		addr = u.Email
	}

	body := n.Content
	if n.ActionURL != "" {
		body += "\n\nview here: " + n.ActionURL
	}
	if err := d.mailer.SendEmail(addr, n.Title, body); err != nil {
		return false, addr, fmt.Errorf("email to %s: %v: %w", addr, err, domain.ErrProvider)
	}
	return true, addr, nil
}
