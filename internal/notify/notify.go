// Package notify delivers fire-and-forget user notifications. Callers log
// failures and never let them abort the operation that triggered them.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Notification kinds.
const (
	KindMemberJoined  = "group.member_joined"
	KindMemberLeft    = "group.member_left"
	KindAdminPromoted = "group.admin_promoted"
	KindGroupLocked   = "group.locked"
	KindPoolMatched   = "pool.matched"
)

// Notifier sends one notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]any) error
}

// Event is the wire form of a notification.
type Event struct {
	UserID  string         `json:"userId"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	n.logger.InfoContext(ctx, "notification", "user_id", userID, "kind", kind, "payload", payload)
	return nil
}

// Multi fans a notification out to every notifier. All notifiers are tried;
// their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, map[string]any) error { return nil }

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
	_ Notifier = Nop{}
)
