package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kind identifies what a notification is about
type Kind string

const (
	KindScrimCreated         Kind = "SCRIM_CREATED"
	KindApplicationSubmitted Kind = "APPLICATION_SUBMITTED"
	KindApplicationAccepted  Kind = "APPLICATION_ACCEPTED"
	KindApplicationRejected  Kind = "APPLICATION_REJECTED"
	KindLobbyFormed          Kind = "LOBBY_FORMED"
	KindScrimConfirmed       Kind = "SCRIM_CONFIRMED"
	KindScrimStarted         Kind = "SCRIM_STARTED"
	KindScrimCancelled       Kind = "SCRIM_CANCELLED"
	KindScrimFinished        Kind = "SCRIM_FINISHED"
	KindReminder             Kind = "REMINDER"
)

// Notification is one outbound message to one user
type Notification struct {
	Kind        Kind      `json:"kind"`
	RecipientID string    `json:"recipient_id"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	Subject     string    `json:"subject"`
	ScrimID     string    `json:"scrim_id"`
	Game        string    `json:"game,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier delivers notifications through one channel
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log instead of sending them
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the notification
func (n *LogNotifier) Send(ctx context.Context, msg Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"kind", msg.Kind,
		"recipient_id", msg.RecipientID,
		"email", msg.Email,
		"subject", msg.Subject,
		"scrim_id", msg.ScrimID,
	)
	return nil
}
