// Package notify emits booking notifications inside the mutation's own
// transaction, so a notification exists exactly when its booking change
// committed. Per-booking seq is assigned under the same transaction, which
// makes it monotonic in commit order.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
	"tideline/internal/repo"
)

const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionCancelled = "cancelled"
)

type Dispatcher struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Emit records one notification for a booking transition. It must be called
// with the transaction that performs the booking mutation.
func (d Dispatcher) Emit(ctx context.Context, tx *sql.Tx, b domain.Booking, action, message string, recipients []string) (domain.Notification, error) {
	seq, err := d.Repo.NextNotificationSeq(ctx, tx, b.ID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("next notification seq: %w", err)
	}
	snapshot, err := json.Marshal(b)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("marshal booking snapshot: %w", err)
	}
	n := domain.Notification{
		ID:          uuid.NewString(),
		Seq:         seq,
		BookingID:   b.ID,
		Action:      action,
		Message:     message,
		BookingJSON: string(snapshot),
		CreatedAt:   d.now().UTC().Format(time.RFC3339),
	}
	for _, rec := range recipients {
		if rec == "" {
			continue
		}
		n.Recipients = append(n.Recipients, domain.NotificationRecipient{Recipient: rec})
	}
	if err := d.Repo.InsertNotification(ctx, tx, n); err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (d Dispatcher) List(ctx context.Context, f repo.NotificationFilters) ([]domain.Notification, error) {
	return d.Repo.ListNotifications(ctx, f)
}

func (d Dispatcher) MarkRead(ctx context.Context, notificationID, recipient string) error {
	return d.Repo.MarkNotificationRead(ctx, notificationID, recipient, d.now().UTC().Format(time.RFC3339))
}

func (d Dispatcher) MarkAllRead(ctx context.Context, recipient string) error {
	return d.Repo.MarkAllNotificationsRead(ctx, recipient, d.now().UTC().Format(time.RFC3339))
}

func (d Dispatcher) UnreadCount(ctx context.Context, recipient string) (int, error) {
	return d.Repo.UnreadCount(ctx, recipient)
}
