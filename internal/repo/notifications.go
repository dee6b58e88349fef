package repo

import (
	"context"
	"database/sql"
	"strings"

	"tideline/internal/domain"
)

// NextNotificationSeq returns the next per-booking sequence number inside the
// caller's transaction, so sequence order matches commit order.
func (r Repo) NextNotificationSeq(ctx context.Context, tx *sql.Tx, bookingID string) (int64, error) {
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0)+1 FROM notifications WHERE booking_id=?`, bookingID)
	var seq int64
	err := row.Scan(&seq)
	return seq, err
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,seq,booking_id,action,message,booking_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.Seq, n.BookingID, n.Action, n.Message, nullable(n.BookingJSON), n.CreatedAt); err != nil {
		return err
	}
	for _, rec := range n.Recipients {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO notification_recipients(notification_id,recipient,read_flag) VALUES (?,?,0)`, n.ID, rec.Recipient); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	var n domain.Notification
	var snapshot sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,seq,booking_id,action,message,booking_json,created_at FROM notifications WHERE id=?`, id).
		Scan(&n.ID, &n.Seq, &n.BookingID, &n.Action, &n.Message, &snapshot, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if snapshot.Valid {
		n.BookingJSON = snapshot.String
	}
	n.Recipients, err = r.notificationRecipients(ctx, n.ID)
	return n, err
}

func (r Repo) notificationRecipients(ctx context.Context, notificationID string) ([]domain.NotificationRecipient, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT recipient,read_flag,read_at FROM notification_recipients WHERE notification_id=? ORDER BY recipient`, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.NotificationRecipient
	for rows.Next() {
		var rec domain.NotificationRecipient
		var readFlag int
		var readAt sql.NullString
		if err := rows.Scan(&rec.Recipient, &readFlag, &readAt); err != nil {
			return nil, err
		}
		rec.Read = readFlag != 0
		if readAt.Valid {
			rec.ReadAt = &readAt.String
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type NotificationFilters struct {
	Recipient string
	BookingID string
	SinceID   string
	Unread    bool
	Limit     int
}

// ListNotifications returns notifications for a recipient in emission order
// (per-booking seq ascending within ascending created_at/id).
func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	clauses := []string{"1=1"}
	var args []any
	join := ""
	if f.Recipient != "" {
		join = `JOIN notification_recipients nr ON nr.notification_id=n.id`
		clauses = append(clauses, "nr.recipient=?")
		args = append(args, f.Recipient)
		if f.Unread {
			clauses = append(clauses, "nr.read_flag=0")
		}
	}
	if f.BookingID != "" {
		clauses = append(clauses, "n.booking_id=?")
		args = append(args, f.BookingID)
	}
	if f.SinceID != "" {
		clauses = append(clauses, "n.created_at > (SELECT created_at FROM notifications WHERE id=?)")
		args = append(args, f.SinceID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT n.id,n.seq,n.booking_id,n.action,n.message,n.booking_json,n.created_at FROM notifications n ` + join + ` ` + where + ` ORDER BY n.created_at ASC, n.booking_id ASC, n.seq ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var snapshot sql.NullString
		if err := rows.Scan(&n.ID, &n.Seq, &n.BookingID, &n.Action, &n.Message, &snapshot, &n.CreatedAt); err != nil {
			return nil, err
		}
		if snapshot.Valid {
			n.BookingJSON = snapshot.String
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, n := range res {
		recipients, err := r.notificationRecipients(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		res[i].Recipients = recipients
	}
	return res, nil
}

// MarkNotificationRead is idempotent: marking an already-read row again keeps
// the original read_at.
func (r Repo) MarkNotificationRead(ctx context.Context, notificationID, recipient, readAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notification_recipients SET read_flag=1, read_at=COALESCE(read_at,?) WHERE notification_id=? AND recipient=?`,
		readAt, notificationID, recipient)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, recipient, readAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notification_recipients SET read_flag=1, read_at=COALESCE(read_at,?) WHERE recipient=? AND read_flag=0`,
		readAt, recipient)
	return err
}

func (r Repo) UnreadCount(ctx context.Context, recipient string) (int, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notification_recipients WHERE recipient=? AND read_flag=0`, recipient)
	var n int
	err := row.Scan(&n)
	return n, err
}
