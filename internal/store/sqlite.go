package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"regwatch/internal/logging"
	"regwatch/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore is the durable Store backed by a single SQLite database.
// Nested structures (server maps, filters, channel configs) are stored as
// JSON columns; timestamps as unix seconds.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path, applies
// the schema, and returns a ready store.
func NewSQLiteStore(path string, logger logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		return nil, errors.New("store: nil logger provided")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("sqlite store opened", logging.F("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	servers, err := json.Marshal(snap.Servers)
	if err != nil {
		return fmt.Errorf("encode servers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (id, timestamp, server_count, hash, servers)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Timestamp.Unix(), snap.ServerCount, snap.Hash, string(servers))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, server_count, hash, servers FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, server_count, hash, servers
		 FROM snapshots ORDER BY timestamp DESC, id DESC LIMIT 1`)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (*model.Snapshot, error) {
	var (
		snap    model.Snapshot
		ts      int64
		servers string
	)
	err := row.Scan(&snap.ID, &ts, &snap.ServerCount, &snap.Hash, &servers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.Timestamp = time.Unix(ts, 0).UTC()
	if err := json.Unmarshal([]byte(servers), &snap.Servers); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) PutSubscription(ctx context.Context, sub *model.Subscription) error {
	filterJSON, err := json.Marshal(sub.Filter)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO subscriptions
		 (id, name, description, filter, status, notification_count, last_reset, last_notified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.Description, string(filterJSON), string(sub.Status),
		sub.NotificationCount, sub.LastReset.Unix(), sub.LastNotified.Unix(), sub.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	for _, ch := range sub.Channels {
		ch.SubscriptionID = sub.ID
		cfgJSON, err := json.Marshal(ch.Config)
		if err != nil {
			return fmt.Errorf("encode channel config: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO channels
			 (id, subscription_id, type, config, enabled, success_count, failure_count, last_success, last_failure, last_error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ch.ID, ch.SubscriptionID, string(ch.Type), string(cfgJSON), boolToInt(ch.Enabled),
			ch.SuccessCount, ch.FailureCount, ch.LastSuccess.Unix(), ch.LastFailure.Unix(), ch.LastError)
		if err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, filter, status, notification_count, last_reset, last_notified, created_at
		 FROM subscriptions WHERE status = ? ORDER BY id`, string(model.SubscriptionActive))
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		var (
			sub                                model.Subscription
			filterJSON, status                 string
			lastReset, lastNotified, createdAt int64
		)
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Description, &filterJSON, &status,
			&sub.NotificationCount, &lastReset, &lastNotified, &createdAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if err := json.Unmarshal([]byte(filterJSON), &sub.Filter); err != nil {
			return nil, fmt.Errorf("decode filter: %w", err)
		}
		sub.Status = model.SubscriptionStatus(status)
		sub.LastReset = time.Unix(lastReset, 0).UTC()
		sub.LastNotified = time.Unix(lastNotified, 0).UTC()
		sub.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, sub := range out {
		channels, err := s.GetChannels(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		sub.Channels = channels
	}
	return out, nil
}

func (s *SQLiteStore) GetChannels(ctx context.Context, subscriptionID string) ([]*model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subscription_id, type, config, enabled, success_count, failure_count, last_success, last_failure, last_error
		 FROM channels WHERE subscription_id = ? ORDER BY id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var out []*model.Channel
	for rows.Next() {
		var (
			ch                       model.Channel
			chType, cfgJSON          string
			enabled                  int
			lastSuccess, lastFailure int64
		)
		if err := rows.Scan(&ch.ID, &ch.SubscriptionID, &chType, &cfgJSON, &enabled,
			&ch.SuccessCount, &ch.FailureCount, &lastSuccess, &lastFailure, &ch.LastError); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		if err := json.Unmarshal([]byte(cfgJSON), &ch.Config); err != nil {
			return nil, fmt.Errorf("decode channel config: %w", err)
		}
		ch.Type = model.ChannelType(chType)
		ch.Enabled = enabled != 0
		ch.LastSuccess = time.Unix(lastSuccess, 0).UTC()
		ch.LastFailure = time.Unix(lastFailure, 0).UTC()
		out = append(out, &ch)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordChannelSuccess(ctx context.Context, channelID string, at time.Time) error {
	return s.updateChannelStats(ctx,
		`UPDATE channels SET success_count = success_count + 1, last_success = ? WHERE id = ?`,
		at.Unix(), channelID)
}

func (s *SQLiteStore) RecordChannelFailure(ctx context.Context, channelID string, at time.Time, errText string) error {
	return s.updateChannelStats(ctx,
		`UPDATE channels SET failure_count = failure_count + 1, last_failure = ?, last_error = ? WHERE id = ?`,
		at.Unix(), errText, channelID)
}

func (s *SQLiteStore) updateChannelStats(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update channel stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PutChanges(ctx context.Context, changes []*model.Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO changes (id, server_name, detected_at, payload) VALUES (?, ?, ?, ?)`,
			c.ID, c.ServerName, c.DetectedAt.Unix(), string(payload))
		if err != nil {
			return fmt.Errorf("insert change: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ChangesSince(ctx context.Context, since time.Time, limit int) ([]*model.Change, error) {
	query := `SELECT payload FROM changes WHERE detected_at >= ? ORDER BY detected_at ASC`
	args := []any{since.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []*model.Change
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		var c model.Change
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("decode change: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO notifications
		 (id, subscription_id, channel_id, change_id, status, attempts, next_retry, sent_at, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.SubscriptionID, n.ChannelID, n.ChangeID, string(n.Status),
		n.Attempts, n.NextRetry.Unix(), n.SentAt.Unix(), n.Error, n.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateNotification(ctx context.Context, n *model.Notification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, attempts = ?, next_retry = ?, sent_at = ?, error = ? WHERE id = ?`,
		string(n.Status), n.Attempts, n.NextRetry.Unix(), n.SentAt.Unix(), n.Error, n.ID)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, subscriptionID string, limit int) ([]*model.Notification, error) {
	query := `SELECT id, subscription_id, channel_id, change_id, status, attempts, next_retry, sent_at, error, created_at
		 FROM notifications WHERE subscription_id = ? ORDER BY created_at DESC`
	args := []any{subscriptionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var (
			n                            model.Notification
			status                       string
			nextRetry, sentAt, createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.SubscriptionID, &n.ChannelID, &n.ChangeID, &status,
			&n.Attempts, &nextRetry, &sentAt, &n.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Status = model.NotificationStatus(status)
		n.NextRetry = time.Unix(nextRetry, 0).UTC()
		n.SentAt = time.Unix(sentAt, 0).UTC()
		n.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &n)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
