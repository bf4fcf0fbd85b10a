package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tgreddit/internal/model"
	"tgreddit/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const memoryDSN = ":memory:"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db   *sql.DB
	opts Options
}

// NewSQLite opens the SQLite database at path and runs pending migrations.
// The special path ":memory:" opens a private in-memory database.
func NewSQLite(path string, opts Options) (*SQLite, error) {
	db, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == memoryDSN {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, opts: opts}, nil
}

// dataSourceName enables WAL with a busy timeout so the poller and command
// handlers can write concurrently, and takes the write lock at BEGIN.
func dataSourceName(path string) string {
	if path == memoryDSN {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddSubscription stores sub and populates its CreatedAt. An existing
// subscription for the same chat and subreddit yields ErrConflict unless
// overwriting is enabled, in which case its overrides are replaced.
func (s *SQLite) AddSubscription(ctx context.Context, sub *model.Subscription) error {
	now := time.Now().UTC().Format(timeLayout)
	args := []any{sub.ChatID, sub.Subreddit, now, nullInt(sub.Limit), nullTime(sub.Time), nullFilter(sub.Filter)}

	if !s.opts.OverwriteSubscriptions {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO subscription (chat_id, subreddit, created_at, post_limit, time, filter)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (subreddit, chat_id) DO NOTHING`, args...,
		)
		if err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return ErrConflict
		}
		sub.CreatedAt, _ = time.Parse(timeLayout, now)
		return nil
	}

	var created string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subscription (chat_id, subreddit, created_at, post_limit, time, filter)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subreddit, chat_id) DO UPDATE SET
		     post_limit = excluded.post_limit,
		     time = excluded.time,
		     filter = excluded.filter
		 RETURNING created_at`, args...,
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return nil
}

// RemoveSubscription deletes the chat's subscription to subreddit, matching
// the name case-insensitively. It reports whether anything was deleted.
func (s *SQLite) RemoveSubscription(ctx context.Context, chatID int64, subreddit string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscription WHERE chat_id = ? AND subreddit = ? COLLATE NOCASE`,
		chatID, subreddit,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListSubscriptions returns the chat's subscriptions in creation order.
func (s *SQLite) ListSubscriptions(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, subreddit, created_at, post_limit, time, filter
		 FROM subscription WHERE chat_id = ? ORDER BY rowid`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListAllSubscriptions returns every subscription in creation order.
func (s *SQLite) ListAllSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, subreddit, created_at, post_limit, time, filter
		 FROM subscription ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("query all subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// IsPostSeen checks whether the post was already handled for the chat.
func (s *SQLite) IsPostSeen(ctx context.Context, chatID int64, postID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post WHERE chat_id = ? AND post_id = ?`,
		chatID, postID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// HasAnySeenPost reports whether any post of subreddit was handled for the chat.
func (s *SQLite) HasAnySeenPost(ctx context.Context, chatID int64, subreddit string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM post WHERE chat_id = ? AND subreddit = ? COLLATE NOCASE)`,
		chatID, subreddit,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check any seen: %w", err)
	}
	return exists == 1, nil
}

// MarkPostSeen records the post as handled for the chat. Marking an already
// seen post is a no-op.
func (s *SQLite) MarkPostSeen(ctx context.Context, chatID int64, post *model.Post) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO post (post_id, chat_id, subreddit, seen_at) VALUES (?, ?, ?, ?)`,
		post.ID, chatID, post.Subreddit, now,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *model.TimePeriod) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func nullFilter(v *model.PostType) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (model.Subscription, error) {
	var sub model.Subscription
	var created string
	var limit sql.NullInt64
	var period, filter sql.NullString
	if err := row.Scan(&sub.ChatID, &sub.Subreddit, &created, &limit, &period, &filter); err != nil {
		return sub, fmt.Errorf("scan subscription: %w", err)
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	if limit.Valid {
		v := int(limit.Int64)
		sub.Limit = &v
	}
	if period.Valid {
		v := model.TimePeriod(period.String)
		sub.Time = &v
	}
	if filter.Valid {
		v := model.PostType(filter.String)
		sub.Filter = &v
	}
	return sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
