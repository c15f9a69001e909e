// Package store persists the agent's state in SQLite: credential fields,
// daily usage, settings, and cached analysis results. Every exported
// operation is a single statement or a single transaction, so readers never
// observe partial writes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
)

// Storage keys, shared with the extension's chrome.storage layout.
const (
	KeyAuthToken          = "qsci_auth_token"
	KeyUserEmail          = "qsci_user_email"
	KeyUserID             = "qsci_user_id"
	KeyClerkSessionID     = "qsci_clerk_session_id"
	KeySubscriptionStatus = "qsci_subscription_status"
	KeyDailyUsage         = "qsci_daily_usage"
	KeyLastUsageDate      = "qsci_last_usage_date"
	KeyLanguage           = "qsci_language"
	KeySettings           = "qsci_settings"
)

var credentialKeys = []string{
	KeyAuthToken,
	KeyUserEmail,
	KeyUserID,
	KeyClerkSessionID,
	KeySubscriptionStatus,
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("state db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, err
	}

	// A single connection serializes all writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_cache (
			key TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			stored_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_cache_stored_at ON analysis_cache(stored_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetString returns the value for key and whether it was present.
func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, time.Now().UnixMilli())
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

// GetCredential reads the stored credential. The token is the presence
// marker: without it the credential is reported wholly absent.
func (s *Store) GetCredential(ctx context.Context) (model.Credential, bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return model.Credential{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	values := make(map[string]string, len(credentialKeys))
	rows, err := tx.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE key IN (?, ?, ?, ?, ?)",
		KeyAuthToken, KeyUserEmail, KeyUserID, KeyClerkSessionID, KeySubscriptionStatus)
	if err != nil {
		return model.Credential{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return model.Credential{}, false, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return model.Credential{}, false, err
	}

	if values[KeyAuthToken] == "" {
		return model.Credential{}, false, nil
	}
	cred := model.Credential{
		Token:     values[KeyAuthToken],
		Email:     values[KeyUserEmail],
		UserID:    values[KeyUserID],
		SessionID: values[KeyClerkSessionID],
		Tier:      model.ParseTier(values[KeySubscriptionStatus]),
	}
	return cred, true, nil
}

// SetCredential writes all credential fields in one transaction.
func (s *Store) SetCredential(ctx context.Context, cred model.Credential) error {
	if cred.Token == "" {
		return errors.New("credential token is required")
	}
	return s.setMany(ctx, map[string]string{
		KeyAuthToken:          cred.Token,
		KeyUserEmail:          cred.Email,
		KeyUserID:             cred.UserID,
		KeyClerkSessionID:     cred.SessionID,
		KeySubscriptionStatus: string(model.ParseTier(string(cred.Tier))),
	})
}

// ClearCredential removes all credential fields in one transaction.
func (s *Store) ClearCredential(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range credentialKeys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetTier updates only the stored subscription status.
func (s *Store) SetTier(ctx context.Context, tier model.Tier) error {
	return s.SetString(ctx, KeySubscriptionStatus, string(tier))
}

// GetUsage reads the persisted usage record. Missing rows read as zero.
func (s *Store) GetUsage(ctx context.Context) (model.UsageRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return model.UsageRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var rec model.UsageRecord
	var raw string
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", KeyDailyUsage).Scan(&raw)
	if err == nil {
		if _, scanErr := fmt.Sscanf(raw, "%d", &rec.Count); scanErr != nil {
			rec.Count = 0
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.UsageRecord{}, err
	}

	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", KeyLastUsageDate).Scan(&rec.Date)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.UsageRecord{}, err
	}
	return rec, nil
}

// SetUsage writes count and date together in one transaction.
func (s *Store) SetUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.Count < 0 {
		return errors.New("usage count must be non-negative")
	}
	return s.setMany(ctx, map[string]string{
		KeyDailyUsage:    fmt.Sprintf("%d", rec.Count),
		KeyLastUsageDate: rec.Date,
	})
}

// IncrementUsage adds one analysis to the count for day, resetting first if
// the stored record belongs to a different day. Read, reset and write happen
// in one transaction so concurrent increments never lose updates.
func (s *Store) IncrementUsage(ctx context.Context, day string) (int, error) {
	return s.usageTx(ctx, day, true)
}

// UsageForDay returns the count for day, persisting a reset when the stored
// record belongs to a different day. Check and reset share a transaction.
func (s *Store) UsageForDay(ctx context.Context, day string) (int, error) {
	return s.usageTx(ctx, day, false)
}

func (s *Store) usageTx(ctx context.Context, day string, increment bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	var raw string
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", KeyDailyUsage).Scan(&raw)
	if err == nil {
		if _, scanErr := fmt.Sscanf(raw, "%d", &count); scanErr != nil {
			count = 0
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var storedDay string
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", KeyLastUsageDate).Scan(&storedDay)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	stale := storedDay != day
	if stale {
		count = 0
	}
	if increment {
		count++
	}
	if !increment && !stale {
		// Nothing to write; the read alone answers.
		return count, nil
	}

	now := time.Now().UnixMilli()
	for k, v := range map[string]string{
		KeyDailyUsage:    fmt.Sprintf("%d", count),
		KeyLastUsageDate: day,
	} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
			k, v, now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) setMany(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
			k, v, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CacheGet returns the raw cache row for key regardless of freshness.
func (s *Store) CacheGet(ctx context.Context, key string) (payload string, sourceURL string, storedAt int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT payload, source_url, stored_at FROM analysis_cache WHERE key = ?", key).
		Scan(&payload, &sourceURL, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", 0, false, nil
	}
	if err != nil {
		return "", "", 0, false, err
	}
	return payload, sourceURL, storedAt, true, nil
}

// CachePut upserts a cache row.
func (s *Store) CachePut(ctx context.Context, key, payload, sourceURL string, storedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO analysis_cache (key, payload, source_url, stored_at) VALUES (?, ?, ?, ?) ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, source_url = excluded.source_url, stored_at = excluded.stored_at",
		key, payload, sourceURL, storedAt)
	return err
}

// CacheEvictBefore removes rows stored strictly before cutoff and reports
// how many were removed.
func (s *Store) CacheEvictBefore(ctx context.Context, cutoff int64) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM analysis_cache WHERE stored_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
