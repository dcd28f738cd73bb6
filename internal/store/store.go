package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pointcast/pkg/interfaces"
	"pointcast/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

// Config holds the store's tunables.
type Config struct {
	Path    string        // sqlite database path
	Timeout time.Duration // per-operation timeout
	TTL     time.Duration // sliding document expiration, refreshed on every write
}

// SQLiteStore implements interfaces.SessionStore on a single KV table.
// All writes funnel through one goroutine; sqlite performs poorly under
// concurrent writers even in WAL mode.
type SQLiteStore struct {
	db       *sql.DB
	ttl      time.Duration
	timeout  time.Duration
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

// writeOperation is one unit of work for the writer goroutine.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// New opens the database, applies the schema, and starts the writer and the
// expiry purge goroutines.
func New(cfg *Config) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		ttl:      cfg.TTL,
		timeout:  cfg.Timeout,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(2)
	go s.writeLoop()
	go s.purgeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// each failed write once before reporting the error.
func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.operation(s.db)
			if err != nil {
				time.Sleep(100 * time.Millisecond)
				err = op.operation(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			// Drain queued writes so callers are not left blocked.
			for {
				select {
				case op := <-s.writeCh:
					op.result <- interfaces.ErrStoreClosed
				default:
					return
				}
			}
		}
	}
}

// purgeLoop deletes expired rows on a fixed period. Readers already treat
// expired rows as absent; the purge just reclaims space.
func (s *SQLiteStore) purgeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.purgeExpired(); err != nil {
				log.Printf("Session purge failed: %v", err)
			} else if n > 0 {
				log.Printf("Purged %d expired sessions", n)
			}
		case <-s.shutdown:
			return
		}
	}
}

func (s *SQLiteStore) purgeExpired() (int64, error) {
	res, err := s.db.Exec("DELETE FROM sessions WHERE expires_at <= ?", time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// submitWrite queues an operation for the writer goroutine and waits for it.
func (s *SQLiteStore) submitWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	op := writeOperation{operation: operation, result: make(chan error, 1)}

	select {
	case s.writeCh <- op:
	case <-ctx.Done():
		return fmt.Errorf("write queue full: %w", ctx.Err())
	case <-s.shutdown:
		return interfaces.ErrStoreClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create persists a new session document. A duplicate id fails the insert.
func (s *SQLiteStore) Create(ctx context.Context, session *types.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	expiresAt := time.Now().Add(s.ttl).UnixMilli()
	return s.submitWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			"INSERT INTO sessions (id, document, expires_at) VALUES (?, ?, ?)",
			session.ID, string(doc), expiresAt,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrSessionExists, err)
		}
		return nil
	})
}

// Get returns the current document. Expired rows are reported as absent even
// before the purge loop removes them.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT document, expires_at FROM sessions WHERE id = ?", sessionID,
	).Scan(&doc, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if expiresAt <= time.Now().UnixMilli() {
		return nil, interfaces.ErrSessionNotFound
	}

	var session types.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	if session.Participants == nil {
		session.Participants = make(map[string]*types.Participant)
	}

	return &session, nil
}

// Replace unconditionally overwrites the document and refreshes its sliding
// expiration.
func (s *SQLiteStore) Replace(ctx context.Context, session *types.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	expiresAt := time.Now().Add(s.ttl).UnixMilli()
	return s.submitWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			"INSERT OR REPLACE INTO sessions (id, document, expires_at) VALUES (?, ?, ?)",
			session.ID, string(doc), expiresAt,
		)
		return err
	})
}

// Delete removes the document. Absent ids are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	return s.submitWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
		return err
	})
}

// HealthCheck verifies store connectivity.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the background goroutines and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
