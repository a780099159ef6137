package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sessionkeys/internal/constants"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_expires_at ON records(expires_at);
`

// SQLiteStore keeps records in a single-file database so they survive
// restarts without an external service.
type SQLiteStore struct {
	db   *sql.DB
	now  func() time.Time
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	st := &SQLiteStore{db: db, now: time.Now, stop: make(chan struct{})}
	st.wg.Add(1)
	go st.cleanupLoop()
	return st, nil
}

func (st *SQLiteStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := st.now()
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(ttl).UnixMilli(), Valid: true}
	}
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO records (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, expiresAt, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite save %s: %w", key, err)
	}
	log.Printf("💾 Saving record to SQLite: %s", key)
	return nil
}

func (st *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt sql.NullInt64
	)
	err := st.db.QueryRowContext(ctx, `SELECT value, expires_at FROM records WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	if expiresAt.Valid && st.now().UnixMilli() >= expiresAt.Int64 {
		if err := st.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return value, true, nil
}

func (st *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := st.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

func (st *SQLiteStore) Close() error {
	st.once.Do(func() { close(st.stop) })
	st.wg.Wait()
	return st.db.Close()
}

func (st *SQLiteStore) cleanupLoop() {
	defer st.wg.Done()
	ticker := time.NewTicker(constants.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			res, err := st.db.Exec(`DELETE FROM records WHERE expires_at IS NOT NULL AND expires_at <= ?`, st.now().UnixMilli())
			if err != nil {
				log.Printf("⚠️  SQLite cleanup failed: %v", err)
				continue
			}
			if n, _ := res.RowsAffected(); n > 0 {
				log.Printf("🗑 Expired records cleaned up (SQLite): %d", n)
			}
		}
	}
}
