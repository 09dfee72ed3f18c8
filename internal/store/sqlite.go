package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/nodenet/internal/nodenet"
)

// DBFile is the database file name inside the data directory.
const DBFile = "nodenets.db"

// SQLiteStore implements Repository with one row per nodenet holding its
// JSON export.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates dataDir/nodenets.db.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

func contentHash(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}

// Save inserts or replaces the nodenet. Saving an unchanged payload leaves
// the row, including updated_at, untouched.
func (s *SQLiteStore) Save(ctx context.Context, data nodenet.Data) error {
	if data.UID == "" {
		return fmt.Errorf("nodenet uid is required")
	}
	payload, err := data.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode nodenet %s: %w", data.UID, err)
	}
	hash := contentHash(payload)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodenets (uid, name, step, data_version, node_count, link_count, payload, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			step = excluded.step,
			data_version = excluded.data_version,
			node_count = excluded.node_count,
			link_count = excluded.link_count,
			payload = excluded.payload,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
		WHERE nodenets.content_hash != excluded.content_hash`,
		data.UID, data.Name, data.Step, data.Version, len(data.Nodes), len(data.Links),
		string(payload), hash, now, now)
	if err != nil {
		return fmt.Errorf("failed to save nodenet %s: %w", data.UID, err)
	}
	return nil
}

// Load returns the stored nodenet.
func (s *SQLiteStore) Load(ctx context.Context, uid string) (nodenet.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM nodenets WHERE uid = ?`, uid).Scan(&payload)
	if err == sql.ErrNoRows {
		return nodenet.Data{}, fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	if err != nil {
		return nodenet.Data{}, fmt.Errorf("failed to load nodenet %s: %w", uid, err)
	}
	return nodenet.ParseData([]byte(payload))
}

// List returns summaries ordered by name, then uid.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, name, step, data_version, node_count, link_count, updated_at
		FROM nodenets ORDER BY name, uid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodenets: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated string
		if err := rows.Scan(&sum.UID, &sum.Name, &sum.Step, &sum.Version, &sum.NodeCount, &sum.LinkCount, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan nodenet row: %w", err)
		}
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a stored nodenet.
func (s *SQLiteStore) Delete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM nodenets WHERE uid = ?`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete nodenet %s: %w", uid, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
