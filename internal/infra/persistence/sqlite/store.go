// Package sqlite provides a SQLite-backed persistent store. It reuses the
// in-memory transactional engine and snapshots the full state to a single
// table as JSON payloads after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"legacycore/internal/infra/persistence/memory"
	"legacycore/pkg/domain"
)

// Compile-time contract assertion for the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "legacycore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

type bucketCodec struct {
	name      string
	marshal   func(memory.Snapshot) ([]byte, error)
	unmarshal func(*memory.Snapshot, []byte) error
}

var buckets = []bucketCodec{
	{"owners",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Owners) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Owners) }},
	{"contacts",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Contacts) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Contacts) }},
	{"vault_items",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Items) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Items) }},
	{"triggers",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Triggers) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Triggers) }},
	{"activations",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Activations) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Activations) }},
	{"petitions",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Petitions) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Petitions) }},
	{"escrows",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Escrows) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Escrows) }},
	{"ceremonies",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Ceremonies) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Ceremonies) }},
	{"audit",
		func(s memory.Snapshot) ([]byte, error) { return json.Marshal(s.Audit) },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Audit) }},
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := map[string][]byte{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}

	snapshot := memory.Snapshot{}
	for _, bucket := range buckets {
		payload, ok := payloads[bucket.name]
		if !ok {
			continue
		}
		if err := bucket.unmarshal(&snapshot, payload); err != nil {
			return fmt.Errorf("decode %s: %w", bucket.name, err)
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		data, err := bucket.marshal(snapshot)
		if err != nil {
			retErr = fmt.Errorf("encode %s: %w", bucket.name, err)
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket.name, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket.name, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn within a transaction, then snapshots state to
// SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
