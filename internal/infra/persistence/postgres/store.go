// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics, snapshotting every bucket to a JSONB state table
// after each successful transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"legacycore/internal/infra/persistence/memory"
	"legacycore/pkg/domain"
)

// Compile-time contract assertion for the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/legacycore?sslmode=disable"
)

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory store from any existing snapshot.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(defaultDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

var postgresBuckets = []string{"owners", "contacts", "vault_items", "triggers", "activations", "petitions", "escrows", "ceremonies", "audit"}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		if err := decodeBucket(&snapshot, bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func decodeBucket(snapshot *memory.Snapshot, bucket string, payload []byte) error {
	var err error
	switch bucket {
	case "owners":
		err = json.Unmarshal(payload, &snapshot.Owners)
	case "contacts":
		err = json.Unmarshal(payload, &snapshot.Contacts)
	case "vault_items":
		err = json.Unmarshal(payload, &snapshot.Items)
	case "triggers":
		err = json.Unmarshal(payload, &snapshot.Triggers)
	case "activations":
		err = json.Unmarshal(payload, &snapshot.Activations)
	case "petitions":
		err = json.Unmarshal(payload, &snapshot.Petitions)
	case "escrows":
		err = json.Unmarshal(payload, &snapshot.Escrows)
	case "ceremonies":
		err = json.Unmarshal(payload, &snapshot.Ceremonies)
	case "audit":
		err = json.Unmarshal(payload, &snapshot.Audit)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func encodeBucket(snapshot memory.Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case "owners":
		return json.Marshal(snapshot.Owners)
	case "contacts":
		return json.Marshal(snapshot.Contacts)
	case "vault_items":
		return json.Marshal(snapshot.Items)
	case "triggers":
		return json.Marshal(snapshot.Triggers)
	case "activations":
		return json.Marshal(snapshot.Activations)
	case "petitions":
		return json.Marshal(snapshot.Petitions)
	case "escrows":
		return json.Marshal(snapshot.Escrows)
	case "ceremonies":
		return json.Marshal(snapshot.Ceremonies)
	case "audit":
		return json.Marshal(snapshot.Audit)
	}
	return nil, fmt.Errorf("unknown bucket %s", bucket)
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range postgresBuckets {
		data, err := encodeBucket(snapshot, bucket)
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn within a transaction, then snapshots to
// Postgres if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }
