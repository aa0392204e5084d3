package core

import (
	"fmt"
	"os"

	"legacycore/internal/infra/persistence/memory"
	"legacycore/internal/infra/persistence/postgres"
	"legacycore/internal/infra/persistence/sqlite"
	"legacycore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	LEGACYCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LEGACYCORE_SQLITE_PATH: path to sqlite file (default ./legacycore.db)
//	LEGACYCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *domain.RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("LEGACYCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("LEGACYCORE_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("LEGACYCORE_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
