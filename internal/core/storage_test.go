package core

import (
	"path/filepath"
	"testing"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("LEGACYCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(DefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store == nil {
		t.Fatalf("nil store")
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	t.Setenv("LEGACYCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("LEGACYCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "vault.db"))
	store, err := OpenPersistentStore(DefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store == nil {
		t.Fatalf("nil store")
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("LEGACYCORE_STORAGE_DRIVER", "etcd")
	if _, err := OpenPersistentStore(DefaultRulesEngine()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
