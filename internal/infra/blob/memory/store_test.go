package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"legacycore/internal/blob/core"
)

func TestStore_MissingHeadGet(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatalf("expected head error")
	}
	if _, _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatalf("expected get error")
	}
}

func TestStore_PutGetListDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false")
	}
	info, err := store.Put(ctx, "vault/doc.enc", bytes.NewReader([]byte("ciphertext")), core.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"owner": "o1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("ciphertext")) {
		t.Fatalf("unexpected size %d", info.Size)
	}
	if _, err := store.Put(ctx, "vault/doc.enc", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	got, rc, err := store.Get(ctx, "vault/doc.enc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "ciphertext" || got.Metadata["owner"] != "o1" {
		t.Fatalf("unexpected blob %q %v", data, got.Metadata)
	}
	if list, err := store.List(ctx, "vault/"); err != nil || len(list) != 1 {
		t.Fatalf("list prefix: %v %d", err, len(list))
	}
	if list, err := store.List(ctx, "other/"); err != nil || len(list) != 0 {
		t.Fatalf("list miss: %v %d", err, len(list))
	}
	if _, err := store.PresignURL(ctx, "vault/doc.enc", core.SignedURLOptions{}); err == nil {
		t.Fatalf("expected unsupported presign")
	}
	if ok, err := store.Delete(ctx, "vault/doc.enc"); err != nil || !ok {
		t.Fatalf("expected delete true")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_PutReadErrorAndDriver(t *testing.T) {
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
}
