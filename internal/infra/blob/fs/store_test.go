package fs

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"legacycore/internal/blob/core"
)

func TestStore_RoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("expected fs driver")
	}
	info, err := store.Put(ctx, "owners/o1/will.enc", bytes.NewReader([]byte("sealed")), core.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"kind": "document"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size != int64(len("sealed")) {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "owners/o1/will.enc", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	head, err := store.Head(ctx, "owners/o1/will.enc")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "application/octet-stream" || head.Metadata["kind"] != "document" {
		t.Fatalf("sidecar metadata lost: %+v", head)
	}
	got, rc, err := store.Get(ctx, "owners/o1/will.enc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "sealed" || got.ETag != info.ETag {
		t.Fatalf("unexpected content %q etag %q", data, got.ETag)
	}
	list, err := store.List(ctx, "owners/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %d", err, len(list))
	}
	if ok, err := store.Delete(ctx, "owners/o1/will.enc"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "owners/o1/will.enc"); err != nil || ok {
		t.Fatalf("second delete should report false")
	}
}

func TestStore_KeySanitization(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape", "/abs/path", "a/../../b"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected sanitize error for %q", key)
		}
	}
}

func TestStore_MissingAndPresign(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); err != core.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); err != core.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := store.PresignURL(ctx, "k", core.SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "file://") {
		t.Fatalf("presign: %v %q", err, url)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatalf("expected unsupported presign method")
	}
}
