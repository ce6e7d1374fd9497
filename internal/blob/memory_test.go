package blob_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"spatialcore/internal/blob"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()

	if store.Driver() != blob.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	info, err := store.Put(ctx, "summary.json", strings.NewReader(`{"ari":0.82}`), blob.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size == 0 || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "summary.json", strings.NewReader("{}"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists for duplicate key, got %v", err)
	}

	_, rc, err := store.Get(ctx, "summary.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"ari":0.82}` {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := store.PresignURL(ctx, "summary.json", blob.SignedURLOptions{}); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	removed, err := store.Delete(ctx, "summary.json")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if _, _, err := store.Get(ctx, "summary.json"); err == nil {
		t.Fatalf("expected miss after delete")
	}
}

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	ctx := context.Background()

	t.Setenv("SPATIALCORE_BLOB_DRIVER", "memory")
	store, err := blob.Open(ctx)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if store.Driver() != blob.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	t.Setenv("SPATIALCORE_BLOB_DRIVER", "fs")
	t.Setenv("SPATIALCORE_BLOB_FS_ROOT", t.TempDir())
	store, err = blob.Open(ctx)
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != blob.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	t.Setenv("SPATIALCORE_BLOB_DRIVER", "carrier-pigeon")
	if _, err := blob.Open(ctx); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
