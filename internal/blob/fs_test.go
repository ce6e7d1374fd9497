package blob_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"spatialcore/internal/blob"
)

func newFSStore(t *testing.T) blob.Store {
	t.Helper()
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	return store
}

func TestFilesystemPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)

	payload := "barcode,cluster\nAAACATAC-1,3\n"
	info, err := store.Put(ctx, "runs/run-1/clusters.csv", strings.NewReader(payload), blob.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"run": "run-1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Fatalf("unexpected size %d", info.Size)
	}
	if info.ETag == "" {
		t.Fatalf("expected etag")
	}

	got, rc, err := store.Get(ctx, "runs/run-1/clusters.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != payload {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ContentType != "text/csv" || got.Metadata["run"] != "run-1" {
		t.Fatalf("unexpected info %+v", got)
	}
}

func TestFilesystemPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)

	if _, err := store.Put(ctx, "a.json", strings.NewReader("{}"), blob.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "a.json", strings.NewReader("{}"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists overwriting existing key, got %v", err)
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)

	for _, key := range []string{"", "/abs", "../escape", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), blob.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestFilesystemListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)

	for _, key := range []string{"runs/r1/summary.json", "runs/r1/map.png", "runs/r2/summary.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), blob.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "runs/r1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "runs/r1/map.png" || infos[1].Key != "runs/r1/summary.json" {
		t.Fatalf("unexpected listing %+v", infos)
	}

	removed, err := store.Delete(ctx, "runs/r1/map.png")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.Delete(ctx, "runs/r1/map.png")
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
}

func TestFilesystemPresignOnlyGet(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)

	if _, err := store.PresignURL(ctx, "k", blob.SignedURLOptions{Method: "PUT"}); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	url, err := store.PresignURL(ctx, "k", blob.SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign get: url=%q err=%v", url, err)
	}
}
