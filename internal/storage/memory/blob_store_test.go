package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}

	stored, ok := store.Object("path/page.html")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored content, got %q (ok=%v)", stored, ok)
	}
	stored[0] = 'X'
	if again, _ := store.Object("path/page.html"); string(again) != "content" {
		t.Fatal("expected Object to return a copy")
	}
	if _, ok := store.Object("missing"); ok {
		t.Fatal("expected missing path to report absent")
	}
}
