package sha256

import "testing"

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	first, err := h.Hash([]byte("https://news.example.com/articles/42"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	second, err := h.Hash([]byte("https://news.example.com/articles/42"))
	if err != nil {
		t.Fatalf("Hash() repeat error = %v", err)
	}
	if first != second {
		t.Fatalf("same link produced different ids: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
}

func TestHasherHashDistinguishesLinks(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("https://news.example.com/a"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := h.Hash([]byte("https://news.example.com/b"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a == b {
		t.Fatal("different links must produce different ids")
	}
}

func TestHasherKnownDigest(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash(nil)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected empty-input digest %s", got)
	}
}
