package memory

import (
	"context"
	"testing"
)

func TestPublisherRecordsByTopic(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "summarize", map[string]string{"article_id": "abc"})
	if err != nil || id1 != "mem-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "audit", "raw")
	if err != nil || id2 != "mem-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	if got := pub.Len(); got != 2 {
		t.Fatalf("expected 2 recorded messages, got %d", got)
	}
	sums := pub.Messages("summarize")
	if len(sums) != 1 || sums[0].Topic != "summarize" {
		t.Fatalf("summarize topic not recorded: %+v", sums)
	}
	if len(pub.Messages("missing")) != 0 {
		t.Fatal("expected no messages for unknown topic")
	}

	sums[0].Topic = "mutated"
	if pub.Messages("summarize")[0].Topic == "mutated" {
		t.Fatal("expected Messages to return copies")
	}
}
