package memory

import (
	"context"
	"testing"
	"time"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	event := audit.JobEvent{JobID: "job-1", Status: audit.JobStatusCompleted, CompletedAt: time.Unix(10, 0)}
	id1, err := pub.Publish(context.Background(), "audit-jobs", event)
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "other", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if got, ok := msgs[0].Payload.(audit.JobEvent); !ok || got.JobID != "job-1" {
		t.Fatalf("payload not recorded: %+v", msgs[0])
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pub.Publish(ctx, "audit-jobs", "x"); err == nil {
		t.Fatal("expected error on canceled context")
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("expected nothing recorded")
	}
}
