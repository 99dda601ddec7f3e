package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/pkg/testdb"
)

func TestClaimDueReturnsOnlyDueJobsOldestFirst(t *testing.T) {
	db := testdb.New(t)
	q := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	late, err := q.Enqueue(ctx, models.JobWebhookDelivery, WebhookDeliveryPayload{WebhookID: "w1"}, now.Add(-time.Minute), 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	early, err := q.Enqueue(ctx, models.JobWebhookDelivery, WebhookDeliveryPayload{WebhookID: "w2"}, now.Add(-time.Hour), 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, models.JobWebhookDelivery, WebhookDeliveryPayload{WebhookID: "w3"}, now.Add(time.Hour), 5); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(claimed))
	}
	if claimed[0].ID != early.ID || claimed[1].ID != late.ID {
		t.Fatalf("expected oldest-due-first order, got %s then %s", claimed[0].ID, claimed[1].ID)
	}
	if claimed[0].Attempts != 1 {
		t.Fatalf("claim must bump attempts to 1, got %d", claimed[0].Attempts)
	}
}

func TestClaimIsSingleWinner(t *testing.T) {
	db := testdb.New(t)
	q := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := q.Enqueue(ctx, models.JobWebhookDelivery, WebhookDeliveryPayload{WebhookID: "w1"}, now.Add(-time.Minute), 5); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// A second poll in the same instant must not hand out the same attempt:
	// the optimistic guard sees the bumped attempts value.
	second, err := q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1+1 claims, got %d and %d", len(first), len(second))
	}
	if second[0].Attempts != 2 {
		t.Fatalf("expected second claim to be attempt 2, got %d", second[0].Attempts)
	}
}

func TestExhaustedJobsAreNeverClaimedAgain(t *testing.T) {
	db := testdb.New(t)
	q := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := q.Enqueue(ctx, models.JobWebhookDelivery, WebhookDeliveryPayload{WebhookID: "w1"}, now.Add(-time.Minute), 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := q.ClaimDue(ctx, now, 10)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if len(claimed) != 1 || claimed[0].Attempts != attempt {
			t.Fatalf("attempt %d: unexpected claims %+v", attempt, claimed)
		}
		if err := q.MarkFailed(ctx, job.ID, errors.New("target returned 500"), now.Add(-time.Second)); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	claimed, err := q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("exhausted job was claimed again: %+v", claimed)
	}

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Attempts != 3 || got.CompletedAt != nil {
		t.Fatalf("expected attempts=3 completed_at=nil, got attempts=%d completed_at=%v", got.Attempts, got.CompletedAt)
	}
	if got.LastError == "" {
		t.Fatal("expected last_error to be recorded")
	}
}

func TestMarkSucceededTerminatesJob(t *testing.T) {
	db := testdb.New(t)
	q := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := q.Enqueue(ctx, models.JobPublishScheduledPost, PublishScheduledPostPayload{PostID: "p1"}, now.Add(-time.Minute), 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.ClaimDue(ctx, now, 10); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.MarkSucceeded(ctx, job.ID); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	claimed, err := q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("completed job was claimed: %+v", claimed)
	}
}

func TestMarkFailedReschedulesWhileAttemptsRemain(t *testing.T) {
	db := testdb.New(t)
	q := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := q.Enqueue(ctx, models.JobWebhookDelivery, WebhookDeliveryPayload{WebhookID: "w1"}, now.Add(-time.Minute), 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.ClaimDue(ctx, now, 10); err != nil {
		t.Fatalf("claim: %v", err)
	}

	next := now.Add(5 * time.Minute)
	if err := q.MarkFailed(ctx, job.ID, errors.New("timeout"), next); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// Not due yet.
	claimed, err := q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("rescheduled job claimed early: %+v", claimed)
	}

	// Due after the backoff window.
	claimed, err = q.ClaimDue(ctx, next.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Attempts != 2 {
		t.Fatalf("expected attempt 2 after backoff, got %+v", claimed)
	}
}

func TestDecodePayloadTaggedUnion(t *testing.T) {
	db := testdb.New(t)
	q := New(db)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, models.JobWebhookDelivery, WebhookDeliveryPayload{
		WebhookID: "w1", SiteID: "s1", PostID: "p1", Event: "post_published", Slug: "hello", ContentHash: "v1:abc",
	}, time.Now(), 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	decoded, err := DecodePayload(job)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, ok := decoded.(*WebhookDeliveryPayload)
	if !ok {
		t.Fatalf("expected *WebhookDeliveryPayload, got %T", decoded)
	}
	if p.Event != "post_published" || p.ContentHash != "v1:abc" {
		t.Fatalf("unexpected payload %+v", p)
	}

	job.JobType = "nope"
	if _, err := DecodePayload(job); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}
