package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/modules/jobqueue"
	"github.com/inkwave/core/internal/pkg/testdb"
)

func TestEnqueueEventFansOutToActiveHooksOnly(t *testing.T) {
	db := testdb.New(t)
	queue := jobqueue.New(db)
	svc := NewService(db, queue, 5)

	for _, h := range []models.WebhookModel{
		{SiteID: "site-a", TargetURL: "https://a.example/hook", Secret: "x", IsActive: true},
		{SiteID: "site-a", TargetURL: "https://b.example/hook", Secret: "x", IsActive: true},
		{SiteID: "site-a", TargetURL: "https://c.example/hook", Secret: "x", IsActive: false},
		{SiteID: "site-b", TargetURL: "https://d.example/hook", Secret: "x", IsActive: true},
	} {
		hook := h
		if err := db.Create(&hook).Error; err != nil {
			t.Fatalf("seed hook: %v", err)
		}
	}

	post := &models.PostModel{
		Base:        models.Base{ID: "post-1"},
		SiteID:      "site-a",
		Title:       "t",
		Slug:        "hello",
		ContentHash: "v1:abc",
	}

	n, err := svc.EnqueueEvent(context.Background(), post, EventPostPublished, time.Now())
	if err != nil {
		t.Fatalf("enqueue event: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 jobs (active hooks of site-a only), got %d", n)
	}

	var jobs []models.JobModel
	if err := db.Find(&jobs).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 persisted jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.JobType != models.JobWebhookDelivery {
			t.Fatalf("unexpected job type %q", job.JobType)
		}
		decoded, err := jobqueue.DecodePayload(&job)
		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		p, ok := decoded.(*jobqueue.WebhookDeliveryPayload)
		if !ok {
			t.Fatalf("expected *jobqueue.WebhookDeliveryPayload, got %T", decoded)
		}
		if p.Event != EventPostPublished || p.ContentHash != "v1:abc" || p.SiteID != "site-a" {
			t.Fatalf("unexpected payload %+v", p)
		}
	}
}

func TestCreateGeneratesSecretWhenBlank(t *testing.T) {
	db := testdb.New(t)
	svc := NewService(db, jobqueue.New(db), 5)

	w, err := svc.Create(&CreateWebhookDTO{SiteID: "site-a", TargetURL: "https://a.example/hook"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(w.Secret) != 40 {
		t.Fatalf("expected generated 40-char hex secret, got %q", w.Secret)
	}
	if !w.IsActive {
		t.Fatal("expected webhook active by default")
	}
}

func TestDeactivatedHookReceivesNoFurtherJobs(t *testing.T) {
	db := testdb.New(t)
	queue := jobqueue.New(db)
	svc := NewService(db, queue, 5)

	w, err := svc.Create(&CreateWebhookDTO{SiteID: "site-a", TargetURL: "https://a.example/hook"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inactive := false
	if _, err := svc.Update(w.ID, &UpdateWebhookDTO{IsActive: &inactive}); err != nil {
		t.Fatalf("update: %v", err)
	}

	post := &models.PostModel{Base: models.Base{ID: "post-1"}, SiteID: "site-a", Title: "t", Slug: "s", ContentHash: "v1:x"}
	n, err := svc.EnqueueEvent(context.Background(), post, EventPostUpdated, time.Now())
	if err != nil {
		t.Fatalf("enqueue event: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no jobs for deactivated hook, got %d", n)
	}
}

func TestCreateDisabledHookIsStoredDisabled(t *testing.T) {
	db := testdb.New(t)
	svc := NewService(db, jobqueue.New(db), 5)

	inactive := false
	w, err := svc.Create(&CreateWebhookDTO{
		SiteID:    "site-a",
		TargetURL: "https://a.example/hook",
		IsActive:  &inactive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Read the row back: the stored value must be false, not a column
	// default silently overriding the insert.
	var stored models.WebhookModel
	if err := db.First(&stored, "id = ?", w.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.IsActive {
		t.Fatal("hook created disabled was stored active")
	}

	post := &models.PostModel{Base: models.Base{ID: "post-1"}, SiteID: "site-a", Title: "t", Slug: "s", ContentHash: "v1:x"}
	n, err := svc.EnqueueEvent(context.Background(), post, EventPostPublished, time.Now())
	if err != nil {
		t.Fatalf("enqueue event: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no jobs for disabled hook, got %d", n)
	}
}
