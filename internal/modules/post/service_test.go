package post

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/modules/jobqueue"
	"github.com/inkwave/core/internal/modules/slug"
	"github.com/inkwave/core/internal/modules/webhook"
	"github.com/inkwave/core/internal/pkg/cursor"
	"github.com/inkwave/core/internal/pkg/testdb"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *models.SiteModel) {
	t.Helper()
	db := testdb.New(t)
	site := &models.SiteModel{Name: "Acme Blog", Domain: "acme.example", IsActive: true}
	if err := db.Create(site).Error; err != nil {
		t.Fatalf("create site: %v", err)
	}
	slugs := slug.NewService(db)
	hooks := webhook.NewService(db, jobqueue.New(db), 5)
	return NewService(db, slugs, hooks, zap.NewNop()), db, site
}

func addWebhook(t *testing.T, db *gorm.DB, siteID string, active bool) *models.WebhookModel {
	t.Helper()
	w := &models.WebhookModel{
		SiteID:    siteID,
		TargetURL: "https://consumer.example/hooks",
		Secret:    "s3cr3t",
		IsActive:  active,
	}
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	return w
}

func webhookJobs(t *testing.T, db *gorm.DB) []jobqueue.WebhookDeliveryPayload {
	t.Helper()
	var jobs []models.JobModel
	if err := db.Where("job_type = ?", models.JobWebhookDelivery).Order("created_at ASC").Find(&jobs).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	out := make([]jobqueue.WebhookDeliveryPayload, len(jobs))
	for i := range jobs {
		decoded, err := jobqueue.DecodePayload(&jobs[i])
		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		p, ok := decoded.(*jobqueue.WebhookDeliveryPayload)
		if !ok {
			t.Fatalf("payload type %T", decoded)
		}
		out[i] = *p
	}
	return out
}

func TestCreateDraft(t *testing.T) {
	svc, db, site := newTestService(t)
	addWebhook(t, db, site.ID, true)

	p, err := svc.Create(context.Background(), &CreatePostDTO{
		SiteID: site.ID,
		Title:  "Hello, World!",
		BodyMD: "# Hi",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != models.PostDraft {
		t.Fatalf("status = %q, want draft", p.Status)
	}
	if p.Slug != "hello-world" {
		t.Fatalf("slug = %q, want hello-world", p.Slug)
	}
	if !strings.HasPrefix(p.ContentHash, "v1:") {
		t.Fatalf("content hash %q lacks version prefix", p.ContentHash)
	}
	if !strings.Contains(p.BodyHTML, "<h1") {
		t.Fatalf("body not rendered: %q", p.BodyHTML)
	}
	if jobs := webhookJobs(t, db); len(jobs) != 0 {
		t.Fatalf("draft enqueued %d jobs", len(jobs))
	}
}

func TestCreatePublishFansOutToActiveHooks(t *testing.T) {
	svc, db, site := newTestService(t)
	a := addWebhook(t, db, site.ID, true)
	b := addWebhook(t, db, site.ID, true)
	addWebhook(t, db, site.ID, false)

	p, err := svc.Create(context.Background(), &CreatePostDTO{
		SiteID:  site.ID,
		Title:   "Launch",
		BodyMD:  "we shipped",
		Publish: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != models.PostPublished || p.PublishedAt == nil {
		t.Fatalf("post not published: status=%q published_at=%v", p.Status, p.PublishedAt)
	}

	jobs := webhookJobs(t, db)
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	seen := map[string]bool{}
	for _, j := range jobs {
		seen[j.WebhookID] = true
		if j.Event != webhook.EventPostPublished {
			t.Fatalf("event = %q, want post_published", j.Event)
		}
		if j.PostID != p.ID || j.Slug != p.Slug || j.ContentHash != p.ContentHash {
			t.Fatalf("payload snapshot mismatch: %+v", j)
		}
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Fatalf("fan-out missed a hook: %v", seen)
	}
}

func TestCreateDuplicateSlugGetsSuffix(t *testing.T) {
	svc, _, site := newTestService(t)

	first, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Same Title"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Same Title"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Slug != "same-title" || second.Slug != "same-title-2" {
		t.Fatalf("slugs = %q, %q", first.Slug, second.Slug)
	}
}

func TestCreateUnknownSite(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: "nope", Title: "x"})
	if err != ErrSiteNotFound {
		t.Fatalf("err = %v, want ErrSiteNotFound", err)
	}
}

func TestUpdateUnchangedContentEnqueuesNothing(t *testing.T) {
	svc, db, site := newTestService(t)
	addWebhook(t, db, site.ID, true)

	p, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Stable", Publish: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := len(webhookJobs(t, db))

	sameTitle := "Stable"
	updated, err := svc.Update(context.Background(), p.ID, &UpdatePostDTO{Title: &sameTitle})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ContentHash != p.ContentHash {
		t.Fatalf("hash changed on identical content")
	}
	if after := len(webhookJobs(t, db)); after != before {
		t.Fatalf("no-op update enqueued %d jobs", after-before)
	}
}

func TestUpdateContentChangeEnqueuesUpdated(t *testing.T) {
	svc, db, site := newTestService(t)
	addWebhook(t, db, site.ID, true)

	p, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Before", Publish: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	body := "fresh body"
	updated, err := svc.Update(context.Background(), p.ID, &UpdatePostDTO{BodyMD: &body})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ContentHash == p.ContentHash {
		t.Fatalf("hash did not change")
	}

	jobs := webhookJobs(t, db)
	last := jobs[len(jobs)-1]
	if last.Event != webhook.EventPostUpdated {
		t.Fatalf("event = %q, want post_updated", last.Event)
	}
	if last.ContentHash != updated.ContentHash {
		t.Fatalf("payload carries stale hash")
	}
}

func TestUpdateSlugChangeLeavesRedirect(t *testing.T) {
	svc, _, site := newTestService(t)

	p, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Old Name", Publish: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newSlug := "new-name"
	updated, err := svc.Update(context.Background(), p.ID, &UpdatePostDTO{Slug: &newSlug})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Slug != "new-name" {
		t.Fatalf("slug = %q", updated.Slug)
	}

	res, err := svc.Resolve(context.Background(), site.ID, "old-name")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res == nil || !res.Redirect || res.Post.Slug != "new-name" {
		t.Fatalf("old slug did not redirect: %+v", res)
	}
}

func TestUnpublishEnqueuesDeleted(t *testing.T) {
	svc, db, site := newTestService(t)
	addWebhook(t, db, site.ID, true)

	p, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Gone Soon", Publish: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	archive := true
	if _, err := svc.Update(context.Background(), p.ID, &UpdatePostDTO{Archive: &archive}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	jobs := webhookJobs(t, db)
	last := jobs[len(jobs)-1]
	if last.Event != webhook.EventPostDeleted {
		t.Fatalf("event = %q, want post_deleted", last.Event)
	}
}

func TestDeletePublishedLeavesSnapshotJob(t *testing.T) {
	svc, db, site := newTestService(t)
	addWebhook(t, db, site.ID, true)

	p, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Doomed", Publish: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := svc.Delete(context.Background(), p.ID)
	if err != nil || !found {
		t.Fatalf("delete: found=%v err=%v", found, err)
	}

	var count int64
	db.Model(&models.PostModel{}).Where("id = ?", p.ID).Count(&count)
	if count != 0 {
		t.Fatalf("post row survived delete")
	}

	jobs := webhookJobs(t, db)
	last := jobs[len(jobs)-1]
	if last.Event != webhook.EventPostDeleted {
		t.Fatalf("event = %q, want post_deleted", last.Event)
	}
	// The payload must stand on its own now that the row is gone.
	if last.Slug != p.Slug || last.ContentHash != p.ContentHash || last.PostID != p.ID {
		t.Fatalf("snapshot incomplete: %+v", last)
	}
}

func TestDeleteDraftIsSilent(t *testing.T) {
	svc, db, site := newTestService(t)
	addWebhook(t, db, site.ID, true)

	p, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Never Seen"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if jobs := webhookJobs(t, db); len(jobs) != 0 {
		t.Fatalf("draft delete enqueued %d jobs", len(jobs))
	}
}

func TestPublishDueScheduled(t *testing.T) {
	svc, db, site := newTestService(t)
	addWebhook(t, db, site.ID, true)

	soon := time.Now().Add(time.Minute)
	later := time.Now().Add(time.Hour)
	due, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Due", ScheduledAt: &soon})
	if err != nil {
		t.Fatalf("create due: %v", err)
	}
	notYet, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Not Yet", ScheduledAt: &later})
	if err != nil {
		t.Fatalf("create future: %v", err)
	}

	published, err := svc.PublishDueScheduled(context.Background(), time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("publish due: %v", err)
	}
	if published != 1 {
		t.Fatalf("published %d, want 1", published)
	}

	got, _ := svc.GetByID(context.Background(), due.ID)
	if got.Status != models.PostPublished || got.PublishedAt == nil || got.ScheduledAt != nil {
		t.Fatalf("due post state: %+v", got)
	}
	still, _ := svc.GetByID(context.Background(), notYet.ID)
	if still.Status != models.PostScheduled {
		t.Fatalf("future post published early")
	}

	jobs := webhookJobs(t, db)
	if len(jobs) != 1 || jobs[0].Event != webhook.EventPostPublished || jobs[0].PostID != due.ID {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestScheduleRejectsPastAndPublished(t *testing.T) {
	svc, _, site := newTestService(t)

	draft, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), draft.ID, time.Now().Add(-time.Hour)); err == nil {
		t.Fatalf("past schedule accepted")
	}

	live, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Live", Publish: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), live.ID, time.Now().Add(time.Hour)); err == nil {
		t.Fatalf("re-scheduling a published post accepted")
	}
}

func TestListKeysetPagination(t *testing.T) {
	svc, db, site := newTestService(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p, err := svc.Create(context.Background(), &CreatePostDTO{
			SiteID:  site.ID,
			Title:   "Post " + string(rune('A'+i)),
			Publish: true,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		at := base.Add(time.Duration(i) * time.Hour)
		if err := db.Model(&models.PostModel{}).Where("id = ?", p.ID).Update("published_at", at).Error; err != nil {
			t.Fatalf("backdate %d: %v", i, err)
		}
	}

	page1, next, err := svc.List(context.Background(), site.ID, models.PostPublished, cursor.Query{Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 || next == "" {
		t.Fatalf("page 1: %d items, next=%q", len(page1), next)
	}
	if page1[0].Title != "Post E" || page1[1].Title != "Post D" {
		t.Fatalf("page 1 order: %q, %q", page1[0].Title, page1[1].Title)
	}

	cur, err := cursor.Decode(next)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	page2, next2, err := svc.List(context.Background(), site.ID, models.PostPublished, cursor.Query{Cursor: cur, Limit: 2})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 || next2 == "" {
		t.Fatalf("page 2: %d items, next=%q", len(page2), next2)
	}
	if page2[0].Title != "Post C" || page2[1].Title != "Post B" {
		t.Fatalf("page 2 order: %q, %q", page2[0].Title, page2[1].Title)
	}

	cur2, _ := cursor.Decode(next2)
	page3, next3, err := svc.List(context.Background(), site.ID, models.PostPublished, cursor.Query{Cursor: cur2, Limit: 2})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || next3 != "" {
		t.Fatalf("page 3: %d items, next=%q", len(page3), next3)
	}
	if page3[0].Title != "Post A" {
		t.Fatalf("page 3 item: %q", page3[0].Title)
	}
}

func TestListScopedToSiteAndStatus(t *testing.T) {
	svc, db, site := newTestService(t)
	other := &models.SiteModel{Name: "Other", Domain: "other.example", IsActive: true}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("create other site: %v", err)
	}

	if _, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Mine", Publish: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: site.ID, Title: "Hidden Draft"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), &CreatePostDTO{SiteID: other.ID, Title: "Theirs", Publish: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	posts, _, err := svc.List(context.Background(), site.ID, models.PostPublished, cursor.Query{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "Mine" {
		t.Fatalf("list leaked rows: %+v", posts)
	}
}
