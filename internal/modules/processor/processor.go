// Package processor drains the durable job queue: it publishes scheduled
// posts whose time has come and executes webhook delivery jobs on a bounded
// worker pool. Any number of processor instances can run concurrently; the
// queue's claim protocol guarantees one attempt executes once.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/inkwave/core/internal/config"
	"github.com/inkwave/core/internal/middleware"
	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/modules/jobqueue"
	"github.com/inkwave/core/internal/modules/post"
	"github.com/inkwave/core/internal/modules/webhook"
)

// backoffSteps is the wait before retry n+1, keyed by how many attempts
// have failed so far. Attempt counts beyond the table reuse the last step.
var backoffSteps = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

// BackoffDelay returns the retry delay after the given 1-based failed
// attempt number.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSteps) {
		attempt = len(backoffSteps)
	}
	return backoffSteps[attempt-1]
}

// Processor executes one Tick at a time. It owns no state beyond its
// collaborators; everything durable lives in the scheduled_jobs table.
type Processor struct {
	db        *gorm.DB
	queue     *jobqueue.Queue
	posts     *post.Service
	deliverer *webhook.Deliverer
	rdb       *redis.Client
	logger    *zap.Logger
	cfg       config.ProcessorConfig
}

func New(db *gorm.DB, queue *jobqueue.Queue, posts *post.Service, deliverer *webhook.Deliverer, rdb *redis.Client, logger *zap.Logger, cfg config.ProcessorConfig) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClaimBatch < 1 {
		cfg.ClaimBatch = 50
	}
	if cfg.Workers < 1 {
		cfg.Workers = 8
	}
	return &Processor{
		db:        db,
		queue:     queue,
		posts:     posts,
		deliverer: deliverer,
		rdb:       rdb,
		logger:    logger.Named("processor"),
		cfg:       cfg,
	}
}

// Tick runs one poll cycle: promote due scheduled posts, then claim and
// execute due jobs. Job failures are recorded in the queue, not returned;
// the returned error reflects infrastructure trouble only.
func (p *Processor) Tick(ctx context.Context) error {
	now := time.Now()

	published, err := p.posts.PublishDueScheduled(ctx, now)
	if err != nil {
		p.logger.Error("publish due scheduled posts", zap.Error(err))
	}
	if published > 0 {
		p.logger.Info("published scheduled posts", zap.Int("count", published))
		p.purgeReadCache(ctx)
	}

	jobs, err := p.queue.ClaimDue(ctx, now, p.cfg.ClaimBatch)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			p.execute(gctx, &job)
			return nil
		})
	}
	return g.Wait()
}

// execute runs one claimed attempt and settles the job's fate in the
// queue. It never returns an error: every outcome is persisted.
func (p *Processor) execute(ctx context.Context, job *models.JobModel) {
	decoded, err := jobqueue.DecodePayload(job)
	if err != nil {
		p.logger.Error("undecodable job payload",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.JobType)),
			zap.Error(err))
		p.settlePermanent(ctx, job, err)
		return
	}

	switch payload := decoded.(type) {
	case *jobqueue.WebhookDeliveryPayload:
		p.executeDelivery(ctx, job, payload)
	case *jobqueue.PublishScheduledPostPayload:
		p.executePublish(ctx, job, payload)
	default:
		p.settlePermanent(ctx, job, fmt.Errorf("unhandled payload type %T", decoded))
	}
}

func (p *Processor) executeDelivery(ctx context.Context, job *models.JobModel, payload *jobqueue.WebhookDeliveryPayload) {
	var hook models.WebhookModel
	if err := p.db.WithContext(ctx).First(&hook, "id = ?", payload.WebhookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The registration was deleted after enqueue; nothing to notify.
			p.settleSuccess(ctx, job)
			return
		}
		p.settleRetry(ctx, job, err)
		return
	}
	if !hook.IsActive {
		p.settleSuccess(ctx, job)
		return
	}

	event := webhook.Event{
		Event:       payload.Event,
		PostID:      payload.PostID,
		Slug:        payload.Slug,
		ContentHash: payload.ContentHash,
		SiteID:      payload.SiteID,
		Timestamp:   time.Now().UnixMilli(),
	}
	result := p.deliverer.Deliver(ctx, &hook, event, job.Attempts)
	if result.OK() {
		p.settleSuccess(ctx, job)
		return
	}
	if errors.Is(result.Err, webhook.ErrMissingSecret) {
		p.settlePermanent(ctx, job, result.Err)
		return
	}
	p.settleRetry(ctx, job, result.Err)
}

// executePublish handles explicitly enqueued publish jobs. Tick already
// sweeps the scheduled_at column, so this is a fallback path for posts
// promoted through the queue API.
func (p *Processor) executePublish(ctx context.Context, job *models.JobModel, payload *jobqueue.PublishScheduledPostPayload) {
	publish := true
	target, err := p.posts.GetByID(ctx, payload.PostID)
	if err != nil {
		p.settleRetry(ctx, job, err)
		return
	}
	if target == nil || target.Status == models.PostPublished {
		p.settleSuccess(ctx, job)
		return
	}
	if _, err := p.posts.Update(ctx, payload.PostID, &post.UpdatePostDTO{Publish: &publish}); err != nil {
		p.settleRetry(ctx, job, err)
		return
	}
	p.purgeReadCache(ctx)
	p.settleSuccess(ctx, job)
}

func (p *Processor) settleSuccess(ctx context.Context, job *models.JobModel) {
	if err := p.queue.MarkSucceeded(ctx, job.ID); err != nil {
		p.logger.Error("mark job succeeded", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (p *Processor) settleRetry(ctx context.Context, job *models.JobModel, jobErr error) {
	next := time.Now().Add(BackoffDelay(job.Attempts))
	if err := p.queue.MarkFailed(ctx, job.ID, jobErr, next); err != nil {
		p.logger.Error("mark job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if job.Attempts >= job.MaxAttempts {
		p.logger.Warn("job exhausted its attempts",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.JobType)),
			zap.Int("attempts", job.Attempts),
			zap.Error(jobErr))
	}
}

func (p *Processor) settlePermanent(ctx context.Context, job *models.JobModel, jobErr error) {
	if err := p.queue.MarkPermanentlyFailed(ctx, job.ID, jobErr); err != nil {
		p.logger.Error("mark job permanently failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (p *Processor) purgeReadCache(ctx context.Context) {
	if p.rdb == nil {
		return
	}
	if _, err := middleware.PurgeHTTPCache(ctx, p.rdb); err != nil {
		p.logger.Warn("purge api cache", zap.Error(err))
	}
}
