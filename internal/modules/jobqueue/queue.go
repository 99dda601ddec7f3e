// Package jobqueue is the durable, polling-based queue behind the
// publish-and-notify pipeline. The scheduled_jobs table is the single source
// of truth and the only synchronization point between processor instances;
// no in-memory state is ever the sole record of a pending job.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkwave/core/internal/models"
	"gorm.io/gorm"
)

// Queue persists and claims jobs.
type Queue struct{ db *gorm.DB }

func New(db *gorm.DB) *Queue { return &Queue{db: db} }

// WithTx returns a Queue bound to the given transaction, so enqueues commit
// or roll back together with the business mutation that triggered them.
func (q *Queue) WithTx(tx *gorm.DB) *Queue { return &Queue{db: tx} }

// Enqueue persists a job. The returned error is fatal to the triggering
// business operation: the job row is the only delivery guarantee, so a
// publish must fail when its notification job cannot be stored.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, payload interface{}, scheduledFor time.Time, maxAttempts int) (*models.JobModel, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("enqueue %s: max attempts must be >= 1", jobType)
	}

	job := models.JobModel{
		JobType:      jobType,
		Payload:      raw,
		ScheduledFor: scheduledFor.UTC(),
		MaxAttempts:  maxAttempts,
	}
	if err := q.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return &job, nil
}

// ClaimDue returns up to limit due jobs, oldest-due first, each one claimed
// for exactly one attempt. A claim bumps attempts under an optimistic
// "attempts unchanged" guard, so concurrent pollers hitting the same row
// race on the UPDATE and only one wins the attempt.
//
// Returned jobs carry the already-bumped Attempts value: it is the number of
// the attempt the caller is about to execute (1-based).
func (q *Queue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.JobModel, error) {
	var candidates []models.JobModel
	err := q.db.WithContext(ctx).
		Where("scheduled_for <= ? AND completed_at IS NULL AND attempts < max_attempts", now.UTC()).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	claimed := make([]models.JobModel, 0, len(candidates))
	for _, job := range candidates {
		res := q.db.WithContext(ctx).
			Model(&models.JobModel{}).
			Where("id = ? AND attempts = ? AND completed_at IS NULL", job.ID, job.Attempts).
			Update("attempts", job.Attempts+1)
		if res.Error != nil {
			return claimed, fmt.Errorf("claim job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another poller won this attempt.
			continue
		}
		job.Attempts++
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// MarkSucceeded terminates a job successfully.
func (q *Queue) MarkSucceeded(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return q.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"completed_at": now, "last_error": ""}).Error
}

// MarkFailed records the failure and, when attempts remain, reschedules the
// job for nextAttemptAt. A job that has burned its last attempt is left
// as-is: still in the table, never claimed again, visible to the audit
// surface for manual intervention.
func (q *Queue) MarkFailed(ctx context.Context, id string, jobErr error, nextAttemptAt time.Time) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}

	var job models.JobModel
	if err := q.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}

	updates := map[string]interface{}{"last_error": msg}
	if job.Attempts < job.MaxAttempts {
		updates["scheduled_for"] = nextAttemptAt.UTC()
	}
	return q.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkPermanentlyFailed burns the job's remaining attempts. Used for
// failures retrying can not fix, like an undecodable payload or a webhook
// with no secret.
func (q *Queue) MarkPermanentlyFailed(ctx context.Context, id string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return q.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error": msg,
			"attempts":   gorm.Expr("max_attempts"),
		}).Error
}

// Get fetches a job by ID.
func (q *Queue) Get(ctx context.Context, id string) (*models.JobModel, error) {
	var job models.JobModel
	if err := q.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}
