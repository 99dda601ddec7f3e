package models

import (
	"encoding/json"
	"time"
)

// JobType selects which executor handles a queued job.
type JobType string

const (
	JobWebhookDelivery      JobType = "webhook_delivery"
	JobPublishScheduledPost JobType = "publish_scheduled_post"
)

// JobModel is the single durable queue entity multiplexing both job kinds.
// The table is the only synchronization point between processor instances:
// claiming bumps Attempts under an optimistic guard so two pollers never run
// the same attempt twice.
//
// Terminal states: CompletedAt set (success), or Attempts >= MaxAttempts
// with CompletedAt NULL (permanent failure). Failed jobs are never deleted;
// they stay queryable for manual intervention.
type JobModel struct {
	Base
	JobType      JobType         `json:"job_type"      gorm:"type:varchar(32);not null;index"`
	Payload      json.RawMessage `json:"payload"       gorm:"type:longtext;serializer:json"`
	ScheduledFor time.Time       `json:"scheduled_for" gorm:"index;not null"`
	Attempts     int             `json:"attempts"      gorm:"default:0"`
	MaxAttempts  int             `json:"max_attempts"  gorm:"default:5"`
	LastError    string          `json:"last_error"    gorm:"type:longtext"`
	CompletedAt  *time.Time      `json:"completed_at"  gorm:"index"`
}

func (JobModel) TableName() string { return "scheduled_jobs" }
