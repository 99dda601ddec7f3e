package jobqueue

import (
	"encoding/json"
	"fmt"

	"github.com/inkwave/core/internal/models"
)

// WebhookDeliveryPayload is the typed payload of a webhook_delivery job:
// deliver one event about one post to one registered endpoint.
type WebhookDeliveryPayload struct {
	WebhookID string `json:"webhook_id"`
	SiteID    string `json:"site_id"`
	PostID    string `json:"post_id"`
	Event     string `json:"event"`

	// Snapshot of the observable fields at event time, so a post_deleted
	// delivery does not depend on the row still existing.
	Slug        string `json:"slug"`
	ContentHash string `json:"content_hash"`
}

// PublishScheduledPostPayload is the typed payload of a
// publish_scheduled_post job.
type PublishScheduledPostPayload struct {
	PostID string `json:"post_id"`
}

// DecodePayload turns the opaque stored payload into its typed variant,
// returned as a pointer so callers can type-switch on *WebhookDeliveryPayload
// and friends. Jobs are decoded immediately after claim; an undecodable
// payload is a permanent failure, not a retry.
func DecodePayload(job *models.JobModel) (interface{}, error) {
	switch job.JobType {
	case models.JobWebhookDelivery:
		var p WebhookDeliveryPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", job.JobType, err)
		}
		return &p, nil
	case models.JobPublishScheduledPost:
		var p PublishScheduledPostPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", job.JobType, err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", job.JobType)
	}
}
