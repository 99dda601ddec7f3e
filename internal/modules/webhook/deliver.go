package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/inkwave/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLoggedResponseBytes = 16 << 10

// Event is transported to receivers as a JSON body. ContentHash is the
// deduplication contract: consumers seeing the same hash twice can skip the
// second notification regardless of arrival order.
type Event struct {
	Event       string `json:"event"`
	PostID      string `json:"post_id"`
	Slug        string `json:"slug"`
	ContentHash string `json:"content_hash"`
	SiteID      string `json:"site_id"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
}

// DeliveryResult is the outcome of a single attempt. StatusCode is nil for
// transport errors that never produced a response.
type DeliveryResult struct {
	StatusCode   *int
	ResponseBody string
	Err          error
}

// OK reports whether the attempt received a 2xx response.
func (r DeliveryResult) OK() bool {
	return r.Err == nil && r.StatusCode != nil && *r.StatusCode >= 200 && *r.StatusCode < 300
}

// Deliverer signs and sends single delivery attempts and records every one
// of them into the audit trail.
type Deliverer struct {
	db     *gorm.DB
	signer Signer
	client *http.Client
	logger *zap.Logger
}

func NewDeliverer(db *gorm.DB, signer Signer, timeout time.Duration, logger *zap.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{
		db:     db,
		signer: signer,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("WebhookDeliverer"),
	}
}

// Deliver performs one signed HTTP POST for the given event and writes
// exactly one WebhookDeliveryModel row before returning, whatever the
// outcome. The returned result's Err is non-nil when the attempt failed
// (transport error, non-2xx, or unusable configuration).
func (d *Deliverer) Deliver(ctx context.Context, hook *models.WebhookModel, event Event, attempt int) DeliveryResult {
	body, err := json.Marshal(event)
	if err != nil {
		return d.record(ctx, hook, event, attempt, DeliveryResult{Err: fmt.Errorf("encode event: %w", err)})
	}

	sigs, err := d.signer.Sign(hook, body)
	if err != nil {
		return d.record(ctx, hook, event, attempt, DeliveryResult{Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.TargetURL, bytes.NewReader(body))
	if err != nil {
		return d.record(ctx, hook, event, attempt, DeliveryResult{Err: fmt.Errorf("build request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature256", sigs.SHA256)
	req.Header.Set("X-Webhook-Signature", sigs.SHA1)
	req.Header.Set("X-Webhook-Event", event.Event)
	req.Header.Set("X-Webhook-Id", hook.ID)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(event.Timestamp, 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return d.record(ctx, hook, event, attempt, DeliveryResult{Err: err})
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponseBytes))
	result := DeliveryResult{
		StatusCode:   &resp.StatusCode,
		ResponseBody: string(respBody),
	}
	if !result.OK() {
		result.Err = fmt.Errorf("target responded %d", resp.StatusCode)
	}
	return d.record(ctx, hook, event, attempt, result)
}

// record appends the audit row. The log write must not be skipped on
// failure paths; a delivery the log does not know about never happened as
// far as operators are concerned.
func (d *Deliverer) record(ctx context.Context, hook *models.WebhookModel, event Event, attempt int, result DeliveryResult) DeliveryResult {
	row := models.WebhookDeliveryModel{
		WebhookID:    hook.ID,
		PostID:       event.PostID,
		Event:        event.Event,
		StatusCode:   result.StatusCode,
		ResponseBody: result.ResponseBody,
		Attempt:      attempt,
	}
	if result.Err != nil {
		row.Error = result.Err.Error()
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		d.logger.Error("failed to write delivery audit row",
			zap.String("webhook_id", hook.ID),
			zap.String("event", event.Event),
			zap.Error(err),
		)
	}
	return result
}
