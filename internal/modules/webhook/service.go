package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/modules/jobqueue"
	"gorm.io/gorm"
)

// Content events pushed to registered endpoints.
const (
	EventPostPublished = "post_published"
	EventPostUpdated   = "post_updated"
	EventPostDeleted   = "post_deleted"
)

// Service manages webhook registrations and fans content events out into
// delivery jobs.
type Service struct {
	db          *gorm.DB
	queue       *jobqueue.Queue
	maxAttempts int
}

func NewService(db *gorm.DB, queue *jobqueue.Queue, maxAttempts int) *Service {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &Service{db: db, queue: queue, maxAttempts: maxAttempts}
}

// WithTx returns a Service whose reads and enqueues run inside tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, queue: s.queue.WithTx(tx), maxAttempts: s.maxAttempts}
}

// CreateWebhookDTO is the request body for registering a webhook.
type CreateWebhookDTO struct {
	SiteID    string `json:"site_id"    binding:"required"`
	TargetURL string `json:"target_url" binding:"required,url"`
	Secret    string `json:"secret"`
	IsActive  *bool  `json:"is_active"`
}

// UpdateWebhookDTO is the request body for updating a webhook.
type UpdateWebhookDTO struct {
	TargetURL *string `json:"target_url"`
	Secret    *string `json:"secret"`
	IsActive  *bool   `json:"is_active"`
}

func (s *Service) List(siteID string) ([]models.WebhookModel, error) {
	tx := s.db.Order("created_at DESC")
	if siteID != "" {
		tx = tx.Where("site_id = ?", siteID)
	}
	var items []models.WebhookModel
	return items, tx.Find(&items).Error
}

func (s *Service) GetByID(id string) (*models.WebhookModel, error) {
	var w models.WebhookModel
	if err := s.db.First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// Create registers a webhook. A blank secret gets a generated one; the
// secret is never echoed back through read APIs.
func (s *Service) Create(dto *CreateWebhookDTO) (*models.WebhookModel, error) {
	secret := strings.TrimSpace(dto.Secret)
	if secret == "" {
		raw := make([]byte, 20)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(raw)
	}

	w := models.WebhookModel{
		SiteID:    dto.SiteID,
		TargetURL: dto.TargetURL,
		Secret:    secret,
		IsActive:  true,
	}
	if dto.IsActive != nil {
		w.IsActive = *dto.IsActive
	}
	return &w, s.db.Create(&w).Error
}

func (s *Service) Update(id string, dto *UpdateWebhookDTO) (*models.WebhookModel, error) {
	w, err := s.GetByID(id)
	if err != nil || w == nil {
		return w, err
	}
	updates := map[string]interface{}{}
	if dto.TargetURL != nil {
		updates["target_url"] = *dto.TargetURL
	}
	if dto.Secret != nil {
		updates["secret"] = strings.TrimSpace(*dto.Secret)
	}
	if dto.IsActive != nil {
		updates["is_active"] = *dto.IsActive
	}
	return w, s.db.Model(w).Updates(updates).Error
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.WebhookModel{}, "id = ?", id).Error
}

// EnqueueEvent persists one webhook_delivery job per active webhook of the
// post's site. The snapshot captured in the payload keeps post_deleted
// deliveries self-contained after the row is gone.
//
// Any enqueue failure is returned: the caller's business operation must
// fail rather than silently drop a notification.
func (s *Service) EnqueueEvent(ctx context.Context, post *models.PostModel, event string, at time.Time) (int, error) {
	var hooks []models.WebhookModel
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND is_active = ?", post.SiteID, true).
		Find(&hooks).Error
	if err != nil {
		return 0, fmt.Errorf("load webhooks for site %s: %w", post.SiteID, err)
	}

	for i, hook := range hooks {
		payload := jobqueue.WebhookDeliveryPayload{
			WebhookID:   hook.ID,
			SiteID:      post.SiteID,
			PostID:      post.ID,
			Event:       event,
			Slug:        post.Slug,
			ContentHash: post.ContentHash,
		}
		if _, err := s.queue.Enqueue(ctx, models.JobWebhookDelivery, payload, at, s.maxAttempts); err != nil {
			return i, err
		}
	}
	return len(hooks), nil
}

// ListDeliveries returns the newest audit rows, optionally filtered by
// webhook.
func (s *Service) ListDeliveries(webhookID string, limit int) ([]models.WebhookDeliveryModel, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	tx := s.db.Order("created_at DESC").Limit(limit)
	if webhookID != "" {
		tx = tx.Where("webhook_id = ?", webhookID)
	}
	var items []models.WebhookDeliveryModel
	return items, tx.Find(&items).Error
}
