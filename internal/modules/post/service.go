// Package post implements the publishing workflow: creating and updating
// content, slug lifecycle, scheduled publish, and the enqueue of change
// notifications inside the same transaction as the mutation they announce.
package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/modules/markdown"
	"github.com/inkwave/core/internal/modules/slug"
	"github.com/inkwave/core/internal/modules/webhook"
	"github.com/inkwave/core/internal/pkg/contenthash"
	"github.com/inkwave/core/internal/pkg/cursor"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// slugInsertRetries bounds the re-allocation loop when a concurrent writer
// grabs the slug between Allocate and the insert hitting the unique index.
const slugInsertRetries = 3

var (
	// ErrSiteNotFound is returned when a post references an unknown site.
	ErrSiteNotFound = errors.New("post: site not found")
	// ErrSlugConflict is returned when slug allocation keeps losing races.
	ErrSlugConflict = errors.New("post: slug conflict")
)

// Service owns post mutations. All event enqueues run in the transaction
// of the mutation that triggered them, so a notification is persisted if
// and only if the content change is.
type Service struct {
	db     *gorm.DB
	slugs  *slug.Service
	hooks  *webhook.Service
	logger *zap.Logger
}

func NewService(db *gorm.DB, slugs *slug.Service, hooks *webhook.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, slugs: slugs, hooks: hooks, logger: logger.Named("post")}
}

func hashOf(p *models.PostModel) string {
	return contenthash.Compute(contenthash.Fields{
		Title:          p.Title,
		BodyMD:         p.BodyMD,
		SEODescription: p.SEODescription,
		Slug:           p.Slug,
	})
}

// Create stores a new post. Publish and ScheduledAt are mutually exclusive;
// ScheduledAt wins when both are set and must be in the future.
func (s *Service) Create(ctx context.Context, dto *CreatePostDTO) (*models.PostModel, error) {
	var site models.SiteModel
	if err := s.db.WithContext(ctx).First(&site, "id = ?", dto.SiteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}

	now := time.Now()
	post := &models.PostModel{
		SiteID:         dto.SiteID,
		Title:          dto.Title,
		BodyMD:         dto.BodyMD,
		BodyHTML:       markdown.Render(dto.BodyMD),
		SEODescription: dto.SEODescription,
		Status:         models.PostDraft,
	}
	switch {
	case dto.ScheduledAt != nil:
		if !dto.ScheduledAt.After(now) {
			return nil, fmt.Errorf("post: scheduled_at %s is not in the future", dto.ScheduledAt.Format(time.RFC3339))
		}
		post.Status = models.PostScheduled
		post.ScheduledAt = dto.ScheduledAt
	case dto.Publish:
		post.Status = models.PostPublished
		post.PublishedAt = &now
	}

	desired := dto.Slug
	if strings.TrimSpace(desired) == "" {
		desired = dto.Title
	}

	var lastErr error
	for try := 0; try < slugInsertRetries; try++ {
		allocated, err := s.slugs.Allocate(dto.SiteID, desired, "")
		if err != nil {
			return nil, err
		}
		post.Slug = allocated
		post.ContentHash = hashOf(post)

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(post).Error; err != nil {
				return err
			}
			if post.Status == models.PostPublished {
				_, err := s.hooks.WithTx(tx).EnqueueEvent(ctx, post, webhook.EventPostPublished, now)
				return err
			}
			return nil
		})
		if err == nil {
			return post, nil
		}
		if !isDuplicateKey(err) {
			return nil, err
		}
		// Lost the slug to a concurrent insert; allocate again.
		lastErr = err
		post.ID = ""
	}
	return nil, fmt.Errorf("%w: %v", ErrSlugConflict, lastErr)
}

// Update applies a partial update, recomputes the content hash, records
// slug history, and enqueues the event the transition calls for:
//
//	not published  -> published      post_published
//	published, hash changed          post_updated
//	published      -> not published  post_deleted
//
// A published post whose hash did not change enqueues nothing.
func (s *Service) Update(ctx context.Context, id string, dto *UpdatePostDTO) (*models.PostModel, error) {
	post, err := s.GetByID(ctx, id)
	if err != nil || post == nil {
		return post, err
	}

	oldHash := post.ContentHash
	oldSlug := post.Slug
	wasPublished := post.Status == models.PostPublished

	if dto.Title != nil {
		post.Title = *dto.Title
	}
	if dto.BodyMD != nil {
		post.BodyMD = *dto.BodyMD
		post.BodyHTML = markdown.Render(*dto.BodyMD)
	}
	if dto.SEODescription != nil {
		post.SEODescription = *dto.SEODescription
	}

	slugChanged := false
	if dto.Slug != nil && slug.Normalize(*dto.Slug) != post.Slug {
		allocated, err := s.slugs.Allocate(post.SiteID, *dto.Slug, post.ID)
		if err != nil {
			return nil, err
		}
		if allocated != post.Slug {
			post.Slug = allocated
			slugChanged = true
		}
	}

	now := time.Now()
	switch {
	case dto.Archive != nil && *dto.Archive:
		post.Status = models.PostArchived
	case dto.ScheduledAt != nil:
		if !dto.ScheduledAt.After(now) {
			return nil, fmt.Errorf("post: scheduled_at %s is not in the future", dto.ScheduledAt.Format(time.RFC3339))
		}
		post.Status = models.PostScheduled
		post.ScheduledAt = dto.ScheduledAt
	case dto.Publish != nil && *dto.Publish:
		if post.Status != models.PostPublished {
			post.Status = models.PostPublished
			post.PublishedAt = &now
			post.ScheduledAt = nil
		}
	case dto.Publish != nil && !*dto.Publish:
		post.Status = models.PostDraft
	}

	post.ContentHash = hashOf(post)

	event := ""
	isPublished := post.Status == models.PostPublished
	switch {
	case !wasPublished && isPublished:
		event = webhook.EventPostPublished
	case wasPublished && !isPublished:
		event = webhook.EventPostDeleted
	case wasPublished && isPublished && post.ContentHash != oldHash:
		event = webhook.EventPostUpdated
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if slugChanged {
			if err := s.slugs.RecordChange(tx, post, oldSlug); err != nil {
				return err
			}
		}
		if err := tx.Save(post).Error; err != nil {
			return err
		}
		if event != "" {
			_, err := s.hooks.WithTx(tx).EnqueueEvent(ctx, post, event, now)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Schedule moves a post to the scheduled state. The timestamp must be in
// the future; already-published posts can not be re-scheduled.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (*models.PostModel, error) {
	post, err := s.GetByID(ctx, id)
	if err != nil || post == nil {
		return post, err
	}
	if post.Status == models.PostPublished {
		return nil, fmt.Errorf("post: %s is already published", id)
	}
	if !at.After(time.Now()) {
		return nil, fmt.Errorf("post: scheduled_at %s is not in the future", at.Format(time.RFC3339))
	}
	post.Status = models.PostScheduled
	post.ScheduledAt = &at
	return post, s.db.WithContext(ctx).Save(post).Error
}

// Delete removes a post and its slug history. When the post was published,
// a post_deleted notification is persisted in the same transaction; a
// failing enqueue aborts the delete.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	post, err := s.GetByID(ctx, id)
	if err != nil || post == nil {
		return false, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if post.Status == models.PostPublished {
			if _, err := s.hooks.WithTx(tx).EnqueueEvent(ctx, post, webhook.EventPostDeleted, time.Now()); err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.PostSlugModel{}, "post_id = ?", post.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.PostModel{}, "id = ?", post.ID).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// PublishDueScheduled promotes every scheduled post whose timestamp has
// passed, each in its own transaction with its post_published enqueue. One
// failing post does not block the rest.
func (s *Service) PublishDueScheduled(ctx context.Context, now time.Time) (int, error) {
	var due []models.PostModel
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.PostScheduled, now).
		Order("scheduled_at ASC").
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	published := 0
	var errs []error
	for i := range due {
		post := &due[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.PostModel{}).
				Where("id = ? AND status = ?", post.ID, models.PostScheduled).
				Updates(map[string]interface{}{
					"status":       models.PostPublished,
					"published_at": now,
					"scheduled_at": nil,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Another worker published it first.
				return nil
			}
			post.Status = models.PostPublished
			post.PublishedAt = &now
			_, err := s.hooks.WithTx(tx).EnqueueEvent(ctx, post, webhook.EventPostPublished, now)
			return err
		})
		if err != nil {
			s.logger.Error("publish scheduled post", zap.String("post_id", post.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("post %s: %w", post.ID, err))
			continue
		}
		if post.Status == models.PostPublished {
			published++
		}
	}
	return published, errors.Join(errs...)
}

// GetByID returns (nil, nil) when the post does not exist.
func (s *Service) GetByID(ctx context.Context, id string) (*models.PostModel, error) {
	var post models.PostModel
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// Resolve looks a slug up within a site, following slug history.
func (s *Service) Resolve(ctx context.Context, siteID, rawSlug string) (*slug.Resolution, error) {
	return s.slugs.Resolve(siteID, rawSlug)
}

// List returns one keyset page of posts for a site, newest first. Ordering
// falls back to created_at for rows that were never published so drafts
// and scheduled posts paginate stably too.
func (s *Service) List(ctx context.Context, siteID string, status models.PostStatus, q cursor.Query) ([]models.PostModel, string, error) {
	tx := s.db.WithContext(ctx).Where("site_id = ?", siteID)
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	if q.Cursor != nil {
		tx = tx.Where(
			"COALESCE(published_at, created_at) < ? OR (COALESCE(published_at, created_at) = ? AND id < ?)",
			q.Cursor.PublishedAt, q.Cursor.PublishedAt, q.Cursor.ID,
		)
	}

	var posts []models.PostModel
	err := tx.Order("COALESCE(published_at, created_at) DESC, id DESC").
		Limit(q.Limit + 1).
		Find(&posts).Error
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(posts) > q.Limit {
		posts = posts[:q.Limit]
		last := posts[len(posts)-1]
		key := last.CreatedAt
		if last.PublishedAt != nil {
			key = *last.PublishedAt
		}
		next = cursor.Encode(cursor.Cursor{PublishedAt: key, ID: last.ID})
	}
	return posts, next, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
