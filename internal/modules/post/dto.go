package post

import (
	"time"

	"github.com/inkwave/core/internal/models"
)

// CreatePostDTO is the request body for creating a post.
type CreatePostDTO struct {
	SiteID         string     `json:"site_id" binding:"required"`
	Title          string     `json:"title"   binding:"required"`
	Slug           string     `json:"slug"`
	BodyMD         string     `json:"body_md"`
	SEODescription string     `json:"seo_description"`
	Publish        bool       `json:"publish"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

// UpdatePostDTO is the request body for updating a post (all fields optional).
type UpdatePostDTO struct {
	Title          *string    `json:"title"`
	Slug           *string    `json:"slug"`
	BodyMD         *string    `json:"body_md"`
	SEODescription *string    `json:"seo_description"`
	Publish        *bool      `json:"publish"`
	Archive        *bool      `json:"archive"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

// postResponse is the API response shape for a post. ContentHash is exposed
// so consumers can run their own create/update/skip reconciliation without
// re-fetching bodies.
type postResponse struct {
	ID             string            `json:"id"`
	SiteID         string            `json:"site_id"`
	Title          string            `json:"title"`
	Slug           string            `json:"slug"`
	BodyMD         string            `json:"body_md,omitempty"`
	BodyHTML       string            `json:"body_html"`
	SEODescription string            `json:"seo_description"`
	Status         models.PostStatus `json:"status"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
	PublishedAt    *time.Time        `json:"published_at"`
	ContentHash    string            `json:"content_hash"`
	Created        time.Time         `json:"created"`
	Modified       time.Time         `json:"modified"`
}

func toResponse(p *models.PostModel, includeSource bool) postResponse {
	out := postResponse{
		ID:             p.ID,
		SiteID:         p.SiteID,
		Title:          p.Title,
		Slug:           p.Slug,
		BodyHTML:       p.BodyHTML,
		SEODescription: p.SEODescription,
		Status:         p.Status,
		ScheduledAt:    p.ScheduledAt,
		PublishedAt:    p.PublishedAt,
		ContentHash:    p.ContentHash,
		Created:        p.CreatedAt,
		Modified:       p.UpdatedAt,
	}
	if includeSource {
		out.BodyMD = p.BodyMD
	}
	return out
}
