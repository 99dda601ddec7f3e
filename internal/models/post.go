package models

import "time"

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostArchived  PostStatus = "archived"
)

// PostModel is a piece of content belonging to a site.
//
// ContentHash fingerprints the externally observable fields (title, body,
// SEO metadata, slug) and is recomputed by the publishing workflow on every
// content-affecting update. The job processor never mutates it.
type PostModel struct {
	Base
	SiteID         string     `json:"site_id"      gorm:"index;not null;uniqueIndex:idx_posts_site_slug,priority:1"`
	Site           *SiteModel `json:"-"            gorm:"foreignKey:SiteID"`
	Title          string     `json:"title"        gorm:"not null"`
	Slug           string     `json:"slug"         gorm:"not null;uniqueIndex:idx_posts_site_slug,priority:2"`
	BodyMD         string     `json:"body_md"      gorm:"column:body_md;type:longtext"`
	BodyHTML       string     `json:"body_html"    gorm:"column:body_html;type:longtext"`
	SEODescription string     `json:"seo_description"`
	Status         PostStatus `json:"status"       gorm:"type:varchar(16);default:'draft';index"`
	ScheduledAt    *time.Time `json:"scheduled_at" gorm:"index"`
	PublishedAt    *time.Time `json:"published_at" gorm:"index"`
	ContentHash    string     `json:"content_hash" gorm:"not null"`
}

func (PostModel) TableName() string { return "posts" }

// PostSlugModel is the append-only history of every slug a post has ever
// had. Rows are never updated; they only disappear when the parent post is
// deleted. Old slugs resolve to the current post for permanent redirects.
type PostSlugModel struct {
	Base
	SiteID string     `json:"site_id" gorm:"index;not null;uniqueIndex:idx_post_slugs_site_slug,priority:1"`
	PostID string     `json:"post_id" gorm:"index;not null"`
	Post   *PostModel `json:"-"       gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	Slug   string     `json:"slug"    gorm:"not null;uniqueIndex:idx_post_slugs_site_slug,priority:2"`
}

func (PostSlugModel) TableName() string { return "post_slugs" }
