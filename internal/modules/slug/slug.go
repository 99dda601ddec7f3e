// Package slug resolves and allocates URL-safe post identifiers within a
// site, and keeps the append-only history that backs permanent redirects.
package slug

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/inkwave/core/internal/models"
	"gorm.io/gorm"
)

// maxAllocateProbes bounds the disambiguator search; beyond this the site
// has an unreasonable number of colliding slugs.
const maxAllocateProbes = 1000

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)
	dashRuns     = regexp.MustCompile(`-{2,}`)
)

// ErrExhausted is returned when no free disambiguated slug could be found.
var ErrExhausted = errors.New("slug: no free slug found")

// Service provides slug allocation, history tracking and resolution.
type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// Normalize lowers, transliterates nothing, and collapses everything that is
// not [a-z0-9] into single dashes. An empty result falls back to "post".
func Normalize(desired string) string {
	s := strings.ToLower(strings.TrimSpace(desired))
	s = strings.ReplaceAll(s, " ", "-")
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "post"
	}
	return s
}

// Allocate returns the desired slug, or the first free deterministic
// "-2", "-3", … variant when it collides with a different post (or a
// historic slug) in the same site. excludePostID skips the post being
// updated so it can keep its own slug.
//
// Allocation races are resolved by the store, not here: the posts table has
// a unique (site_id, slug) index, and callers retry Allocate when an insert
// is rejected by it.
func (s *Service) Allocate(siteID, desired, excludePostID string) (string, error) {
	base := Normalize(desired)
	for i := 1; i <= maxAllocateProbes; i++ {
		candidate := base
		if i > 1 {
			candidate = base + "-" + strconv.Itoa(i)
		}
		taken, err := s.taken(siteID, candidate, excludePostID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}

func (s *Service) taken(siteID, candidate, excludePostID string) (bool, error) {
	var count int64
	tx := s.db.Model(&models.PostModel{}).
		Where("site_id = ? AND slug = ?", siteID, candidate)
	if excludePostID != "" {
		tx = tx.Where("id <> ?", excludePostID)
	}
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	// Historic slugs stay reserved: reusing one would shadow a redirect.
	tx = s.db.Model(&models.PostSlugModel{}).
		Where("site_id = ? AND slug = ?", siteID, candidate)
	if excludePostID != "" {
		tx = tx.Where("post_id <> ?", excludePostID)
	}
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordChange appends oldSlug to the post's history inside tx. It must run
// in the same transaction that switches Post.Slug so a crash can not lose
// the redirect.
func (s *Service) RecordChange(tx *gorm.DB, post *models.PostModel, oldSlug string) error {
	entry := models.PostSlugModel{
		SiteID: post.SiteID,
		PostID: post.ID,
		Slug:   oldSlug,
	}
	return tx.Where(models.PostSlugModel{SiteID: post.SiteID, Slug: oldSlug}).
		Assign(models.PostSlugModel{PostID: post.ID}).
		FirstOrCreate(&entry).Error
}

// Resolution is the outcome of a slug lookup.
type Resolution struct {
	Post     *models.PostModel
	Redirect bool // true when the slug is historic and Post carries the canonical one
}

// Resolve looks up a slug: current slug first, then the history chain. A
// historic slug yields the current post with Redirect set, never a miss.
// (nil, nil) means the slug was never assigned.
func (s *Service) Resolve(siteID, rawSlug string) (*Resolution, error) {
	lookup := Normalize(rawSlug)

	var post models.PostModel
	err := s.db.Where("site_id = ? AND slug = ?", siteID, lookup).First(&post).Error
	if err == nil {
		return &Resolution{Post: &post}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var history models.PostSlugModel
	err = s.db.Where("site_id = ? AND slug = ?", siteID, lookup).First(&history).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	err = s.db.First(&post, "id = ?", history.PostID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Orphaned history row; the parent post is gone.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Resolution{Post: &post, Redirect: true}, nil
}
