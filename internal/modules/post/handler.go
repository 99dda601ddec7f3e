package post

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwave/core/internal/middleware"
	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/pkg/cursor"
	"github.com/inkwave/core/internal/pkg/response"
)

// readCacheControl is sent with cacheable read responses so downstream
// caches revalidate with the ETag instead of refetching bodies.
const readCacheControl = "public, max-age=60, stale-while-revalidate=60"

type Handler struct {
	svc  *Service
	base string
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the anonymous read API under sites/:siteId and the
// token-protected management routes under /posts.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	h.base = rg.BasePath()

	rg.GET("/sites/:siteId/posts", h.list)
	rg.GET("/sites/:siteId/posts/:slug", h.getBySlug)

	g := rg.Group("/posts", authMW)
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/schedule", h.schedule)
}

// list serves one keyset page of a site's posts. Anonymous callers only
// ever see published content; admins may filter by any status or pass
// status=all. The page carries a content-derived ETag so unchanged pages
// answer conditional requests with 304.
func (h *Handler) list(c *gin.Context) {
	q, err := cursor.FromContext(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	admin := middleware.IsAdmin(c)
	status := models.PostPublished
	if raw := c.Query("status"); raw != "" {
		if !admin && raw != string(models.PostPublished) {
			response.Unauthorized(c)
			return
		}
		if raw == "all" {
			status = ""
		} else {
			status = models.PostStatus(raw)
		}
	}

	posts, next, err := h.svc.List(c.Request.Context(), c.Param("siteId"), status, q)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	etag := listETag(posts, next)
	c.Header("ETag", etag)
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		response.NotModified(c)
		return
	}
	if !admin {
		c.Header("Cache-Control", readCacheControl)
	}

	out := make([]postResponse, len(posts))
	for i := range posts {
		out[i] = toResponse(&posts[i], admin)
	}
	response.List(c, out, next)
}

// getBySlug resolves a slug within a site. Historic slugs 301 to the
// canonical location; current slugs answer with the post and its content
// hash as a strong ETag.
func (h *Handler) getBySlug(c *gin.Context) {
	siteID := c.Param("siteId")
	res, err := h.svc.Resolve(c.Request.Context(), siteID, c.Param("slug"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if res == nil {
		response.NotFound(c)
		return
	}

	admin := middleware.IsAdmin(c)
	if res.Post.Status != models.PostPublished && !admin {
		// Unpublished content is indistinguishable from absent content.
		response.NotFound(c)
		return
	}

	if res.Redirect {
		response.MovedPermanently(c, fmt.Sprintf("%s/sites/%s/posts/%s", h.base, siteID, res.Post.Slug))
		return
	}

	etag := postETag(res.Post)
	c.Header("ETag", etag)
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		response.NotModified(c)
		return
	}
	if !admin {
		c.Header("Cache-Control", readCacheControl)
	}
	response.OK(c, toResponse(res.Post, admin))
}

func (h *Handler) getByID(c *gin.Context) {
	post, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if post == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(post, true))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.svc.Create(c.Request.Context(), &dto)
	if err != nil {
		switch {
		case errors.Is(err, ErrSiteNotFound):
			response.NotFoundMsg(c, "site not found")
		case errors.Is(err, ErrSlugConflict):
			response.Conflict(c, "slug is taken")
		default:
			response.UnprocessableEntity(c, err.Error())
		}
		return
	}
	response.Created(c, toResponse(post, true))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.svc.Update(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	if post == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(post, true))
}

func (h *Handler) delete(c *gin.Context) {
	found, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !found {
		response.NotFound(c)
		return
	}
	response.NoContent(c)
}

type scheduleDTO struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

func (h *Handler) schedule(c *gin.Context) {
	var dto scheduleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.svc.Schedule(c.Request.Context(), c.Param("id"), dto.ScheduledAt)
	if err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	if post == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(post, true))
}
