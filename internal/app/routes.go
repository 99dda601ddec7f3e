package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkwave/core/internal/middleware"
	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/modules/jobqueue"
	"github.com/inkwave/core/internal/modules/post"
	"github.com/inkwave/core/internal/modules/site"
	"github.com/inkwave/core/internal/modules/webhook"
	pkgredis "github.com/inkwave/core/internal/pkg/redis"
	"github.com/inkwave/core/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes(rc *pkgredis.Client, posts *post.Service, hooks *webhook.Service, queue *jobqueue.Queue) {
	r := a.router
	authMW := middleware.Auth(a.cfg.AdminToken)

	r.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	r.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })

	api := r.Group(apiPrefix)
	// OptionalAuth must run before the rate limiter so its admin exemption
	// sees the flag.
	api.Use(middleware.OptionalAuth(a.cfg.AdminToken))
	api.Use(middleware.RateLimit(rc.Raw()))
	api.Use(middleware.Idempotence(rc.Raw()))
	api.Use(middleware.HTTPCache(rc.Raw(), middleware.HTTPCacheOptions{
		TTL:     15 * time.Second,
		Disable: a.cfg.IsDev(),
	}))

	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/health", func(c *gin.Context) {
		sqlDB, err := a.db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": a.sched.List()})
	})

	api.POST("/clean_cache", authMW, func(c *gin.Context) {
		deleted, err := middleware.PurgeHTTPCache(c.Request.Context(), rc.Raw())
		if err != nil {
			response.InternalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted})
	})

	site.NewHandler(site.NewService(a.db)).RegisterRoutes(api, authMW)
	post.NewHandler(posts).RegisterRoutes(api, authMW)
	webhook.NewHandler(hooks).RegisterRoutes(api, authMW)

	a.registerJobRoutes(api, authMW, queue)
}

// registerJobRoutes exposes the queue's audit surface: pending and dead
// jobs stay in the table, so operators can inspect and re-arm them.
func (a *App) registerJobRoutes(api *gin.RouterGroup, authMW gin.HandlerFunc, queue *jobqueue.Queue) {
	g := api.Group("/jobs", authMW)

	g.GET("", func(c *gin.Context) {
		tx := a.db.Order("scheduled_for DESC").Limit(100)
		switch c.Query("state") {
		case "pending":
			tx = tx.Where("completed_at IS NULL AND attempts < max_attempts")
		case "dead":
			tx = tx.Where("completed_at IS NULL AND attempts >= max_attempts")
		case "completed":
			tx = tx.Where("completed_at IS NOT NULL")
		}
		var jobs []models.JobModel
		if err := tx.Find(&jobs).Error; err != nil {
			response.InternalError(c, err)
			return
		}
		response.OK(c, jobs)
	})

	g.GET("/:id", func(c *gin.Context) {
		job, err := queue.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.NotFound(c)
			return
		}
		response.OK(c, job)
	})

	// Re-arm a dead job: reset its attempt budget and make it due now.
	g.POST("/:id/retry", func(c *gin.Context) {
		res := a.db.Model(&models.JobModel{}).
			Where("id = ? AND completed_at IS NULL", c.Param("id")).
			Updates(map[string]interface{}{
				"attempts":      0,
				"scheduled_for": time.Now().UTC(),
			})
		if res.Error != nil {
			response.InternalError(c, res.Error)
			return
		}
		if res.RowsAffected == 0 {
			response.NotFoundMsg(c, "job not found or already completed")
			return
		}
		response.OK(c, gin.H{"ok": true})
	})
}
