// Package app wires configuration, storage, middleware, HTTP routes and the
// background job processor into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkwave/core/internal/config"
	"github.com/inkwave/core/internal/database"
	"github.com/inkwave/core/internal/middleware"
	"github.com/inkwave/core/internal/modules/jobqueue"
	"github.com/inkwave/core/internal/modules/post"
	"github.com/inkwave/core/internal/modules/processor"
	"github.com/inkwave/core/internal/modules/slug"
	"github.com/inkwave/core/internal/modules/webhook"
	pkgredis "github.com/inkwave/core/internal/pkg/redis"
	"github.com/inkwave/core/internal/pkg/scheduler"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	logger *zap.Logger
	sched  *scheduler.Scheduler
	cancel context.CancelFunc
}

// New initializes the application: config -> DB -> Redis -> routes ->
// background processor.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	queue := jobqueue.New(db)
	slugs := slug.NewService(db)
	hooks := webhook.NewService(db, queue, cfg.Processor.MaxAttempts)
	posts := post.NewService(db, slugs, hooks, logger)
	deliverer := webhook.NewDeliverer(db, webhook.HMACSigner{}, cfg.Processor.WebhookTimeout, logger)
	proc := processor.New(db, queue, posts, deliverer, rc.Raw(), logger, cfg.Processor)

	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New()
	sched.Register(scheduler.Job{
		Name:        "process_jobs",
		Description: "publish due scheduled posts and drain the webhook delivery queue",
		Interval:    cfg.Processor.PollInterval,
		Fn:          proc.Tick,
	})
	go sched.Start(ctx)

	app := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		logger: logger,
		sched:  sched,
		cancel: cancel,
	}
	app.registerRoutes(rc, posts, hooks, queue)
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines.
func (a *App) Shutdown() { a.cancel() }
