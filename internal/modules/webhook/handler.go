package webhook

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/pkg/response"
)

// webhookResponse is the API shape of a registration. The secret is
// deliberately absent.
type webhookResponse struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	TargetURL string    `json:"target_url"`
	IsActive  bool      `json:"is_active"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

func toResponse(w *models.WebhookModel) webhookResponse {
	return webhookResponse{
		ID: w.ID, SiteID: w.SiteID, TargetURL: w.TargetURL,
		IsActive: w.IsActive, Created: w.CreatedAt, Modified: w.UpdatedAt,
	}
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/webhooks", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)

	g.GET("/deliveries", h.listDeliveries)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List(c.Query("site_id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]webhookResponse, len(items))
	for i, w := range items {
		out[i] = toResponse(&w)
	}
	response.OK(c, out)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.svc.Create(&dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(w))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if w == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(w))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.svc.ListDeliveries(c.Query("webhook_id"), limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, items)
}
