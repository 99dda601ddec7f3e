// Package site manages the tenants that own posts and webhooks.
package site

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwave/core/internal/models"
	"github.com/inkwave/core/internal/pkg/response"
	"gorm.io/gorm"
)

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// CreateSiteDTO is the request body for registering a site.
type CreateSiteDTO struct {
	Name   string `json:"name"   binding:"required"`
	Domain string `json:"domain" binding:"required"`
}

// UpdateSiteDTO is the request body for updating a site.
type UpdateSiteDTO struct {
	Name     *string `json:"name"`
	Domain   *string `json:"domain"`
	IsActive *bool   `json:"is_active"`
}

func (s *Service) List() ([]models.SiteModel, error) {
	var sites []models.SiteModel
	return sites, s.db.Order("created_at ASC").Find(&sites).Error
}

func (s *Service) GetByID(id string) (*models.SiteModel, error) {
	var site models.SiteModel
	if err := s.db.First(&site, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &site, nil
}

func (s *Service) Create(dto *CreateSiteDTO) (*models.SiteModel, error) {
	site := models.SiteModel{
		Name:     strings.TrimSpace(dto.Name),
		Domain:   strings.ToLower(strings.TrimSpace(dto.Domain)),
		IsActive: true,
	}
	return &site, s.db.Create(&site).Error
}

func (s *Service) Update(id string, dto *UpdateSiteDTO) (*models.SiteModel, error) {
	site, err := s.GetByID(id)
	if err != nil || site == nil {
		return site, err
	}
	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.Domain != nil {
		updates["domain"] = strings.ToLower(strings.TrimSpace(*dto.Domain))
	}
	if dto.IsActive != nil {
		updates["is_active"] = *dto.IsActive
	}
	return site, s.db.Model(site).Updates(updates).Error
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/sites", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:siteId", h.get)
	g.PUT("/:siteId", h.update)
	g.PATCH("/:siteId", h.update)
}

func (h *Handler) list(c *gin.Context) {
	sites, err := h.svc.List()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, sites)
}

func (h *Handler) get(c *gin.Context) {
	site, err := h.svc.GetByID(c.Param("siteId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if site == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, site)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateSiteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	site, err := h.svc.Create(&dto)
	if err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	response.Created(c, site)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateSiteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	site, err := h.svc.Update(c.Param("siteId"), &dto)
	if err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	if site == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, site)
}
