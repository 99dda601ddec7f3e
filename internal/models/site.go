package models

// SiteModel is a tenant: a client site that consumes content through the
// read API and receives webhook notifications.
type SiteModel struct {
	Base
	Name     string `json:"name"      gorm:"not null"`
	Domain   string `json:"domain"    gorm:"uniqueIndex"`
	// No column default; see WebhookModel.IsActive. Set on create.
	IsActive bool `json:"is_active"`
}

func (SiteModel) TableName() string { return "sites" }
