package models

// WebhookModel is an externally registered HTTP endpoint that receives
// signed push notifications of content events for one site.
type WebhookModel struct {
	Base
	SiteID    string `json:"site_id"    gorm:"index;not null"`
	TargetURL string `json:"target_url" gorm:"not null"`
	Secret    string `json:"-"          gorm:"not null"`
	// No column default: gorm would drop an explicit false on insert and
	// store the hook as active. Service code sets the value on create.
	IsActive bool `json:"is_active" gorm:"index"`

	Deliveries []WebhookDeliveryModel `json:"deliveries,omitempty" gorm:"foreignKey:WebhookID"`
}

func (WebhookModel) TableName() string { return "webhooks" }

// WebhookDeliveryModel is the append-only audit trail of delivery attempts.
// One row per attempt, not per job: a job retried three times leaves three
// rows. StatusCode is NULL when the request never produced a response
// (timeout, DNS failure); Error carries the transport error text.
type WebhookDeliveryModel struct {
	Base
	WebhookID    string `json:"webhook_id"    gorm:"index;not null"`
	PostID       string `json:"post_id"       gorm:"index"`
	Event        string `json:"event"         gorm:"not null"`
	StatusCode   *int   `json:"status_code"`
	ResponseBody string `json:"response_body" gorm:"type:longtext"`
	Error        string `json:"error"         gorm:"type:longtext"`
	Attempt      int    `json:"attempt"       gorm:"not null"`
}

func (WebhookDeliveryModel) TableName() string { return "webhook_deliveries" }
