package infra

import (
	"time"

	"github.com/google/uuid"
)

type auditLogModel struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID       string    `gorm:"column:user_id"`
	Action       string    `gorm:"column:action"`
	ResourceType string    `gorm:"column:resource_type"`
	ResourceID   *string   `gorm:"column:resource_id"`
	IPAddress    *string   `gorm:"column:ip_address"`
	UserAgent    string    `gorm:"column:user_agent"`
	Metadata     string    `gorm:"column:metadata;type:jsonb"`
	Severity     string    `gorm:"column:severity"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (auditLogModel) TableName() string { return "audit_logs" }

type securityAlertModel struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID      string    `gorm:"column:user_id"`
	AlertType   string    `gorm:"column:alert_type"`
	Severity    string    `gorm:"column:severity"`
	Description string    `gorm:"column:description"`
	Metadata    string    `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (securityAlertModel) TableName() string { return "security_alerts" }
