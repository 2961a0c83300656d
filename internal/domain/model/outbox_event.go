package model

import (
	"time"

	"gorm.io/datatypes"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
)

// 書き込みと同じトランザクションで積むドメインイベント。
// relay が拾って dispatch に渡し、全ハンドラが終端に達したら published にする。
type OutboxEvent struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     string         `gorm:"type:uuid;not null;index" json:"event_id"`
	TenantID    string         `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	AggregateID string         `gorm:"type:varchar(64);not null" json:"aggregate_id"`
	EventType   string         `gorm:"type:varchar(50);not null" json:"event_type"`
	Version     int64          `gorm:"not null" json:"version"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	Status      OutboxStatus   `gorm:"type:varchar(20);not null;index:ix_outbox_status_created,priority:1" json:"status"`
	CreatedAt   time.Time      `gorm:"not null;index:ix_outbox_status_created,priority:2" json:"created_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
