package model

import (
	"time"

	"gorm.io/datatypes"
)

type DeadLetterStatus string

const (
	//リトライ上限に達して止まっている
	DeadLetterStatusDead DeadLetterStatus = "dead"
	//オペレーターが再投入した
	DeadLetterStatusRequeued DeadLetterStatus = "requeued"
)

// リトライを使い切った (イベント, ハンドラ) の配送。自動では再試行しない。
type DeadLetter struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string           `gorm:"type:uuid;not null;index" json:"event_id"`
	TenantID    string           `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	AggregateID string           `gorm:"type:varchar(64);not null" json:"aggregate_id"`
	EventType   string           `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Version     int64            `gorm:"not null" json:"version"`
	Handler     string           `gorm:"type:varchar(100);not null" json:"handler"`
	Payload     datatypes.JSON   `gorm:"type:jsonb;not null" json:"payload"`
	FailureKind string           `gorm:"type:varchar(20);not null" json:"failure_kind"`
	LastError   string           `gorm:"type:text" json:"last_error"`
	Attempts    int              `gorm:"not null" json:"attempts"`
	Status      DeadLetterStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt   time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"not null" json:"updated_at"`
}

func (DeadLetter) TableName() string {
	return "dead_letters"
}
