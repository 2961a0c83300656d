package model

import "time"

// オペレーター操作の種類
type AuditAction string

const (
	//デッドレターを再投入した操作。
	AuditActionRequeueDeadLetter AuditAction = "REQUEUE_DEAD_LETTER"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceDeadLetter AuditResourceType = "dead_letter"
)

// 監査ログ（オペレーター操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したオペレーター（JWTのsub）
	ActorID string `gorm:"type:varchar(64);not null;index" json:"actor_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	//対象のID（文字列で持つ）
	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
