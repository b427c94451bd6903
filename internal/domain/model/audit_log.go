package model

import "time"

// 在庫更新、強制解放など。
type AuditAction string

const (
	//在庫数を更新した操作。
	AuditActionUpdateStock AuditAction = "UPDATE_STOCK"
	//引当数を強制的に戻した操作。
	AuditActionForceRelease AuditAction = "FORCE_RELEASE"
	//商品マスタを登録・更新した操作。
	AuditActionUpsertProduct AuditAction = "UPSERT_PRODUCT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceProduct     AuditResourceType = "product"
	AuditResourceReservation AuditResourceType = "reservation"
)

// 監査ログ（管理者操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作した管理者（JWT の sub）
	ActorID string `gorm:"type:varchar(255);not null;index" json:"actor_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
