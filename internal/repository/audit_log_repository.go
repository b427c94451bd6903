package repository

import (
	"context"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
)

// 監査ログの検索条件。空文字・空スライス・nil は条件なし。
type AuditLogFilter struct {
	ActorID      string
	Actions      []model.AuditAction // いずれかに一致
	ResourceType model.AuditResourceType
	ResourceID   string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// 管理者操作の記録。Create は在庫更新と同じ Tx で呼ぶ。
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error

	// 新しい順
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
