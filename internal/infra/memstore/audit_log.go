package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"
	repo "github.com/ibra-a/urbanjungle-website-sub000/internal/repository"
)

type auditLogRepo struct {
	run runner
	now func() time.Time
}

func (r *auditLogRepo) Create(ctx context.Context, log model.AuditLog) error {
	return r.run(ctx, func(st *state) error {
		st.nextAuditID++
		log.ID = st.nextAuditID
		if log.CreatedAt.IsZero() {
			log.CreatedAt = r.now()
		}
		st.auditLogs = append(st.auditLogs, log)
		return nil
	})
}

func (r *auditLogRepo) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var out []model.AuditLog
	err := r.run(ctx, func(st *state) error {
		//新しい順
		for i := len(st.auditLogs) - 1; i >= 0; i-- {
			l := st.auditLogs[i]
			if !matchAuditLog(l, f) {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page(out, f.Limit, f.Offset), nil
}

func matchAuditLog(l model.AuditLog, f repo.AuditLogFilter) bool {
	if f.ActorID != "" && l.ActorID != f.ActorID {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, l.Action) {
		return false
	}
	if f.ResourceType != "" && l.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && l.ResourceID != f.ResourceID {
		return false
	}
	if f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && l.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}
