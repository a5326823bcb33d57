// internal/service/order/infrastructure/outbox_repository.go
package infrastructure

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"meridian/internal/service/order/domain"
)

// GormOutboxRepository 是 relay 侧的 outbox 读写实现。
// 条目的创建不在这里：它发生在 GormOrderRepository.Save 的事务内。
type GormOutboxRepository struct {
	db *gorm.DB
}

func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// FindPending 按插入顺序返回至多 limit 条 PENDING 条目。
// 同一聚合的条目因此保持缓存时的相对顺序。
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	var models []OutboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.OutboxStatusPending)).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find pending outbox entries")
	}

	entries := make([]*domain.OutboxEntry, 0, len(models))
	for i := range models {
		entries = append(entries, ToDomainOutboxEntry(&models[i]))
	}
	return entries, nil
}

// MarkPublished 把条目置为 PUBLISHED。
func (r *GormOutboxRepository) MarkPublished(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, domain.OutboxStatusPublished)
}

// MarkFailed 把条目置为 FAILED。FAILED 是终态，relay 不再碰它，
// 重新投递由外部工具把状态改回 PENDING 完成。
func (r *GormOutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, domain.OutboxStatusFailed)
}

func (r *GormOutboxRepository) updateStatus(ctx context.Context, id string, status domain.OutboxStatus) error {
	err := r.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		}).Error
	return pkgerrors.Wrapf(err, "mark outbox entry %s as %s", id, status)
}
