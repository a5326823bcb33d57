package port

import (
	"context"

	"meridian/internal/service/order/domain"
)

// EventPublisher 把领域事件直接发往消息总线（at-least-once）。
// 与 outbox 构成双路径：直接路径低延迟，outbox 路径保证不丢。
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// OutboxRepository 是 relay 消费 outbox 条目的出站端口。
// 条目的写入发生在 OrderRepository.Save 的事务里，不走这里。
type OutboxRepository interface {
	// FindPending 按插入顺序返回至多 limit 条待投递条目。
	FindPending(ctx context.Context, limit int) ([]*domain.OutboxEntry, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}
