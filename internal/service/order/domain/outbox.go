// internal/service/order/domain/outbox.go
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// OutboxStatus 是 outbox 条目的投递状态
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	// OutboxStatusFailed 是终态：relay 不会自动重试，需要人工或外部工具重新投递。
	OutboxStatusFailed OutboxStatus = "FAILED"
)

// OutboxEntry 是领域事件在数据库中的暂存形态。
// 条目与订单行在同一个本地事务中写入，relay 异步地把 PENDING 条目发往消息总线。
type OutboxEntry struct {
	ID          string
	AggregateID string
	Type        string
	Payload     []byte
	Status      OutboxStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutboxEntry 把一个领域事件序列化为待投递的 outbox 条目。
//
// 条目 ID 从 (聚合 ID, 事件类型) 确定性推导：订单状态机保证每种事件
// 在一个订单上至多发生一次，所以同一批事件被重复提交时会得到相同的
// ID，写入侧靠主键冲突去重，不会插入重复行。
func NewOutboxEntry(event Event) (*OutboxEntry, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal event %s", event.EventType())
	}
	now := time.Now()
	return &OutboxEntry{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(event.AggregateID()+"/"+event.EventType())).String(),
		AggregateID: event.AggregateID(),
		Type:        event.EventType(),
		Payload:     payload,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
