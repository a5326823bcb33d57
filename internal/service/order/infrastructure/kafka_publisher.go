// internal/service/order/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"meridian/internal/pkg/mq"
	"meridian/internal/service/order/domain"
)

const eventTypeHeader = "event-type"

// KafkaEventPublisher 是 port.EventPublisher 的 Kafka 实现。
// 消息以聚合 ID 为 Key，保证同一订单的事件进入同一分区。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

// Publish 把一个领域事件序列化后发往消息总线。
func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrapf(err, "marshal event %s", event.EventType())
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(event.EventType())},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return pkgerrors.Wrapf(err, "publish event %s", event.EventType())
	}
	return nil
}
