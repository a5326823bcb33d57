// internal/service/order/infrastructure/outbox/relay.go
package outbox

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"meridian/internal/pkg/logger"
	"meridian/internal/pkg/mq"
	"meridian/internal/service/order/domain"
	"meridian/internal/service/order/domain/port"
)

var (
	outboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_relay_published_total",
		Help: "Number of outbox entries successfully published to the bus.",
	})
	outboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_relay_failed_total",
		Help: "Number of outbox entries marked FAILED.",
	})
)

// BusWriter 是 relay 依赖的消息总线写入能力，*kafka.Writer 即满足。
// Writer 不能绑定固定 topic：每条消息的目标 topic 由 relay 按事件类型决定。
type BusWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TopicResolver 把事件类型映射为投递的目标 topic。
type TopicResolver func(eventType string) string

// DefaultTopic 按事件类型推导 topic 名，例如 order.created -> order-created。
func DefaultTopic(eventType string) string {
	return strings.ReplaceAll(eventType, ".", "-")
}

// ResolveTopics 返回一个 TopicResolver：有显式映射的事件类型用映射值，
// 其余按 DefaultTopic 推导。
func ResolveTopics(overrides map[string]string) TopicResolver {
	return func(eventType string) string {
		if topic, ok := overrides[eventType]; ok {
			return topic
		}
		return DefaultTopic(eventType)
	}
}

// Leaser 在 relay 循环启动前提供单写者保证。
// 生产部署用 ZooKeeper 分布式锁实现；测试里可以用空实现。
type Leaser interface {
	Lock() error
	Unlock() error
}

// Relay 周期性扫描 PENDING 的 outbox 条目并发布到消息总线。
//
// 投递语义是 at-least-once：在发布成功和状态更新之间崩溃会导致
// 重复投递，消费方必须幂等。发布失败的条目置为 FAILED（终态），
// 不做自动重试。多实例并发运行会放大重复，所以循环启动前必须
// 先拿到租约。
type Relay struct {
	outboxRepo port.OutboxRepository
	writer     BusWriter
	topicFor   TopicResolver
	leaser     Leaser
	tracer     trace.Tracer

	interval  time.Duration
	batchSize int

	wg sync.WaitGroup
}

func NewRelay(outboxRepo port.OutboxRepository, writer BusWriter, topicFor TopicResolver, leaser Leaser, tracer trace.Tracer, interval time.Duration, batchSize int) *Relay {
	if topicFor == nil {
		topicFor = DefaultTopic
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		outboxRepo: outboxRepo,
		writer:     writer,
		topicFor:   topicFor,
		leaser:     leaser,
		tracer:     tracer,
		interval:   interval,
		batchSize:  batchSize,
	}
}

// Start 先阻塞获取租约，然后启动扫描循环。ctx 取消后循环退出并释放租约。
func (r *Relay) Start(ctx context.Context) error {
	if err := r.leaser.Lock(); err != nil {
		return err
	}
	logger.Logger.Info().Dur("interval", r.interval).Msg("outbox relay lease acquired, starting loop")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := r.leaser.Unlock(); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to release outbox relay lease")
			}
		}()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Logger.Info().Msg("outbox relay shutting down")
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
	return nil
}

// Wait 阻塞到扫描循环完全退出，用于优雅关停。
func (r *Relay) Wait() {
	r.wg.Wait()
}

// sweep 处理一轮 PENDING 条目。
// 单个条目的失败只影响它自己：状态置 FAILED、记日志，继续下一条。
func (r *Relay) sweep(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "outbox.Sweep")
	defer span.End()

	entries, err := r.outboxRepo.FindPending(ctx, r.batchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("outbox sweep: failed to fetch pending entries")
		return
	}
	if len(entries) == 0 {
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		r.publishEntry(ctx, entry)
	}
}

func (r *Relay) publishEntry(ctx context.Context, entry *domain.OutboxEntry) {
	// 每种事件类型投递到自己的 topic，payload 与直连路径完全一致
	msg := kafka.Message{
		Topic: r.topicFor(entry.Type),
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(entry.Type)},
			{Key: "outbox-id", Value: []byte(entry.ID)},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		outboxFailedTotal.Inc()
		logger.Ctx(ctx).Error().Err(err).
			Str("outbox_id", entry.ID).
			Str("event_type", entry.Type).
			Msg("outbox publish failed, marking entry FAILED")
		if markErr := r.outboxRepo.MarkFailed(ctx, entry.ID); markErr != nil {
			logger.Ctx(ctx).Error().Err(markErr).Str("outbox_id", entry.ID).Msg("failed to mark outbox entry FAILED")
		}
		return
	}

	// 这里崩溃的话条目仍是 PENDING，下一轮会重复投递——at-least-once
	if err := r.outboxRepo.MarkPublished(ctx, entry.ID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("outbox_id", entry.ID).Msg("failed to mark outbox entry PUBLISHED, duplicate delivery possible")
		return
	}
	outboxPublishedTotal.Inc()
}

// NopLeaser 是单实例部署（或测试）下的租约空实现。
type NopLeaser struct{}

func (NopLeaser) Lock() error   { return nil }
func (NopLeaser) Unlock() error { return nil }
