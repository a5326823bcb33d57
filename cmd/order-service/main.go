package main

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"meridian/internal/pkg/bootstrap"
	"meridian/internal/pkg/httpclient"
	"meridian/internal/pkg/logger"
	"meridian/internal/pkg/mq"
	"meridian/internal/pkg/redis"
	"meridian/internal/service/order/application"
	"meridian/internal/service/order/infrastructure"
	"meridian/internal/service/order/infrastructure/adapter"
	"meridian/internal/service/order/infrastructure/outbox"
	"meridian/internal/service/order/interfaces"
)

const serviceName = "order-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	// RegisterHandlers 先于 RunWorkers 执行，嵌入式 relay 复用这里打开的连接
	var db *gorm.DB

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config
			tracer := otel.Tracer(serviceName)

			var err error
			db, err = infrastructure.OpenDB(cfg.Infra.Mysql.DSN)
			if err != nil {
				logger.Logger.Fatal().Err(err).Msg("failed to initialize mysql")
			}

			redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
			if err != nil {
				logger.Logger.Fatal().Err(err).Msg("failed to initialize redis client")
			}
			stockGuard, err := adapter.NewFlashSaleRedisAdapter(redisClient)
			if err != nil {
				logger.Logger.Fatal().Err(err).Msg("failed to initialize flash sale stock guard")
			}

			kafkaWriter := mq.NewKafkaWriter(strings.Split(cfg.Infra.Kafka.Brokers, ","), cfg.Infra.Kafka.OrderTopic)
			publisher := infrastructure.NewKafkaEventPublisher(kafkaWriter)

			// 下游服务通过 Nacos 发现
			httpClient := httpclient.NewClient(tracer, appCtx.Nacos)
			pricingService := adapter.NewPricingHTTPAdapter(httpClient)
			inventoryService := adapter.NewInventoryHTTPAdapter(httpClient)

			orderRepo := infrastructure.NewGormOrderRepository(db)
			flashSaleRepo := infrastructure.NewGormFlashSaleRepository(db)

			service := application.NewOrderApplicationService(
				orderRepo, flashSaleRepo,
				pricingService, inventoryService,
				stockGuard, publisher, tracer,
			)
			interfaces.NewOrderHandler(service).RegisterRoutes(appCtx.Mux)
		},
		RunWorkers: func(ctx context.Context, appCtx bootstrap.AppCtx) (func(), error) {
			cfg := appCtx.Config
			if !cfg.Infra.Outbox.EmbeddedRelay {
				return func() {}, nil
			}

			// 嵌入式 relay 面向单实例部署，不竞争租约；
			// 多实例部署用独立的 outbox-relay 进程 + ZooKeeper 租约。
			relayWriter := mq.NewKafkaMultiTopicWriter(strings.Split(cfg.Infra.Kafka.Brokers, ","))
			relay := outbox.NewRelay(
				infrastructure.NewGormOutboxRepository(db),
				relayWriter,
				outbox.ResolveTopics(cfg.Infra.Kafka.EventTopics),
				outbox.NopLeaser{},
				otel.Tracer(serviceName),
				cfg.Infra.Outbox.RelayInterval,
				cfg.Infra.Outbox.BatchSize,
			)
			if err := relay.Start(ctx); err != nil {
				return nil, err
			}
			return func() {
				relay.Wait()
				_ = relayWriter.Close()
			}, nil
		},
	})
}
