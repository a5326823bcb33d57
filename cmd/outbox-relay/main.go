// cmd/outbox-relay/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"meridian/internal/pkg/config"
	"meridian/internal/pkg/logger"
	"meridian/internal/pkg/mq"
	"meridian/internal/pkg/tracing"
	"meridian/internal/pkg/zookeeper"
	"meridian/internal/service/order/infrastructure"
	"meridian/internal/service/order/infrastructure/outbox"
)

const (
	serviceName = "order-outbox-relay"
	// relay 的租约资源名：所有实例竞争同一把锁，拿到的才能扫表
	relayLockResource = "order-outbox-relay"
)

// 独立的 relay 进程：和 order-service 分开部署、分开伸缩。
// 同一时刻只有一个实例持有 ZooKeeper 租约并扫描 outbox。
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.App.LogLevel)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())
	tracer := otel.Tracer(serviceName)

	db, err := infrastructure.OpenDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize mysql")
	}

	// 不绑定固定 topic：每个条目按事件类型路由到自己的 topic
	kafkaWriter := mq.NewKafkaMultiTopicWriter(strings.Split(cfg.Infra.Kafka.Brokers, ","))
	defer kafkaWriter.Close()

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 10*time.Second)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
	}
	defer zkConn.Close()

	leaser, err := zookeeper.NewDistributedLock(zkConn, relayLockResource)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to prepare relay lease")
	}

	relay := outbox.NewRelay(
		infrastructure.NewGormOutboxRepository(db),
		kafkaWriter,
		outbox.ResolveTopics(cfg.Infra.Kafka.EventTopics),
		leaser,
		tracer,
		cfg.Infra.Outbox.RelayInterval,
		cfg.Infra.Outbox.BatchSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// 健康检查和指标端口
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":8085", Handler: mux}

	g.Go(func() error {
		logger.Logger.Info().Msgf("%s metrics listening on %s", serviceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := relay.Start(gctx); err != nil {
			return err
		}
		relay.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("outbox relay exited with error")
	}
	logger.Logger.Info().Msg("outbox relay gracefully shut down")
}
