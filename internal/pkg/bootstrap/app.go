// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"meridian/internal/pkg/config"
	"meridian/internal/pkg/logger"
	"meridian/internal/pkg/nacos"
	"meridian/internal/pkg/tracing"
	"meridian/internal/pkg/utils"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client
	Config *config.Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 每个服务注册自己独特的 HTTP 路由
	// RunWorkers 注册随服务生命周期运行的后台任务（如 outbox relay）。
	// 返回的函数会在关停时被调用。
	RunWorkers func(ctx context.Context, appCtx AppCtx) (stop func(), err error)
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	if info.ServiceName != "" {
		cfg.App.ServiceName = info.ServiceName
	}
	if info.Port != 0 {
		cfg.App.Port = info.Port
	}

	logger.Init(cfg.App.ServiceName, cfg.App.LogLevel)

	// 2. 初始化核心组件
	// a. Tracer
	tp, err := tracing.InitTracerProvider(cfg.App.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	namingClient, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	// 3. 获取本机 IP 用于注册
	ip, err := utils.GetOutboundIP()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to get outbound IP address")
	}

	// 4. 执行服务注册
	if err := namingClient.RegisterServiceInstance(cfg.App.ServiceName, ip, cfg.App.Port); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to register service with nacos")
	}

	// 5. 创建并启动 HTTP Server 与后台任务
	appCtx := AppCtx{Mux: http.NewServeMux(), Nacos: namingClient, Config: cfg}
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(appCtx)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var stopWorkers func()
	if info.RunWorkers != nil {
		stopWorkers, err = info.RunWorkers(workerCtx, appCtx)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to start background workers")
		}
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(cfg.App.Port), Handler: appCtx.Mux}
	go func() {
		logger.Logger.Info().Msgf("%s listening on :%d", cfg.App.ServiceName, cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 6. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞主 goroutine，直到接收到退出信号
	<-quit
	logger.Logger.Info().Msgf("Shutting down service %s...", cfg.App.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 按顺序执行清理操作 (后进先出)
	// a. 从 Nacos 注销服务
	if err := namingClient.DeregisterServiceInstance(cfg.App.ServiceName, ip, cfg.App.Port); err != nil {
		logger.Logger.Error().Err(err).Msg("error deregistering from nacos")
	}
	namingClient.Close()

	// b. 停止后台任务
	cancelWorkers()
	if stopWorkers != nil {
		stopWorkers()
	}

	// c. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
	}

	// d. 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down http server")
	}

	logger.Logger.Info().Msgf("Service %s gracefully shut down.", cfg.App.ServiceName)
}
