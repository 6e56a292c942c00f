package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentroom/agent/conversation"
	"github.com/BaSui01/agentroom/api/handlers"
	"github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/internal/eventbus"
	"github.com/BaSui01/agentroom/internal/idempotency"
	"github.com/BaSui01/agentroom/internal/metrics"
	"github.com/BaSui01/agentroom/internal/server"
	"github.com/BaSui01/agentroom/internal/telemetry"
	llmfactory "github.com/BaSui01/agentroom/llm/factory"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentRoom 的主服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	namespace string

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 运行时组件
	infra      *infra
	otel       *telemetry.Providers
	collector  *metrics.Collector
	bus        *eventbus.Broadcaster
	resolver   *llmfactory.Resolver
	supervisor *conversation.Supervisor
	idem       *idempotency.Manager
	idemMemory *idempotency.MemoryStore

	// 后台任务（Redis 事件中继、限流清理）
	background       *errgroup.Group
	backgroundCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		namespace: "agentroom",
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务；返回错误时调用方应执行 Shutdown 释放已初始化的资源
func (s *Server) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.backgroundCancel = cancel
	s.background, bgCtx = errgroup.WithContext(bgCtx)

	// 1. 遥测与指标
	otelProviders, err := telemetry.Init(ctx, s.cfg.Telemetry, telemetry.DeploymentFrom(s.cfg, Version), s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otel = otelProviders
	s.collector = metrics.NewCollector(s.namespace, s.logger)

	// 2. 存储
	s.infra, err = openInfra(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}

	// 3. 事件总线
	s.bus = eventbus.NewBroadcaster(s.logger)
	var sink conversation.EventSink = s.bus
	if s.cfg.Store.RedisEvents {
		relay := eventbus.NewRedisRelay(s.infra.redis.Client(), s.cfg.Redis.KeyPrefix, s.bus, s.logger)
		ready := make(chan struct{})
		s.background.Go(func() error { return relay.Run(bgCtx, ready) })
		select {
		case <-ready:
		case <-bgCtx.Done():
			return fmt.Errorf("start redis relay: %w", s.background.Wait())
		case <-ctx.Done():
			return ctx.Err()
		}
		sink = relay
	}

	// Idempotency-Key：有 Redis 时跨实例共享
	var idemStore idempotency.Store
	if s.infra.redis != nil {
		idemStore = idempotency.NewRedisStore(s.infra.redis.Client(), s.cfg.Redis.KeyPrefix)
	} else {
		s.idemMemory = idempotency.NewMemoryStore(5 * time.Minute)
		idemStore = s.idemMemory
	}
	s.idem = idempotency.NewManager(idemStore, s.cfg.Server.IdempotencyTTL, s.logger)

	// 4. 编排器
	s.resolver = llmfactory.NewResolver(s.cfg.LLM, s.logger)
	s.supervisor = conversation.NewSupervisor(conversation.Dependencies{
		Rooms:       s.infra.stores.Rooms,
		Transcripts: s.infra.stores.Transcripts,
		Sink:        sink,
		Resolver:    s.resolver,
		Recorder:    s.collector,
		Logger:      s.logger,
	}, conversation.OptionsFromConfig(s.cfg.Chat))

	// 上次进程退出时仍在运行的房间没有编排器，需恢复为 idle
	n, err := s.supervisor.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("reset running rooms: %w", err)
	}
	if n > 0 {
		s.logger.Warn("reset rooms left running by a previous process", zap.Int("count", n))
	}

	// 5. HTTP 与 Metrics 服务器
	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.String("store_type", string(storeType(s.cfg))),
		zap.Bool("redis_events", s.cfg.Store.RedisEvents),
	)
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 构建 API 路由与中间件链
func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewFuncCheck("stores", s.infra.stores.Ping))
	if s.infra.pool != nil {
		health.RegisterCheck(handlers.NewFuncCheck("database", func(ctx context.Context) error {
			stats := s.infra.pool.GetStats()
			s.collector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
			return s.infra.pool.Ping(ctx)
		}))
	}
	if s.infra.redis != nil {
		health.RegisterCheck(handlers.NewFuncCheck("redis", s.infra.redis.Ping))
	}
	health.SetDetails(func() map[string]any {
		details := map[string]any{"active_rooms": len(s.supervisor.ActiveRooms())}
		if states := s.resolver.BreakerStates(); len(states) > 0 {
			details["provider_circuits"] = states
		}
		return details
	})

	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewRoomHandler(s.supervisor, s.collector, s.logger).WithIdempotency(s.idem).Register(mux)
	handlers.NewWSHandler(s.supervisor, s.bus, s.collector, s.cfg.Server.CORSAllowedOrigins, s.logger).Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	s.httpManager = server.NewManager(s.routes(ctx), server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	// 关闭时结束所有观察者连接
	s.httpManager.OnShutdown(s.bus.Close)
	return s.httpManager.Start()
}

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		if err := s.httpManager.WaitForShutdown(context.Background()); err != nil {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}
	s.Shutdown()
}

// Shutdown 按依赖顺序关闭：先停止接收请求，再等待进行中的对话收尾，最后释放连接
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. 关闭 HTTP 服务器（同时断开 WebSocket 观察者）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 停止所有房间并等待当前轮次结束
	if s.supervisor != nil {
		if err := s.supervisor.Shutdown(ctx); err != nil {
			s.logger.Error("conversation shutdown error", zap.Error(err))
		}
	}

	// 3. 停止后台任务
	if s.backgroundCancel != nil {
		s.backgroundCancel()
		if err := s.background.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("background task error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 释放存储连接
	if s.idemMemory != nil {
		s.idemMemory.Close()
	}
	if s.infra != nil {
		if err := s.infra.Close(); err != nil {
			s.logger.Error("store shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
