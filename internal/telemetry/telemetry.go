package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/config"
)

const serviceNamespace = "agentroom"

// 埋点作用域名称
const (
	ScopeConversation = "github.com/BaSui01/agentroom/agent/conversation"
	ScopeHTTP         = "github.com/BaSui01/agentroom/http"
)

// 部署形态相关的 resource 属性键
const (
	AttrStoreType       = attribute.Key("agentroom.store.type")
	AttrEventRelay      = attribute.Key("agentroom.events.redis_relay")
	AttrDefaultProvider = attribute.Key("agentroom.llm.default_provider")
)

// Deployment 描述当前实例的部署形态，写入 OTel resource.
type Deployment struct {
	Version         string
	StoreType       string
	RedisEvents     bool
	DefaultProvider string
}

// DeploymentFrom 从全局配置提取部署形态
func DeploymentFrom(cfg *config.Config, version string) Deployment {
	return Deployment{
		Version:         version,
		StoreType:       cfg.Store.Type,
		RedisEvents:     cfg.Store.RedisEvents,
		DefaultProvider: cfg.LLM.DefaultProvider,
	}
}

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider.
// 遥测关闭时两者为 nil，Shutdown 为空操作。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 按配置安装全局 tracer/meter provider.
// 关闭时不连接任何外部服务，编排器与中间件拿到的都是 noop 实现。
func Init(ctx context.Context, cfg config.TelemetryConfig, dep Deployment, logger *zap.Logger) (*Providers, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	res, err := newResource(ctx, cfg.ServiceName, dep)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	rate := clampRate(cfg.SampleRate)
	// 入站请求已采样时沿用上游决定
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("store", dep.StoreType),
		zap.Float64("sample_rate", rate),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

func newResource(ctx context.Context, serviceName string, dep Deployment) (*resource.Resource, error) {
	version := dep.Version
	if version == "" {
		version = buildVersion()
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
		semconv.ServiceNamespaceKey.String(serviceNamespace),
		AttrEventRelay.Bool(dep.RedisEvents),
	}
	if dep.StoreType != "" {
		attrs = append(attrs, AttrStoreType.String(dep.StoreType))
	}
	if dep.DefaultProvider != "" {
		attrs = append(attrs, AttrDefaultProvider.String(dep.DefaultProvider))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

// Tracer 返回指定作用域的全局 tracer
func Tracer(scope string) trace.Tracer { return otel.Tracer(scope) }

// Meter 返回指定作用域的全局 meter
func Meter(scope string) metric.Meter { return otel.Meter(scope) }

// Shutdown 刷新未导出的 span 与指标并关闭导出器，nil 与 noop 均可安全调用.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func clampRate(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// buildVersion 读取模块构建信息，取不到时为 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
