// Package telemetry 初始化 OpenTelemetry 链路追踪。
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ecoadvisor-go/internal/config"
	"ecoadvisor-go/pkg/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Init 在启用时安装全局 TracerProvider，span 写入 logDir 下按大小轮转的文件。
// 返回的 shutdown 总是可以调用。
func Init(ctx context.Context, cfg config.TelemetryConfig, logDir string) (func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create resource: %w", err)
	}

	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return noop, fmt.Errorf("failed to create logs directory: %w", err)
	}
	traceFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "traces.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return noop, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Infof("链路追踪已启用，输出到 %s", traceFile.Filename)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer provider", err)
		}
		_ = traceFile.Close()
	}, nil
}
