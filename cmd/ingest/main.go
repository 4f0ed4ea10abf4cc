package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/di"
	"github.com/cavco/helpdesk-go/internal/ingest"
	"github.com/cavco/helpdesk-go/internal/logger"
)

// ingest 全量抓取Confluence空间并重建混合索引。
// 幂等：chunk id稳定，重复运行只会覆盖同id文档。
func main() {
	// .env不存在不算错误，生产环境直接用环境变量
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := logger.InitLogger(); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	container := di.InitContainer()
	if err := di.RegisterProviders(container, cfg); err != nil {
		logger.Fatal("failed to register providers", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stats *ingest.Stats
	err = di.Invoke(func(pipeline *ingest.Pipeline) error {
		var runErr error
		stats, runErr = pipeline.Run(ctx)
		return runErr
	})
	if err != nil {
		logger.Error("ingestion run aborted", zap.Error(err))
		os.Exit(1)
	}

	for _, msg := range stats.Errors {
		logger.Warn("ingestion error", zap.String("detail", msg))
	}
	if len(stats.Errors) > 0 {
		// 部分失败：索引已尽量推进，但操作者需要知道有页面缺失
		os.Exit(1)
	}
}
