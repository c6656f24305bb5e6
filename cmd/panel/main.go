package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"massdm_panel/internal/config"
	"massdm_panel/internal/logger"
	"massdm_panel/internal/server"
)

func main() {
	// 初始化logger
	logger.Init()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	// 初始化HTTP服务
	srv := server.New(cfg)

	go func() {
		logger.L().Infof("Panel listening: port=%s", cfg.Port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.L().Fatalf("Server failed: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 优雅关闭，等待在途的群发流结束
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.L().Errorf("Graceful shutdown failed: %v", err)
	}
	logger.L().Info("Panel stopped")
}
