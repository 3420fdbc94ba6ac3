// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ecoadvisor-go/internal/config"
	"ecoadvisor-go/internal/handler"
	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/internal/repository"
	"ecoadvisor-go/internal/service"
	"ecoadvisor-go/pkg/ecoapi"
	"ecoadvisor-go/pkg/log"
	"ecoadvisor-go/pkg/telemetry"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(log.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化链路追踪
	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.Telemetry, cfg.Log.OutputPath)
	if err != nil {
		log.Error("链路追踪初始化失败，继续运行", err)
	}
	defer shutdownTelemetry()

	// 4. 初始化本地回退存储
	cache, err := repository.NewConversationCache(cfg.Store)
	if err != nil {
		log.Fatal("本地存储初始化失败", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Error("关闭本地存储失败", err)
		}
	}()

	// 5. 初始化远端客户端与 Service (依赖注入)
	policy, err := service.ParseTiePolicy(cfg.Sync.TiePolicy)
	if err != nil {
		log.Fatal("sync.tie_policy 配置无效", err)
	}
	apiClient := ecoapi.NewClient(cfg.RemoteAPI)
	conversationService := service.NewConversationService(apiClient, cache, policy)
	chatService := service.NewChatService(apiClient, conversationService)
	uploadService := service.NewUploadService(apiClient, cfg.Upload)

	// 6. 启动时同步对话列表；远端不可达时使用本地状态
	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*cfg.RemoteAPI.Timeout)
	if err := conversationService.Refresh(startCtx); err != nil {
		log.Warnf("启动同步失败，使用本地状态: %v", err)
	}
	if _, err := conversationService.EnsureCurrent(startCtx); err != nil {
		log.Warnf("无法准备当前对话: %v", err)
	}
	cancelStart()

	// 7. 初始化导入 seed 目录：上传全部文件后触发知识库处理
	initCtx, cancelInit := context.WithCancel(context.Background())
	defer cancelInit()
	go initSeedFiles(initCtx, cfg.Seed.Dir, uploadService)

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Services{
		Conversations: conversationService,
		Chat:          chatService,
		Upload:        uploadService,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// initSeedFiles 选择目录下的所有文件，整批上传后触发知识库处理。
func initSeedFiles(ctx context.Context, dir string, uploadSvc service.UploadService) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	count := 0
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.Size() == 0 {
			log.Infof("initSeedFiles: 空文件跳过: %s", path)
			return nil
		}
		uploadSvc.Select(info.Name(), model.PathSource(path))
		count++
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
	if count == 0 {
		return
	}

	if _, err := uploadSvc.UploadAll(ctx); err != nil {
		log.Warnf("initSeedFiles: 上传失败: %v", err)
		return
	}
	names, err := uploadSvc.Process(ctx)
	if err != nil {
		log.Warnf("initSeedFiles: 知识库处理失败: %v", err)
		return
	}
	log.Infof("initSeedFiles: 导入完成并已触发知识库处理: %v", names)
}
