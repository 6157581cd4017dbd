// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/api"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/config"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/di"
	_ "github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/llm/providers/google"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/services"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/storage"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/utils"
)

func main() {
	log.Println("🚀 启动 YouTube Scripter & Visualizer 服务器...")

	// 1. 加载配置，缺少API密钥时直接失败
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	log.Printf("✅ 配置加载完成，端口: %s", cfg.Port)

	// 2. 创建必要的目录
	createDirectories(cfg)
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化日志
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		log.Printf("⚠️ 初始化日志失败: %v", err)
	}

	// 4. 初始化所有服务（按依赖顺序）
	if err := initServices(cfg); err != nil {
		log.Fatalf("❌ 初始化服务失败: %v", err)
	}
	log.Println("✅ 所有服务初始化完成")

	// 定期输出指标摘要
	utils.NewAPIMetrics().StartMetricsCollection(context.Background())

	// 5. 设置路由（只获取服务，不创建）
	router, err := api.SetupRouter(cfg)
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}
	log.Println("✅ 路由设置完成")

	// 6. 启动服务器
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 访问地址: http://localhost:%s", cfg.Port)

	setupGracefulShutdown(router, cfg.Port)
}

// initServices 构建服务并注册进依赖注入容器
func initServices(cfg *config.Config) error {
	container := di.GetContainer()

	llmService, err := services.NewLLMService("google", cfg.LLMConfig())
	if err != nil {
		return err
	}
	container.Register("llm", llmService)

	hub := api.NewStudioHub()
	container.Register("hub", hub)

	studioService := services.NewStudioService(llmService, hub)
	container.Register("studio", studioService)

	chatService := services.NewChatService(llmService)
	container.Register("chat", chatService)

	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return err
	}
	container.Register("storage", fileStorage)

	exportService := services.NewExportService(studioService, fileStorage, "exports")
	container.Register("export", exportService)

	return nil
}

// 优雅关闭函数
func setupGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// 在新的 goroutine 中启动服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ 服务器强制关闭: %v", err)
	}

	log.Println("✅ 服务器优雅关闭完成")
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "exports"),
		cfg.LogDir,
		cfg.StaticDir,
		filepath.Join(cfg.StaticDir, "css"),
		filepath.Join(cfg.StaticDir, "js"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}
