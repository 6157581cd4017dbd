// internal/api/router.go
package api

import (
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/config"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/di"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/services"
)

// SetupRouter 配置HTTP路由。
// 服务在启动时注册进容器，这里只取用，不创建新实例。
func SetupRouter(cfg *config.Config) (*gin.Engine, error) {
	container := di.GetContainer()

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	studioService, ok := container.Get("studio").(*services.StudioService)
	if !ok {
		return nil, fmt.Errorf("演播室服务未正确初始化")
	}

	chatService, ok := container.Get("chat").(*services.ChatService)
	if !ok {
		return nil, fmt.Errorf("聊天服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	hub, ok := container.Get("hub").(*StudioHub)
	if !ok {
		return nil, fmt.Errorf("事件中心未正确初始化")
	}

	handler := NewHandler(llmService, studioService, chatService, exportService, hub)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())
	r.Use(metricsMiddleware())

	// 静态文件服务
	r.Static("/static", cfg.StaticDir)

	// HTML模板
	r.LoadHTMLGlob(filepath.Join(cfg.TemplatesDir, "*.html"))

	// ===============================
	// 页面路由
	// ===============================
	r.GET("/", handler.IndexPage)

	// WebSocket 支持
	r.GET("/ws/studio", handler.StudioWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		// 脚本生成相关路由
		scriptGroup := api.Group("/script")
		{
			scriptGroup.POST("/generate", GenerationRateLimit(), handler.GenerateScript)
			scriptGroup.GET("/state", handler.GetScriptState)
		}

		// 聊天相关路由
		chatGroup := api.Group("/chat")
		{
			chatGroup.POST("", ChatRateLimit(), handler.Chat)
			chatGroup.GET("/history", handler.GetChatHistory)
		}

		// 导出
		api.GET("/export", handler.ExportScript)

		// LLM状态
		api.GET("/llm/status", handler.GetLLMStatus)

		// 运行指标
		api.GET("/metrics", handler.GetMetrics)

		// WebSocket 管理路由
		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}
