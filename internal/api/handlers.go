// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/errors"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/services"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/utils"
)

// Handler 集中持有API处理所需的服务
type Handler struct {
	LLMService    *services.LLMService
	StudioService *services.StudioService
	ChatService   *services.ChatService
	ExportService *services.ExportService
	Hub           *StudioHub

	response *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	llmService *services.LLMService,
	studioService *services.StudioService,
	chatService *services.ChatService,
	exportService *services.ExportService,
	hub *StudioHub) *Handler {

	return &Handler{
		LLMService:    llmService,
		StudioService: studioService,
		ChatService:   chatService,
		ExportService: exportService,
		Hub:           hub,
		response:      NewResponseHelper(),
	}
}

// IndexPage 渲染主页面
func (h *Handler) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title": "YouTube Scripter & Visualizer",
	})
}

// GenerateScript 处理脚本生成请求。
// 成功时返回初始快照，图像在后台继续生成，
// 进度通过WebSocket事件和状态接口反映。
func (h *Handler) GenerateScript(c *gin.Context) {
	var req services.GenerateScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	snapshot, err := h.StudioService.GenerateScript(c.Request.Context(), req)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	h.response.Success(c, snapshot)
}

// GetScriptState 返回当前生成状态的全量快照
func (h *Handler) GetScriptState(c *gin.Context) {
	snapshot := h.StudioService.Snapshot()
	h.response.Success(c, snapshot)
}

// chatRequest 聊天请求体
type chatRequest struct {
	Message string `json:"message"`
}

// Chat 发送一条聊天消息并返回更新后的对话记录。
// 空消息或消息在途时不产生新内容，原样返回记录。
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	transcript := h.ChatService.SendMessage(c.Request.Context(), req.Message)
	h.response.Success(c, gin.H{
		"messages": transcript,
		"pending":  h.ChatService.Pending(),
	})
}

// GetChatHistory 返回当前对话记录
func (h *Handler) GetChatHistory(c *gin.Context) {
	h.response.Success(c, gin.H{
		"messages": h.ChatService.History(),
		"pending":  h.ChatService.Pending(),
	})
}

// ExportScript 生成并下载HTML导出文件
func (h *Handler) ExportScript(c *gin.Context) {
	result, err := h.ExportService.BuildExport()
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	h.response.DownloadResponse(c, result.Content, result.Filename, "text/html; charset=utf-8")
}

// GetLLMStatus 返回LLM服务就绪状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.response.Success(c, gin.H{
		"ready":    h.LLMService.IsReady(),
		"state":    h.LLMService.GetReadyState(),
		"provider": h.LLMService.GetProviderName(),
	})
}

// GetMetrics 返回运行指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.response.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// GetWebSocketStatus 返回当前WebSocket连接数
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.response.Success(c, gin.H{
		"connections": h.Hub.ClientCount(),
	})
}

// StudioWebSocket 升级为WebSocket连接，订阅生成进度事件
func (h *Handler) StudioWebSocket(c *gin.Context) {
	h.Hub.ServeWS(c.Writer, c.Request)
}

// respondAppError 按错误分类映射HTTP状态码与错误代码
func (h *Handler) respondAppError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		h.response.InternalError(c, err.Error())
		return
	}

	message := appErr.UserMessage()
	switch {
	case apperrors.IsValidationError(err):
		h.response.BadRequest(c, message)
	case apperrors.IsConflictError(err):
		h.response.Conflict(c, message)
	case apperrors.IsRequestError(err):
		h.response.BadGateway(c, ErrorScriptRequestFailed, message)
	case apperrors.IsParseError(err):
		h.response.BadGateway(c, ErrorScriptParseFailed, message)
	case apperrors.IsImageGenerationError(err):
		h.response.BadGateway(c, ErrorImageGenerationFailed, message)
	case apperrors.IsChatError(err):
		h.response.BadGateway(c, ErrorChatFailed, message)
	default:
		h.response.InternalError(c, message)
	}
}
