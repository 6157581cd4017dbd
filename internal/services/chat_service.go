// internal/services/chat_service.go
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/models"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/utils"
)

// 聊天失败时插入对话的兜底回复
const MsgChatFallback = "Sorry, I encountered an error. Please try again."

// ChatGateway 聊天控制器依赖的网关操作
type ChatGateway interface {
	SendChatMessage(ctx context.Context, message string) (string, error)
}

// ChatService 管理页面聊天组件的对话记录。
// 发送严格串行：上一条回复未返回前，新消息不进入对话。
type ChatService struct {
	mu         sync.Mutex
	gateway    ChatGateway
	transcript []models.ChatMessage
	pending    bool
}

// NewChatService 创建聊天控制器
func NewChatService(gateway ChatGateway) *ChatService {
	return &ChatService{gateway: gateway}
}

// SendMessage 发送一条用户消息并等待回复。
// 空消息或已有消息在途时不做任何事，直接返回当前对话记录。
// 网关失败时用户消息保留在记录中，并追加一条兜底回复。
func (s *ChatService) SendMessage(ctx context.Context, text string) []models.ChatMessage {
	trimmed := strings.TrimSpace(text)

	s.mu.Lock()
	if trimmed == "" || s.pending {
		transcript := s.transcriptLocked()
		s.mu.Unlock()
		return transcript
	}
	s.pending = true
	s.transcript = append(s.transcript, models.ChatMessage{
		Sender:    models.ChatSenderUser,
		Text:      trimmed,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()

	reply, err := s.gateway.SendChatMessage(ctx, trimmed)
	if err != nil {
		utils.GetLogger().Warn("聊天回复失败", map[string]interface{}{"err": err.Error()})
		reply = MsgChatFallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, models.ChatMessage{
		Sender:    models.ChatSenderBot,
		Text:      reply,
		Timestamp: time.Now(),
	})
	s.pending = false
	return s.transcriptLocked()
}

// History 返回对话记录的副本
func (s *ChatService) History() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

// Pending 报告是否有消息在途
func (s *ChatService) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *ChatService) transcriptLocked() []models.ChatMessage {
	transcript := make([]models.ChatMessage, len(s.transcript))
	copy(transcript, s.transcript)
	return transcript
}
