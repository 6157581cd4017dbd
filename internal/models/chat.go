// internal/models/chat.go
package models

import "time"

// ChatSender 聊天消息的发送方
type ChatSender string

const (
	ChatSenderUser ChatSender = "user"
	ChatSenderBot  ChatSender = "bot"
)

// ChatMessage 聊天记录中的一条消息，记录只追加不修改
type ChatMessage struct {
	Sender    ChatSender `json:"sender"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
}
