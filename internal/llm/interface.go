// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的AI提供者")

// ChatTurn 多轮对话中的一个回合，Role 为 "user" 或 "model"
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// 请求参数标准化
type CompletionRequest struct {
	Prompt       string     `json:"prompt"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	History      []ChatTurn `json:"history,omitempty"`
	MaxTokens    int        `json:"max_tokens,omitempty"`
	Temperature  float32    `json:"temperature,omitempty"`
	Model        string     `json:"model,omitempty"`
	EnableSearch bool       `json:"enable_search,omitempty"` // 启用搜索增强，回复可携带引用元数据
}

// GroundingChunkWeb 搜索增强引用的网页
type GroundingChunkWeb struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GroundingChunk 搜索增强引用条目，web 可能为空
type GroundingChunk struct {
	Web *GroundingChunkWeb `json:"web,omitempty"`
}

// 响应结构标准化
type CompletionResponse struct {
	Text            string           `json:"text"`
	FinishReason    string           `json:"finish_reason,omitempty"`
	TokensUsed      int              `json:"tokens_used,omitempty"`
	PromptTokens    int              `json:"prompt_tokens,omitempty"`
	OutputTokens    int              `json:"output_tokens,omitempty"`
	ModelName       string           `json:"model_name,omitempty"`
	ProviderName    string           `json:"provider_name,omitempty"`
	GroundingChunks []GroundingChunk `json:"grounding_chunks,omitempty"`
}

// ImageRequest 单张图像生成请求
type ImageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"` // 如 "16:9"
	MimeType    string `json:"mime_type,omitempty"`    // 输出编码，如 "image/jpeg"
	Model       string `json:"model,omitempty"`
}

// ImageResponse 生成的图像字节及其元数据
type ImageResponse struct {
	Data      []byte `json:"-"`
	MimeType  string `json:"mime_type"`
	ModelName string `json:"model_name,omitempty"`
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 文本生成（含多轮对话与搜索增强）
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// 文本到图像生成
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// 注册表和工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
