// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/errors"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/llm"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/models"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/utils"
)

// 面向用户的固定错误消息，与前端提示保持一致
const (
	MsgScriptParseFailed   = "The model returned an invalid script format. Please try again."
	MsgScriptRequestFailed = "Failed to generate script. Please check your prompt and API key."
	MsgImageFailed         = "Failed to generate image."
	MsgChatFailed          = "Failed to get a response from the chatbot."
)

// 聊天助手的固定人设
const chatSystemInstruction = "You are a helpful assistant for a YouTube content creator. Answer their questions concisely and helpfully."

// SupportedLanguages 脚本生成支持的语言枚举
var SupportedLanguages = []string{"English", "Russian"}

// IsSupportedLanguage 检查语言是否在枚举内
func IsSupportedLanguage(language string) bool {
	for _, l := range SupportedLanguages {
		if l == language {
			return true
		}
	}
	return false
}

// ChatSession 单个长期聊天会话。由 LLMService 显式持有而非全局变量，
// 首次使用时创建，页面生命周期内复用同一个实例。
type ChatSession struct {
	history []llm.ChatTurn
}

// LLMService 封装对远程生成式AI服务的三类调用
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	cache         *gocache.Cache
	isReady       bool
	readyState    string

	// 聊天会话串行化：同一时刻最多一个消息在途
	chatMutex   sync.Mutex
	chatSession *ChatSession
}

// NewLLMService 根据提供者配置创建LLM服务
func NewLLMService(providerName string, providerConfig map[string]string) (*LLMService, error) {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		return nil, fmt.Errorf("初始化LLM提供者失败: %w", err)
	}

	return &LLMService{
		provider:     provider,
		providerName: providerName,
		cache:        gocache.New(30*time.Minute, 10*time.Minute),
		isReady:      true,
		readyState:   "Ready",
	}, nil
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// GetProviderName 返回当前LLM提供商名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// ScriptGenerationResult 脚本生成的完整返回：结构化脚本加引用元数据
type ScriptGenerationResult struct {
	Script          *models.ScriptData
	GroundingChunks []models.GroundingChunk
}

// GenerateScript 根据主题生成结构化视频脚本。
// questions 非空时脚本围绕问题展开，否则按 开头/主体/结尾 的叙事结构。
func (s *LLMService) GenerateScript(ctx context.Context, topic, language string, numScenes int, questions string) (*ScriptGenerationResult, error) {
	prompt := buildScriptPrompt(topic, language, numScenes, questions)

	cacheKey := s.generateCacheKey(prompt, "", "")
	if cached, found := s.cache.Get(cacheKey); found {
		if result, ok := cached.(*ScriptGenerationResult); ok {
			utils.GetLogger().Info("脚本生成缓存命中", map[string]interface{}{"cache_key_prefix": cacheKey[:8]})
			return result, nil
		}
	}

	start := time.Now()
	resp, err := s.provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		Temperature:  0.7,
		EnableSearch: true,
	})
	if err != nil {
		utils.GetMetricsCollector().IncrementCounter("script_request_failures")
		return nil, apperrors.NewRequestError(MsgScriptRequestFailed, err)
	}
	utils.NewAPIMetrics().RecordLLMRequest(s.GetProviderName(), resp.ModelName, resp.TokensUsed, time.Since(start))

	payload := ExtractJSONPayload(resp.Text)

	var script models.ScriptData
	if err := json.Unmarshal([]byte(payload), &script); err != nil {
		utils.GetMetricsCollector().IncrementCounter("script_parse_failures")
		return nil, apperrors.NewParseError(MsgScriptParseFailed, err)
	}

	chunks := make([]models.GroundingChunk, 0, len(resp.GroundingChunks))
	for _, chunk := range resp.GroundingChunks {
		entry := models.GroundingChunk{}
		if chunk.Web != nil {
			entry.Web = &models.GroundingChunkWeb{URI: chunk.Web.URI, Title: chunk.Web.Title}
		}
		chunks = append(chunks, entry)
	}

	result := &ScriptGenerationResult{Script: &script, GroundingChunks: chunks}
	s.cache.Set(cacheKey, result, gocache.DefaultExpiration)
	utils.GetMetricsCollector().IncrementCounter("scripts_generated")

	return result, nil
}

// GenerateImage 为一个视觉提示词生成单张16:9的JPEG图像，
// 返回内嵌base64数据的data URI。
func (s *LLMService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.NewValidationError("图像提示词不能为空", nil)
	}

	resp, err := s.provider.GenerateImage(ctx, llm.ImageRequest{
		Prompt:      prompt,
		AspectRatio: "16:9",
		MimeType:    "image/jpeg",
	})
	if err != nil {
		utils.GetMetricsCollector().IncrementCounter("image_failures")
		return "", apperrors.NewImageGenerationError(MsgImageFailed, err)
	}

	utils.GetMetricsCollector().IncrementCounter("images_generated")
	return fmt.Sprintf("data:%s;base64,%s", resp.MimeType, base64.StdEncoding.EncodeToString(resp.Data)), nil
}

// SendChatMessage 在持久会话中发送一条消息并返回助手回复。
// 会话首次使用时创建；失败不会重建会话，下一条消息继续使用同一会话。
func (s *LLMService) SendChatMessage(ctx context.Context, message string) (string, error) {
	s.chatMutex.Lock()
	defer s.chatMutex.Unlock()

	if s.chatSession == nil {
		s.chatSession = &ChatSession{}
	}
	session := s.chatSession

	start := time.Now()
	resp, err := s.provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       message,
		SystemPrompt: chatSystemInstruction,
		History:      session.history,
		Temperature:  0.7,
	})
	if err != nil {
		// 历史保持原样，失败的回合不计入上下文
		utils.GetMetricsCollector().IncrementCounter("chat_failures")
		return "", apperrors.NewChatError(MsgChatFailed, err)
	}

	session.history = append(session.history,
		llm.ChatTurn{Role: "user", Text: message},
		llm.ChatTurn{Role: "model", Text: resp.Text},
	)
	utils.GetMetricsCollector().IncrementCounter("chat_messages")
	utils.NewAPIMetrics().RecordLLMRequest(s.GetProviderName(), resp.ModelName, resp.TokensUsed, time.Since(start))

	return resp.Text, nil
}

// ChatHistoryLength 返回会话中已累计的回合数（测试与状态接口用）
func (s *LLMService) ChatHistoryLength() int {
	s.chatMutex.Lock()
	defer s.chatMutex.Unlock()

	if s.chatSession == nil {
		return 0
	}
	return len(s.chatSession.history)
}

// buildScriptPrompt 构建脚本生成指令
func buildScriptPrompt(topic, language string, numScenes int, questions string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a professional YouTube scriptwriter and visual director. Create a complete and engaging script for a video about "%s".
The script's language must be %s.
`, topic, language)

	if strings.TrimSpace(questions) != "" {
		fmt.Fprintf(&b, `
The script MUST be based *solely* on the answers to the following questions. Use Google Search to find accurate, up-to-date information to answer them. Structure the video script to answer these questions in a logical and engaging order, with a clear beginning, middle, and end.

Here are the questions:
%s
`, questions)
	} else {
		b.WriteString(`
The script should have a clear narrative structure with a distinct beginning (introduction), middle (elaboration of the main points), and a clear end (conclusion). It must be informative and entertaining for a general audience. Use Google Search to gather fresh and accurate information on the topic.
`)
	}

	fmt.Fprintf(&b, `
Provide exactly %d scenes, including an introduction and a conclusion.
For each scene, provide:
1. A short, engaging question as a title for the scene.
2. The narrator's script, which should be well-developed and consist of at least 3-5 substantial sentences.
3. A detailed, creative visual prompt for an AI image generator.

IMPORTANT: Your response MUST be a valid JSON object that follows this structure:
{
  "title": "A catchy and SEO-friendly title for the YouTube video.",
  "scenes": [
    {
      "title": "A short, engaging question that this scene will answer.",
      "script": "The narrator's lines for this scene. This should be engaging, informative, and well-developed, consisting of at least 3-5 substantial sentences that elaborate on the scene's topic.",
      "visual_prompt": "A concise, descriptive prompt for generating a visually stunning image to accompany this part of the script. Focus on cinematic and engaging imagery."
    }
  ]
}
Do not include any text, markdown formatting, or code blocks outside of the main JSON object.
`, numScenes)

	return b.String()
}

// 模型输出中的围栏JSON代码块
var fencedJSONPattern = regexp.MustCompile("```json\n([\\s\\S]*?)\n```")

// ExtractJSONPayload 从模型的自由文本回复中提取JSON载荷。
// 提取顺序：围栏json代码块内容；否则第一个 { 到最后一个 } 的子串；
// 两者都不命中时原样返回交给解析报错。
func ExtractJSONPayload(raw string) string {
	if match := fencedJSONPattern.FindStringSubmatch(raw); len(match) > 1 {
		return match[1]
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end != -1 && end > start {
		return raw[start : end+1]
	}

	return raw
}

// generateCacheKey 生成缓存键
func (s *LLMService) generateCacheKey(prompt, systemPrompt, model string) string {
	s.providerMutex.RLock()
	providerName := s.providerName
	s.providerMutex.RUnlock()

	hashInput := fmt.Sprintf("%s:::%s:::%s:::%s", prompt, systemPrompt, model, providerName)
	h := md5.New()
	h.Write([]byte(hashInput))
	return fmt.Sprintf("%x", h.Sum(nil))
}
