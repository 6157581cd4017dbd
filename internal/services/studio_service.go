// internal/services/studio_service.go
package services

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	apperrors "github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/errors"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/models"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/utils"
)

// MaxVisualScenes 只为前5个场景生成配图，后面的场景不尝试
const MaxVisualScenes = 5

// 场景数的允许区间，超出时收拢到边界
const (
	MinScenes = 5
	MaxScenes = 10
)

// 场景级图像失败时展示的占位消息
const (
	MsgSceneImageFailed  = "Could not generate visual for this scene."
	MsgSceneNoVisual     = "No visual prompt provided for this scene."
	MsgTopicRequired     = "Please enter a topic."
	MsgLanguageInvalid   = "The selected language is not supported."
	MsgGenerationPending = "A generation is already in progress."
	MsgExportNotReady    = "Visuals are still generating. Please wait before downloading."
	MsgNothingToExport   = "Generate a script before downloading."
)

// ScriptGateway 供控制器使用的网关操作子集
type ScriptGateway interface {
	GenerateScript(ctx context.Context, topic, language string, numScenes int, questions string) (*ScriptGenerationResult, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// StudioNotifier 向已连接页面推送生成进度事件
type StudioNotifier interface {
	NotifyStudioEvent(event string, payload map[string]interface{})
}

// GenerateScriptRequest 一次脚本生成的输入
type GenerateScriptRequest struct {
	Topic     string `json:"topic"`
	Language  string `json:"language"`
	NumScenes int    `json:"num_scenes"`
	Questions string `json:"questions"`
}

// StudioService 持有表单之外的全部页面状态：当前脚本、引用、
// 每个场景的图像结果、完成计数，并负责编排网络调用的触发时机。
type StudioService struct {
	mu       sync.Mutex
	gateway  ScriptGateway
	notifier StudioNotifier

	// 图像请求的节流与并发上限
	imageLimiter *rate.Limiter
	imageSem     *semaphore.Weighted

	status          models.GenerationStatus
	generationID    string
	script          *models.ScriptData
	citations       []models.GroundingChunk
	images          map[int]string
	imageErrors     map[int]string
	eligibleScenes  int
	completedImages int
	lastError       string
}

// NewStudioService 创建演播室控制器
func NewStudioService(gateway ScriptGateway, notifier StudioNotifier) *StudioService {
	return &StudioService{
		gateway:      gateway,
		notifier:     notifier,
		imageLimiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		imageSem:     semaphore.NewWeighted(MaxVisualScenes),
		status:       models.GenerationIdle,
		images:       make(map[int]string),
		imageErrors:  make(map[int]string),
	}
}

// GenerateScript 开始一次新的脚本生成。
// 进行中的生成未结束时拒绝重复提交；开始前整体清空上一次的
// 图像结果与引用列表，并换用新的生成标记，使迟到的旧图像结果
// 在写入时被识别并丢弃。
func (s *StudioService) GenerateScript(ctx context.Context, req GenerateScriptRequest) (*models.GenerationSnapshot, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, apperrors.NewValidationError(MsgTopicRequired, nil)
	}
	if !IsSupportedLanguage(req.Language) {
		return nil, apperrors.NewValidationError(MsgLanguageInvalid, nil)
	}

	numScenes := req.NumScenes
	if numScenes < MinScenes {
		numScenes = MinScenes
	}
	if numScenes > MaxScenes {
		numScenes = MaxScenes
	}

	s.mu.Lock()
	if s.status == models.GenerationPending {
		s.mu.Unlock()
		return nil, apperrors.NewConflictError(MsgGenerationPending, nil)
	}

	generationID := uuid.NewString()
	s.generationID = generationID
	s.status = models.GenerationPending
	s.script = nil
	s.citations = nil
	s.images = make(map[int]string)
	s.imageErrors = make(map[int]string)
	s.eligibleScenes = 0
	s.completedImages = 0
	s.lastError = ""
	s.mu.Unlock()

	result, err := s.gateway.GenerateScript(ctx, topic, req.Language, numScenes, req.Questions)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.status = models.GenerationFailed
		s.lastError = userMessage(err)
		return nil, err
	}

	s.script = result.Script
	s.citations = filterWebChunks(result.GroundingChunks)
	s.status = models.GenerationReady
	s.eligibleScenes = min(len(result.Script.Scenes), MaxVisualScenes)

	s.notify("script_ready", map[string]interface{}{
		"generation_id": generationID,
		"title":         result.Script.Title,
		"scene_count":   len(result.Script.Scenes),
	})

	// 为符合条件的场景各启动一个独立的图像生成任务。
	// 任务间无依赖，完成顺序不作保证，结果通过计数器汇聚。
	for i := 0; i < s.eligibleScenes; i++ {
		go s.generateSceneImage(generationID, i, result.Script.Scenes[i].VisualPrompt)
	}

	snapshot := s.snapshotLocked()
	return &snapshot, nil
}

// generateSceneImage 单个场景的图像生成任务
func (s *StudioService) generateSceneImage(generationID string, index int, visualPrompt string) {
	// 不支持取消：请求与页面生命周期解耦
	ctx := context.Background()

	if strings.TrimSpace(visualPrompt) == "" {
		// 没有提示词也算一次已完成的尝试，否则导出会永远等不齐
		s.recordImageResult(generationID, index, "", MsgSceneNoVisual)
		return
	}

	if err := s.imageSem.Acquire(ctx, 1); err != nil {
		s.recordImageResult(generationID, index, "", MsgSceneImageFailed)
		return
	}
	defer s.imageSem.Release(1)

	if err := s.imageLimiter.Wait(ctx); err != nil {
		s.recordImageResult(generationID, index, "", MsgSceneImageFailed)
		return
	}

	url, err := s.gateway.GenerateImage(ctx, visualPrompt)
	if err != nil {
		utils.GetLogger().Warn("场景图像生成失败", map[string]interface{}{
			"scene_index": index,
			"err":         err.Error(),
		})
		s.recordImageResult(generationID, index, "", MsgSceneImageFailed)
		return
	}

	s.recordImageResult(generationID, index, url, "")
}

// recordImageResult 记录单个场景的图像结果。
// 生成标记不匹配说明结果属于已被取代的旧生成，直接丢弃。
func (s *StudioService) recordImageResult(generationID string, index int, url, errMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generationID != s.generationID {
		utils.GetLogger().Info("丢弃过期生成的图像结果", map[string]interface{}{
			"scene_index":   index,
			"generation_id": generationID,
		})
		return
	}

	event := "image_ready"
	if errMessage != "" {
		s.imageErrors[index] = errMessage
		event = "image_failed"
	} else {
		s.images[index] = url
	}
	s.completedImages++

	payload := map[string]interface{}{
		"generation_id": generationID,
		"scene_index":   index,
		"completed":     s.completedImages,
		"eligible":      s.eligibleScenes,
	}
	if errMessage != "" {
		payload["error"] = errMessage
	} else {
		payload["image_url"] = url
	}
	s.notify(event, payload)

	if s.completedImages == s.eligibleScenes {
		s.notify("export_ready", map[string]interface{}{"generation_id": generationID})
	}
}

// Snapshot 返回当前状态的副本
func (s *StudioService) Snapshot() models.GenerationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ExportState 返回导出所需的数据；未就绪时返回错误。
// 导出在所有符合条件的场景都完成图像尝试后可用，成功与否不影响。
func (s *StudioService) ExportState() (*models.ScriptData, map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.script == nil || s.status != models.GenerationReady {
		return nil, nil, apperrors.NewValidationError(MsgNothingToExport, nil)
	}
	if s.completedImages != s.eligibleScenes {
		return nil, nil, apperrors.NewConflictError(MsgExportNotReady, nil)
	}

	images := make(map[int]string, len(s.images))
	for k, v := range s.images {
		images[k] = v
	}
	return s.script, images, nil
}

func (s *StudioService) snapshotLocked() models.GenerationSnapshot {
	images := make(map[int]string, len(s.images))
	for k, v := range s.images {
		images[k] = v
	}
	imageErrors := make(map[int]string, len(s.imageErrors))
	for k, v := range s.imageErrors {
		imageErrors[k] = v
	}

	return models.GenerationSnapshot{
		GenerationID:    s.generationID,
		Status:          s.status,
		Script:          s.script,
		Citations:       s.citations,
		Images:          images,
		ImageErrors:     imageErrors,
		EligibleScenes:  s.eligibleScenes,
		CompletedImages: s.completedImages,
		ExportReady:     s.script != nil && s.status == models.GenerationReady && s.completedImages == s.eligibleScenes,
		Error:           s.lastError,
	}
}

func (s *StudioService) notify(event string, payload map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.NotifyStudioEvent(event, payload)
	}
}

// filterWebChunks 过滤出带网页来源的引用条目
func filterWebChunks(chunks []models.GroundingChunk) []models.GroundingChunk {
	filtered := make([]models.GroundingChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Web != nil {
			filtered = append(filtered, chunk)
		}
	}
	return filtered
}

// userMessage 提取面向用户的错误消息
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.UserMessage()
	}
	return err.Error()
}
