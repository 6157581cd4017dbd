package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/errors"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/models"
)

// fakeGateway 可控的脚本网关
type fakeGateway struct {
	mu           sync.Mutex
	scriptResult *ScriptGenerationResult
	scriptErr    error
	scriptGate   chan struct{} // 非nil时脚本调用阻塞于此
	imageGate    chan struct{} // 非nil时图像调用阻塞于此
	imageErrFor  map[string]error
	imageCalls   []string
}

func (g *fakeGateway) GenerateScript(ctx context.Context, topic, language string, numScenes int, questions string) (*ScriptGenerationResult, error) {
	if g.scriptGate != nil {
		<-g.scriptGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scriptErr != nil {
		return nil, g.scriptErr
	}
	return g.scriptResult, nil
}

func (g *fakeGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if g.imageGate != nil {
		<-g.imageGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.imageCalls = append(g.imageCalls, prompt)
	if err, ok := g.imageErrFor[prompt]; ok {
		return "", err
	}
	return "data:image/jpeg;base64,TEST_" + prompt, nil
}

func (g *fakeGateway) imageCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.imageCalls)
}

// recordingNotifier 收集广播事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyStudioEvent(event string, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func scriptWithScenes(n int) *ScriptGenerationResult {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{
			Title:        fmt.Sprintf("Scene %d", i+1),
			Script:       "Narration.",
			VisualPrompt: fmt.Sprintf("visual-%d", i),
		}
	}
	return &ScriptGenerationResult{
		Script: &models.ScriptData{Title: "Test Video", Scenes: scenes},
	}
}

// waitForCompletion 轮询直到所有符合条件的场景完成图像尝试
func waitForCompletion(t *testing.T, s *StudioService) models.GenerationSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot := s.Snapshot()
		if snapshot.CompletedImages == snapshot.EligibleScenes {
			return snapshot
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("等待图像完成超时")
	return models.GenerationSnapshot{}
}

func newFastStudio(gateway *fakeGateway, notifier StudioNotifier) *StudioService {
	s := NewStudioService(gateway, notifier)
	// 测试中不需要节流
	s.imageLimiter.SetLimit(1e6)
	return s
}

func TestGenerateScriptValidation(t *testing.T) {
	s := newFastStudio(&fakeGateway{}, nil)

	t.Run("空主题被拒绝", func(t *testing.T) {
		_, err := s.GenerateScript(context.Background(), GenerateScriptRequest{Topic: "  ", Language: "English"})
		if !apperrors.IsValidationError(err) {
			t.Errorf("期望校验错误, 实际 %v", err)
		}
	})

	t.Run("不支持的语言被拒绝", func(t *testing.T) {
		_, err := s.GenerateScript(context.Background(), GenerateScriptRequest{Topic: "Black Holes", Language: "Klingon"})
		if !apperrors.IsValidationError(err) {
			t.Errorf("期望校验错误, 实际 %v", err)
		}
	})
}

func TestGenerateScriptImageFanout(t *testing.T) {
	t.Run("只为前5个场景生成图像", func(t *testing.T) {
		gateway := &fakeGateway{scriptResult: scriptWithScenes(7)}
		s := newFastStudio(gateway, nil)

		snapshot, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
			Topic: "Black Holes", Language: "English", NumScenes: 7,
		})
		if err != nil {
			t.Fatalf("生成失败: %v", err)
		}
		if snapshot.EligibleScenes != MaxVisualScenes {
			t.Errorf("期望符合条件场景数 %d, 实际 %d", MaxVisualScenes, snapshot.EligibleScenes)
		}

		final := waitForCompletion(t, s)
		if len(final.Images) != MaxVisualScenes {
			t.Errorf("期望 %d 张图像, 实际 %d", MaxVisualScenes, len(final.Images))
		}
		if gateway.imageCallCount() != MaxVisualScenes {
			t.Errorf("期望 %d 次图像调用, 实际 %d", MaxVisualScenes, gateway.imageCallCount())
		}
		if !final.ExportReady {
			t.Error("全部完成后导出应就绪")
		}
	})

	t.Run("场景数少于5时全部生成", func(t *testing.T) {
		gateway := &fakeGateway{scriptResult: scriptWithScenes(3)}
		s := newFastStudio(gateway, nil)

		if _, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
			Topic: "Black Holes", Language: "English", NumScenes: 5,
		}); err != nil {
			t.Fatalf("生成失败: %v", err)
		}

		final := waitForCompletion(t, s)
		if final.EligibleScenes != 3 || len(final.Images) != 3 {
			t.Errorf("期望3张图像, 实际 eligible=%d images=%d", final.EligibleScenes, len(final.Images))
		}
	})

	t.Run("单场景失败不影响其他场景", func(t *testing.T) {
		gateway := &fakeGateway{
			scriptResult: scriptWithScenes(3),
			imageErrFor:  map[string]error{"visual-1": fmt.Errorf("upstream error")},
		}
		notifier := &recordingNotifier{}
		s := newFastStudio(gateway, notifier)

		if _, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
			Topic: "Black Holes", Language: "English",
		}); err != nil {
			t.Fatalf("生成失败: %v", err)
		}

		final := waitForCompletion(t, s)
		if len(final.Images) != 2 {
			t.Errorf("期望2张成功图像, 实际 %d", len(final.Images))
		}
		if final.ImageErrors[1] != MsgSceneImageFailed {
			t.Errorf("失败场景应记录占位消息, 实际 %q", final.ImageErrors[1])
		}
		if !final.ExportReady {
			t.Error("失败的尝试也计入完成, 导出应就绪")
		}
		if !notifier.has("image_failed") || !notifier.has("export_ready") {
			t.Error("缺少image_failed或export_ready事件")
		}
	})

	t.Run("空视觉提示词算一次已完成的尝试", func(t *testing.T) {
		result := scriptWithScenes(2)
		result.Script.Scenes[0].VisualPrompt = ""
		gateway := &fakeGateway{scriptResult: result}
		s := newFastStudio(gateway, nil)

		if _, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
			Topic: "Black Holes", Language: "English",
		}); err != nil {
			t.Fatalf("生成失败: %v", err)
		}

		final := waitForCompletion(t, s)
		if final.ImageErrors[0] != MsgSceneNoVisual {
			t.Errorf("空提示词应记录专用消息, 实际 %q", final.ImageErrors[0])
		}
		if gateway.imageCallCount() != 1 {
			t.Errorf("空提示词不应触发网关调用, 实际调用 %d 次", gateway.imageCallCount())
		}
	})
}

func TestGenerateScriptPendingGuard(t *testing.T) {
	gateway := &fakeGateway{
		scriptResult: scriptWithScenes(1),
		scriptGate:   make(chan struct{}),
	}
	s := newFastStudio(gateway, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
			Topic: "Black Holes", Language: "English",
		})
		done <- err
	}()

	// 等待第一次生成进入pending状态
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().Status == models.GenerationPending {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
		Topic: "Another Topic", Language: "English",
	})
	if !apperrors.IsConflictError(err) {
		t.Errorf("进行中的生成应拒绝重复提交, 实际 %v", err)
	}

	close(gateway.scriptGate)
	if err := <-done; err != nil {
		t.Fatalf("第一次生成失败: %v", err)
	}
	waitForCompletion(t, s)
}

func TestGenerateScriptFailureState(t *testing.T) {
	gateway := &fakeGateway{scriptErr: apperrors.NewRequestError(MsgScriptRequestFailed, fmt.Errorf("down"))}
	s := newFastStudio(gateway, nil)

	_, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
		Topic: "Black Holes", Language: "English",
	})
	if !apperrors.IsRequestError(err) {
		t.Fatalf("期望请求错误, 实际 %v", err)
	}

	snapshot := s.Snapshot()
	if snapshot.Status != models.GenerationFailed {
		t.Errorf("失败后状态应为failed, 实际 %s", snapshot.Status)
	}
	if !strings.Contains(snapshot.Error, MsgScriptRequestFailed) {
		t.Errorf("快照应携带用户可读错误, 实际 %q", snapshot.Error)
	}
}

func TestStaleGenerationDiscarded(t *testing.T) {
	// 第一次生成的图像调用被阻塞，期间发起第二次生成。
	// 第一次的结果返回时生成标记已失效，必须被丢弃。
	imageGate := make(chan struct{})
	gateway := &fakeGateway{
		scriptResult: scriptWithScenes(1),
		imageGate:    imageGate,
	}
	s := newFastStudio(gateway, nil)

	if _, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
		Topic: "First", Language: "English",
	}); err != nil {
		t.Fatalf("第一次生成失败: %v", err)
	}
	firstID := s.Snapshot().GenerationID

	// 第二次生成使用不同的脚本，并解除图像阻塞
	gateway.mu.Lock()
	gateway.scriptResult = scriptWithScenes(2)
	gateway.mu.Unlock()

	if _, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
		Topic: "Second", Language: "English",
	}); err != nil {
		t.Fatalf("第二次生成失败: %v", err)
	}
	secondID := s.Snapshot().GenerationID
	if firstID == secondID {
		t.Fatal("两次生成必须有不同的标记")
	}

	close(imageGate)
	final := waitForCompletion(t, s)

	if final.GenerationID != secondID {
		t.Errorf("快照应属于第二次生成, 实际 %s", final.GenerationID)
	}
	if final.EligibleScenes != 2 {
		t.Errorf("第二次生成有2个场景, 实际 eligible=%d", final.EligibleScenes)
	}
	// 给第一次生成的迟到结果留出被处理的时间
	time.Sleep(50 * time.Millisecond)
	snapshot := s.Snapshot()
	if snapshot.CompletedImages > snapshot.EligibleScenes {
		t.Errorf("过期结果污染了计数器: completed=%d eligible=%d",
			snapshot.CompletedImages, snapshot.EligibleScenes)
	}
}

func TestExportState(t *testing.T) {
	t.Run("未生成时拒绝导出", func(t *testing.T) {
		s := newFastStudio(&fakeGateway{}, nil)
		if _, _, err := s.ExportState(); !apperrors.IsValidationError(err) {
			t.Errorf("期望校验错误, 实际 %v", err)
		}
	})

	t.Run("图像未完成时拒绝导出", func(t *testing.T) {
		imageGate := make(chan struct{})
		gateway := &fakeGateway{scriptResult: scriptWithScenes(1), imageGate: imageGate}
		s := newFastStudio(gateway, nil)

		if _, err := s.GenerateScript(context.Background(), GenerateScriptRequest{
			Topic: "Black Holes", Language: "English",
		}); err != nil {
			t.Fatalf("生成失败: %v", err)
		}

		if _, _, err := s.ExportState(); !apperrors.IsConflictError(err) {
			t.Errorf("图像未齐时应返回冲突错误, 实际 %v", err)
		}

		close(imageGate)
		waitForCompletion(t, s)

		script, images, err := s.ExportState()
		if err != nil {
			t.Fatalf("完成后导出失败: %v", err)
		}
		if script.Title != "Test Video" || len(images) != 1 {
			t.Errorf("导出数据不完整: title=%q images=%d", script.Title, len(images))
		}
	})
}
