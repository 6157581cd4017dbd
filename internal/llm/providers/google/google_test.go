package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := &Provider{baseURL: server.URL}
	if err := p.Initialize(map[string]string{
		"api_key":  "test-key",
		"base_url": server.URL,
	}); err != nil {
		t.Fatalf("初始化提供者失败: %v", err)
	}
	return p, server
}

func TestInitializeRequiresAPIKey(t *testing.T) {
	p := &Provider{}
	if err := p.Initialize(map[string]string{}); err == nil {
		t.Fatal("缺少api_key时必须返回错误")
	}
}

func TestCompleteText(t *testing.T) {
	var captured map[string]interface{}

	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("请求路径不正确: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("API密钥未附加到请求")
		}
		json.NewDecoder(r.Body).Decode(&captured)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content": map[string]interface{}{
						"parts": []map[string]string{{"text": "Hello "}, {"text": "world"}},
					},
					"finishReason": "STOP",
					"groundingMetadata": map[string]interface{}{
						"groundingChunks": []map[string]interface{}{
							{"web": map[string]string{"uri": "https://example.com", "title": "Example"}},
						},
					},
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     10,
				"candidatesTokenCount": 20,
				"totalTokenCount":      30,
			},
		})
	})

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{
		Prompt:       "Say hello",
		SystemPrompt: "Be brief",
		History: []llm.ChatTurn{
			{Role: "user", Text: "earlier"},
			{Role: "model", Text: "reply"},
		},
		EnableSearch: true,
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}

	if resp.Text != "Hello world" {
		t.Errorf("多段文本应拼接, 实际 %q", resp.Text)
	}
	if resp.TokensUsed != 30 || resp.PromptTokens != 10 || resp.OutputTokens != 20 {
		t.Errorf("token统计不正确: %+v", resp)
	}
	if len(resp.GroundingChunks) != 1 || resp.GroundingChunks[0].Web.URI != "https://example.com" {
		t.Error("引用元数据未解析")
	}

	// 请求体结构检查
	contents, ok := captured["contents"].([]interface{})
	if !ok || len(contents) != 3 {
		t.Fatalf("contents应包含2条历史加1条当前输入, 实际 %v", captured["contents"])
	}
	if _, ok := captured["systemInstruction"]; !ok {
		t.Error("systemInstruction未传递")
	}
	tools, ok := captured["tools"].([]interface{})
	if !ok || len(tools) != 1 {
		t.Fatal("启用搜索时必须携带tools")
	}
	if _, ok := tools[0].(map[string]interface{})["google_search"]; !ok {
		t.Error("tools中缺少google_search")
	}
}

func TestCompleteTextOmitsSearchWhenDisabled(t *testing.T) {
	var captured map[string]interface{}

	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": "ok"}}}},
			},
		})
	})

	if _, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if _, ok := captured["tools"]; ok {
		t.Error("未启用搜索时不应携带tools")
	}
}

func TestCompleteTextAPIError(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "API key invalid"},
		})
	})

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("非200响应必须返回错误")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "API key invalid") {
		t.Errorf("错误消息应包含状态码和上游消息: %v", err)
	}
}

func TestGenerateImage(t *testing.T) {
	imageData := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":predict") {
			t.Errorf("请求路径不正确: %s", r.URL.Path)
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		params, _ := body["parameters"].(map[string]interface{})
		if params["sampleCount"].(float64) != 1 {
			t.Error("sampleCount必须固定为1")
		}
		if params["aspectRatio"] != "16:9" {
			t.Errorf("aspectRatio不正确: %v", params["aspectRatio"])
		}
		if params["outputMimeType"] != "image/jpeg" {
			t.Errorf("outputMimeType不正确: %v", params["outputMimeType"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"predictions": []map[string]string{
				{
					"bytesBase64Encoded": base64.StdEncoding.EncodeToString(imageData),
					"mimeType":           "image/jpeg",
				},
			},
		})
	})

	resp, err := p.GenerateImage(context.Background(), llm.ImageRequest{
		Prompt:      "a black hole",
		AspectRatio: "16:9",
		MimeType:    "image/jpeg",
	})
	if err != nil {
		t.Fatalf("生成图像失败: %v", err)
	}
	if string(resp.Data) != string(imageData) {
		t.Error("图像数据解码不正确")
	}
	if resp.MimeType != "image/jpeg" {
		t.Errorf("MIME类型不正确: %s", resp.MimeType)
	}
}

func TestGenerateImageEmptyPredictions(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"predictions": []interface{}{}})
	})

	if _, err := p.GenerateImage(context.Background(), llm.ImageRequest{Prompt: "x"}); err == nil {
		t.Fatal("空predictions必须返回错误")
	}
}

func TestProviderRegistered(t *testing.T) {
	if _, err := llm.GetProvider("google", map[string]string{"api_key": "k"}); err != nil {
		t.Fatalf("google提供者应已注册: %v", err)
	}
}
