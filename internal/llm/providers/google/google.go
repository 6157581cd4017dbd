// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/llm"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
			},
			baseURL: "https://generativelanguage.googleapis.com/v1beta",
		}
	})
}

type Provider struct {
	apiKey            string
	baseURL           string
	client            *http.Client
	defaultModel      string
	defaultImageModel string
	models            []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 120 * time.Second}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.5-flash"
	}

	if model, exists := config["image_model"]; exists && model != "" {
		p.defaultImageModel = model
	} else {
		p.defaultImageModel = "imagen-4.0-generate-001"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	// 构建Gemini请求：历史回合在前，当前用户输入在后
	contents := make([]map[string]interface{}, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, map[string]interface{}{
			"role":  turn.Role,
			"parts": []map[string]string{{"text": turn.Text}},
		})
	}
	contents = append(contents, map[string]interface{}{
		"role":  "user",
		"parts": []map[string]string{{"text": req.Prompt}},
	})

	requestBody := map[string]interface{}{
		"contents": contents,
		"generationConfig": map[string]interface{}{
			"temperature": req.Temperature,
		},
	}

	if req.SystemPrompt != "" {
		requestBody["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": req.SystemPrompt}},
		}
	}

	if req.MaxTokens > 0 {
		requestBody["generationConfig"].(map[string]interface{})["maxOutputTokens"] = req.MaxTokens
	}

	// 搜索增强：服务端可结合实时检索结果作答，并返回引用元数据
	if req.EnableSearch {
		requestBody["tools"] = []map[string]interface{}{
			{"google_search": map[string]interface{}{}},
		}
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.apiError(httpResp)
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason      string `json:"finishReason"`
			GroundingMetadata struct {
				GroundingChunks []struct {
					Web *struct {
						URI   string `json:"uri"`
						Title string `json:"title"`
					} `json:"web"`
				} `json:"groundingChunks"`
			} `json:"groundingMetadata"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	if len(response.Candidates) == 0 {
		return nil, errors.New("google gemini未返回任何结果")
	}

	candidate := response.Candidates[0]

	var resultText string
	for _, part := range candidate.Content.Parts {
		resultText += part.Text
	}

	var chunks []llm.GroundingChunk
	for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
		entry := llm.GroundingChunk{}
		if chunk.Web != nil {
			entry.Web = &llm.GroundingChunkWeb{URI: chunk.Web.URI, Title: chunk.Web.Title}
		}
		chunks = append(chunks, entry)
	}

	return &llm.CompletionResponse{
		Text:            resultText,
		FinishReason:    candidate.FinishReason,
		TokensUsed:      response.UsageMetadata.TotalTokenCount,
		PromptTokens:    response.UsageMetadata.PromptTokenCount,
		OutputTokens:    response.UsageMetadata.CandidatesTokenCount,
		ModelName:       model,
		ProviderName:    p.GetName(),
		GroundingChunks: chunks,
	}, nil
}

// GenerateImage 调用Imagen的predict接口，固定请求一张图
func (p *Provider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultImageModel
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	parameters := map[string]interface{}{
		"sampleCount":    1,
		"outputMimeType": mimeType,
	}
	if req.AspectRatio != "" {
		parameters["aspectRatio"] = req.AspectRatio
	}

	requestBody := map[string]interface{}{
		"instances":  []map[string]string{{"prompt": req.Prompt}},
		"parameters": parameters,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:predict?key=%s", p.baseURL, model, p.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.apiError(httpResp)
	}

	var response struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	if len(response.Predictions) == 0 {
		return nil, errors.New("google imagen未返回任何图像")
	}

	prediction := response.Predictions[0]

	data, err := base64.StdEncoding.DecodeString(prediction.BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("解码图像数据失败: %w", err)
	}

	if prediction.MimeType != "" {
		mimeType = prediction.MimeType
	}

	return &llm.ImageResponse{
		Data:      data,
		MimeType:  mimeType,
		ModelName: model,
	}, nil
}

// apiError 将非200响应转换为可读错误
func (p *Provider) apiError(httpResp *http.Response) error {
	body, _ := io.ReadAll(httpResp.Body)

	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if errorObj, ok := errorResp["error"].(map[string]interface{}); ok {
			return fmt.Errorf("google gemini API错误(%d): %v",
				httpResp.StatusCode, errorObj["message"])
		}
	}
	return fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, string(body))
}
