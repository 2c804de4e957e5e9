package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ai-assist-go/internal/config"
	"ai-assist-go/pkg/log"
)

// cloudProvider 调用 OpenAI 兼容的云端推理服务。
type cloudProvider struct {
	cfg    config.CloudLLMConfig
	gen    config.LLMGenerationConfig
	client *http.Client
}

func newCloudProvider(cfg config.CloudLLMConfig, gen config.LLMGenerationConfig) *cloudProvider {
	return &cloudProvider{
		cfg:    cfg,
		gen:    gen,
		client: &http.Client{},
	}
}

// Initialize 校验配置完整性。云端接口按请求计费，这里不做探测调用。
func (p *cloudProvider) Initialize(ctx context.Context) error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("cloud llm api key is empty")
	}
	if p.cfg.BaseURL == "" {
		return fmt.Errorf("cloud llm base url is empty")
	}
	log.Infof("[LLM] 云端模型服务已配置, model: %s", p.cfg.Model)
	return nil
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateAnswer 调用 /chat/completions 获取完整生成结果。
func (p *cloudProvider) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:    p.cfg.Model,
		Messages: []Message{{Role: "user", Content: prompt}},
		Stream:   false,
	}
	// 从全局配置注入生成参数（若非零值）
	if p.gen.Temperature != 0 {
		t := p.gen.Temperature
		reqBody.Temperature = &t
	}
	if p.gen.TopP != 0 {
		tp := p.gen.TopP
		reqBody.TopP = &tp
	}
	if p.gen.MaxTokens != 0 {
		m := p.gen.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Close 释放空闲连接。
func (p *cloudProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
