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

// localProvider 调用 Ollama 风格的本地推理服务。
type localProvider struct {
	cfg    config.LocalLLMConfig
	gen    config.LLMGenerationConfig
	client *http.Client
}

func newLocalProvider(cfg config.LocalLLMConfig, gen config.LLMGenerationConfig) *localProvider {
	return &localProvider{
		cfg:    cfg,
		gen:    gen,
		client: &http.Client{},
	}
}

// Initialize 探测本地服务是否可达。
func (p *localProvider) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("local llm unreachable at %s: %w", p.cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local llm probe returned status %s", resp.Status)
	}

	log.Infof("[LLM] 本地模型服务已就绪, model: %s", p.cfg.Model)
	return nil
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// GenerateAnswer 调用 /api/generate 获取完整生成结果。
func (p *localProvider) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	options := map[string]interface{}{}
	if p.gen.Temperature != 0 {
		options["temperature"] = p.gen.Temperature
	}
	if p.gen.TopP != 0 {
		options["top_p"] = p.gen.TopP
	}
	if p.gen.MaxTokens != 0 {
		options["num_predict"] = p.gen.MaxTokens
	}

	reqBody := generateRequest{
		Model:   p.cfg.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/api/generate", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call local llm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("local llm returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	return genResp.Response, nil
}

// Close 释放空闲连接。
func (p *localProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
