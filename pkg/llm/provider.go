// Package llm provides clients for interacting with Large Language Models
// behind a provider abstraction (local Ollama-style or cloud OpenAI-compatible).
package llm

import (
	"context"
	"fmt"
	"strings"

	"ai-assist-go/internal/config"
)

// Kind 标识 LLM 提供方类型。
type Kind string

const (
	KindLocal Kind = "local"
	KindCloud Kind = "cloud"
)

// ParseKind 将字符串解析为合法的提供方类型，大小写与首尾空白不敏感。
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLocal:
		return KindLocal, nil
	case KindCloud:
		return KindCloud, nil
	default:
		return "", fmt.Errorf("unknown llm provider %q", s)
	}
}

// Provider 是 LLM 提供方的统一接口。
// GenerateAnswer 一次性返回完整文本，失败返回错误而不是部分结果。
type Provider interface {
	Initialize(ctx context.Context) error
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
	Close() error
}

// NewProvider 按类型构造提供方实例。
func NewProvider(kind Kind, cfg config.LLMConfig) (Provider, error) {
	switch kind {
	case KindLocal:
		return newLocalProvider(cfg.Local, cfg.Generation), nil
	case KindCloud:
		return newCloudProvider(cfg.Cloud, cfg.Generation), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", kind)
	}
}
