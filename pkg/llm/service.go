package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ai-assist-go/internal/config"
	"ai-assist-go/pkg/errs"
	"ai-assist-go/pkg/log"
)

// Service 管理已注册的 LLM 提供方，并持有进程级默认选择。
// 默认选择由读写锁保护；问答路径只读取一次后在请求内使用局部绑定，
// 切换默认提供方不影响进行中的请求。
type Service struct {
	mu          sync.RWMutex
	current     Kind
	providers   map[Kind]Provider
	initialized map[Kind]bool
}

// NewService 用已构造好的提供方集合创建注册表，def 为默认提供方。
func NewService(providers map[Kind]Provider, def Kind) *Service {
	return &Service{
		current:     def,
		providers:   providers,
		initialized: make(map[Kind]bool),
	}
}

// NewServiceFromConfig 根据配置构造本地与云端两个提供方。
func NewServiceFromConfig(cfg config.LLMConfig) (*Service, error) {
	def, err := ParseKind(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}

	providers := make(map[Kind]Provider)
	for _, kind := range []Kind{KindLocal, KindCloud} {
		p, err := NewProvider(kind, cfg)
		if err != nil {
			return nil, err
		}
		providers[kind] = p
	}
	return NewService(providers, def), nil
}

// Initialize 初始化所有提供方。单个提供方失败只告警并跳过，
// 但默认提供方必须初始化成功。
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, p := range s.providers {
		if err := p.Initialize(ctx); err != nil {
			log.Warnf("[LLM] 提供方 %s 初始化失败: %v", kind, err)
			continue
		}
		s.initialized[kind] = true
	}

	if !s.initialized[s.current] {
		return fmt.Errorf("%w: default llm provider %q failed to initialize", errs.ErrConfiguration, s.current)
	}
	return nil
}

// Provider 解析提供方偏好为可用实例。kind 为空串时返回当前默认。
// 目标未注册或未初始化时返回 ErrConfiguration。
func (s *Service) Provider(kind Kind) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if kind == "" {
		kind = s.current
	}
	p, ok := s.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: llm provider %q is not registered", errs.ErrConfiguration, kind)
	}
	if !s.initialized[kind] {
		return nil, fmt.Errorf("%w: llm provider %q is not initialized", errs.ErrConfiguration, kind)
	}
	return p, nil
}

// Current 返回当前默认提供方类型。
func (s *Service) Current() Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SwitchProvider 切换默认提供方。目标必须已注册且初始化成功，
// 否则返回 ErrConfiguration 并保持原默认不变。
func (s *Service) SwitchProvider(kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[kind]; !ok {
		return fmt.Errorf("%w: llm provider %q is not registered", errs.ErrConfiguration, kind)
	}
	if !s.initialized[kind] {
		return fmt.Errorf("%w: llm provider %q is not initialized", errs.ErrConfiguration, kind)
	}

	s.current = kind
	log.Infof("[LLM] 默认提供方已切换为 %s", kind)
	return nil
}

// GenerateAnswer 使用当前默认提供方生成回答。
func (s *Service) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	p, err := s.Provider("")
	if err != nil {
		return "", err
	}
	return p.GenerateAnswer(ctx, prompt)
}

// dbQuestionPrompt 是判断问题是否需要查询数据库的少样本分类提示。
const dbQuestionPrompt = `Determine if the following question requires querying a relational database to answer. Respond with only "true" or "false".

Examples:
Question: Show me all clients from New York
Answer: true
Question: How many orders were placed last month?
Answer: true
Question: What is the capital of France?
Answer: false
Question: Summarize the attached document
Answer: false

Question: %s
Answer:`

// IsDBQuestion 用一次分类调用判断问题是否为数据库问题。
// 分类只是门控：任何调用失败都按 false 处理，让问答继续走其他证据分支。
func (s *Service) IsDBQuestion(ctx context.Context, p Provider, question string) bool {
	answer, err := p.GenerateAnswer(ctx, fmt.Sprintf(dbQuestionPrompt, question))
	if err != nil {
		log.Warnf("[LLM] 数据库问题分类调用失败, 按非数据库问题处理: %v", err)
		return false
	}
	return strings.Contains(strings.ToLower(answer), "true")
}

// Close 关闭所有提供方。
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, p := range s.providers {
		if err := p.Close(); err != nil {
			log.Warnf("[LLM] 关闭提供方 %s 失败: %v", kind, err)
		}
		s.initialized[kind] = false
	}
}
