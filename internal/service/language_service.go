package service

import (
	"fmt"
	"net/url"
	"strings"
)

// LanguageService 负责问题语言检测与最终提示词的组装。
type LanguageService struct{}

// NewLanguageService 创建语言服务实例。
func NewLanguageService() *LanguageService {
	return &LanguageService{}
}

// IsRussian 判断文本是否包含西里尔字母（U+0410 至 U+044F）。
// URL 编码的文本先解码再检测；解码失败时在原文上检测。
func (s *LanguageService) IsRussian(text string) bool {
	decoded, err := url.QueryUnescape(text)
	if err != nil {
		decoded = text
	}
	for _, r := range decoded {
		if r >= 0x0410 && r <= 0x044F {
			return true
		}
	}
	return false
}

// FormatPrompt 根据问题语言选择俄语或英语模板组装提示词。
// 上下文按空行分段，"Database Results:" 段落会被改写为条目列表。
func (s *LanguageService) FormatPrompt(question, context string) string {
	formatted := s.formatContext(context)

	if s.IsRussian(question) {
		return fmt.Sprintf(
			"<s>[INST] Ты русскоязычный ассистент телекоммуникационной компании. "+
				"Твоя задача - отвечать ТОЛЬКО на русском языке. "+
				"Используй ТОЛЬКО информацию из предоставленного контекста. "+
				"Вопрос: %s\n\nКонтекст: %s [/INST]</s>",
			question, formatted,
		)
	}
	return fmt.Sprintf(
		"<s>[INST] You are a helpful assistant from a telecommunication company. "+
			"Please provide a detailed answer based on the given context. "+
			"Question: %s\n\nContext: %s [/INST]</s>",
		question, formatted,
	)
}

// formatContext 逐段整理上下文，数据库结果段落转为 "- " 前缀的条目。
func (s *LanguageService) formatContext(context string) string {
	var parts []string
	for _, section := range strings.Split(context, "\n\n") {
		switch {
		case strings.HasPrefix(section, "Document Context:"):
			parts = append(parts, section)
		case strings.HasPrefix(section, "Database Results:"):
			lines := strings.Split(section, "\n")
			if len(lines) > 1 {
				parts = append(parts, "Database Results:\n- "+strings.Join(lines[1:], "\n- "))
			}
		case strings.TrimSpace(section) != "":
			parts = append(parts, section)
		}
	}
	return strings.Join(parts, "\n\n")
}
