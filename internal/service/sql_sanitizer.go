package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ai-assist-go/pkg/errs"
)

// dangerousKeywords 是禁止出现在查询中的 SQL 关键字（全词匹配）。
var dangerousKeywords = []string{
	"delete", "drop", "truncate", "alter", "update", "insert", "grant",
	"revoke", "commit", "rollback", "create", "exec", "execute",
	"begin", "declare",
}

// dangerousMarkers 是禁止出现的注入标记（子串匹配）。
var dangerousMarkers = []string{"--", "xp_", "sp_"}

var (
	keywordPatterns = compileKeywordPatterns()
	hintPrefixRe    = regexp.MustCompile(`^(?:\s*/\*\+[^*]*\*/\s*)+`)
	limitRe         = regexp.MustCompile(`(?i)\blimit\b`)
	stringLiteralRe = regexp.MustCompile(`'([^']*)'`)
)

func compileKeywordPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(dangerousKeywords))
	for _, kw := range dangerousKeywords {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+kw+`\b`))
	}
	return patterns
}

// SQLSanitizer 在执行前对查询做最后一道防御性校验。
type SQLSanitizer struct {
	defaultLimit int
}

// NewSQLSanitizer 创建校验器，limit 为缺省追加的行数上限。
func NewSQLSanitizer(defaultLimit int) *SQLSanitizer {
	if defaultLimit <= 0 {
		defaultLimit = 1000
	}
	return &SQLSanitizer{defaultLimit: defaultLimit}
}

// Sanitize 校验并整理查询：去除首尾空白与结尾分号，拒绝危险关键字，
// 要求以 SELECT 开头（允许前置优化器提示注释），缺失时追加 LIMIT。
func (s *SQLSanitizer) Sanitize(query string) (string, error) {
	query = strings.TrimSpace(query)
	query = strings.TrimSuffix(query, ";")

	if err := CheckDangerousSQL(query); err != nil {
		return "", err
	}

	// 优化器可能加了 /*+ ... */ 前缀，检查 SELECT 时先剥掉
	stripped := hintPrefixRe.ReplaceAllString(query, "")
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(stripped)), "select") {
		return "", fmt.Errorf("%w: only SELECT queries are allowed", errs.ErrValidation)
	}

	if !limitRe.MatchString(query) {
		query = fmt.Sprintf("%s LIMIT %d", query, s.defaultLimit)
	}

	return query, nil
}

// CheckDangerousSQL 对查询做危险关键字与注入标记检查。
func CheckDangerousSQL(query string) error {
	lower := strings.ToLower(query)
	for i, re := range keywordPatterns {
		if re.MatchString(lower) {
			return fmt.Errorf("%w: dangerous SQL keyword detected: %s", errs.ErrValidation, dangerousKeywords[i])
		}
	}
	for _, marker := range dangerousMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: dangerous SQL marker detected: %s", errs.ErrValidation, marker)
		}
	}
	return nil
}

// ExtractParams 把查询中的字符串字面量替换为 ? 占位符并推断参数类型。
// 纯数字转为 int64，带小数点的数字转为 float64，其余保持字符串。
func (s *SQLSanitizer) ExtractParams(query string) (string, []interface{}) {
	var params []interface{}

	parameterized := stringLiteralRe.ReplaceAllStringFunc(query, func(match string) string {
		value := match[1 : len(match)-1]
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			params = append(params, n)
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			params = append(params, f)
		} else {
			params = append(params, value)
		}
		return "?"
	})

	return parameterized, params
}
