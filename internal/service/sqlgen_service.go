package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ai-assist-go/internal/config"
	"ai-assist-go/pkg/cache"
	"ai-assist-go/pkg/errs"
	"ai-assist-go/pkg/log"
)

// AnswerGenerator 是 SQL 生成器对 LLM 的最小依赖。
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
}

var (
	selectStartRe = regexp.MustCompile(`(?i)\bselect\b`)
	tableRefRe    = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	tableLineRe   = regexp.MustCompile(`(?m)^Table:\s*(\S+)`)
)

// SQLGenerator 把自然语言问题转换为经过校验的只读 SELECT。
type SQLGenerator struct {
	llm             AnswerGenerator
	cache           *cache.Cache
	optimizer       *QueryOptimizer
	enableOptimizer bool
	defaultLimit    int
}

// NewSQLGenerator 创建 SQL 生成器。优化器仅在配置开启时参与流水线。
func NewSQLGenerator(llm AnswerGenerator, c *cache.Cache, cfg config.SQLGenConfig) *SQLGenerator {
	return &SQLGenerator{
		llm:             llm,
		cache:           c,
		optimizer:       NewQueryOptimizer(nil),
		enableOptimizer: cfg.EnableOptimizer,
		defaultLimit:    cfg.DefaultLimit,
	}
}

// GenerateQuery 执行完整流水线：缓存查询、提示构造、模型调用、
// 响应清洗、安全校验、表名白名单校验、LIMIT 追加、可选优化、缓存写回。
// 任何失败都以 ErrSQLGeneration 包装返回。
func (g *SQLGenerator) GenerateQuery(ctx context.Context, question, schema string) (string, error) {
	cacheKey := g.cache.Key("sql_gen", question)
	if cached, ok := g.cache.Get(ctx, cacheKey); ok {
		log.Debugf("[SQLGenerator] 命中缓存: %s", cacheKey)
		return cached, nil
	}

	raw, err := g.llm.GenerateAnswer(ctx, buildSQLPrompt(question, schema))
	if err != nil {
		return "", fmt.Errorf("%w: llm call failed: %v", errs.ErrSQLGeneration, err)
	}

	query, err := cleanSQLResponse(raw)
	if err != nil {
		return "", err
	}

	if err := g.validate(query, schema); err != nil {
		return "", err
	}

	if !limitRe.MatchString(query) {
		query = fmt.Sprintf("%s LIMIT %d", query, g.defaultLimit)
	}

	if g.enableOptimizer {
		optimized, changed := g.optimizer.Optimize(query)
		if changed {
			log.Infof("[SQLGenerator] 查询已被优化器改写: %s", optimized)
		}
		query = optimized
	}

	g.cache.Set(ctx, cacheKey, query)
	return query, nil
}

// cleanSQLResponse 清洗模型响应：去掉 markdown 代码栅栏，
// 丢弃第一个 SELECT 之前的说明文字。响应中没有 SELECT 时报错。
func cleanSQLResponse(raw string) (string, error) {
	cleaned := strings.ReplaceAll(raw, "```sql", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	loc := selectStartRe.FindStringIndex(cleaned)
	if loc == nil {
		return "", fmt.Errorf("%w: model response contains no SELECT statement", errs.ErrSQLGeneration)
	}
	return strings.TrimSpace(cleaned[loc[0]:]), nil
}

// validate 做安全与结构校验：必须以 SELECT 开头，
// 不含危险关键字与注释标记，引用的表必须出现在 schema 中。
func (g *SQLGenerator) validate(query, schema string) error {
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select") {
		return fmt.Errorf("%w: only SELECT queries are allowed", errs.ErrSQLGeneration)
	}

	if err := CheckDangerousSQL(query); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSQLGeneration, err)
	}
	if strings.Contains(lower, "/*") {
		return fmt.Errorf("%w: dangerous SQL marker detected: /*", errs.ErrSQLGeneration)
	}

	allowed := parseSchemaTableNames(schema)
	if len(allowed) == 0 {
		return nil
	}
	for _, match := range tableRefRe.FindAllStringSubmatch(query, -1) {
		table := strings.ToLower(match[1])
		if !allowed[table] {
			return fmt.Errorf("%w: query references unknown table %q", errs.ErrSQLGeneration, match[1])
		}
	}
	return nil
}

// parseSchemaTableNames 从 schema 描述的 "Table: xxx" 行提取表名白名单。
func parseSchemaTableNames(schema string) map[string]bool {
	allowed := make(map[string]bool)
	for _, match := range tableLineRe.FindAllStringSubmatch(schema, -1) {
		allowed[strings.ToLower(match[1])] = true
	}
	return allowed
}

// buildSQLPrompt 构造 NL→SQL 提示词。
func buildSQLPrompt(question, schema string) string {
	return fmt.Sprintf(`Given the following database schema:
%s

And this question:
%s

Write a SQL query that answers this question.
Rules:
1. IMPORTANT: Return ONLY the SQL query - no explanations, no thinking steps, no markdown
2. ONLY use SELECT statements - no ALTER, DROP, DELETE, UPDATE, INSERT, or other modifying statements
3. Be safe and properly formatted
4. Use explicit column names (no SELECT *)
5. Include necessary JOINs and WHERE clauses
6. Return only the data needed to answer the question
7. Use proper SQL injection prevention practices
8. Keep the query simple and efficient

Format your response as a raw SQL query without any additional text or formatting.
BAD: "Here's the query: SELECT..."
BAD: `+"```sql SELECT...```"+`
GOOD: SELECT...`, schema, question)
}
