package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-assist-go/internal/config"
	"ai-assist-go/pkg/cache"
	"ai-assist-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator 以固定响应或错误模拟 LLM。
type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

// newTestCache 连接一个不可达的 Redis，使缓存走直通路径。
func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	return cache.New("127.0.0.1:1", "", 0, time.Minute)
}

const testSchema = `Table: users
  id: int NOT NULL
  name: varchar NULL

Table: orders
  id: int NOT NULL
  user_id: int NOT NULL
`

func newTestGenerator(t *testing.T, llm AnswerGenerator) *SQLGenerator {
	t.Helper()
	return NewSQLGenerator(llm, newTestCache(t), config.SQLGenConfig{DefaultLimit: 100})
}

func TestGenerateQueryStripsMarkdownFences(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{response: "```sql\nSELECT id, name FROM users\n```"})

	query, err := g.GenerateQuery(context.Background(), "list users", testSchema)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users LIMIT 100", query)
}

func TestGenerateQueryDropsExplanationPrefix(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{response: "Here's the query: SELECT id FROM users"})

	query, err := g.GenerateQuery(context.Background(), "list users", testSchema)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users LIMIT 100", query)
}

func TestGenerateQueryKeepsModelLimit(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{response: "SELECT id FROM users LIMIT 5"})

	query, err := g.GenerateQuery(context.Background(), "list users", testSchema)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users LIMIT 5", query)
}

func TestGenerateQueryRejectsDangerousStatements(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{response: "SELECT id FROM users; DROP TABLE users"})

	_, err := g.GenerateQuery(context.Background(), "wipe the users table", testSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSQLGeneration))
}

func TestGenerateQueryRejectsUnknownTables(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{response: "SELECT secret FROM credentials"})

	_, err := g.GenerateQuery(context.Background(), "show credentials", testSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSQLGeneration))
	assert.Contains(t, err.Error(), "credentials")
}

func TestGenerateQueryRejectsResponseWithoutSelect(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{response: "I cannot answer this question."})

	_, err := g.GenerateQuery(context.Background(), "hello", testSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSQLGeneration))
}

func TestGenerateQueryWrapsLLMFailure(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{err: errors.New("connection refused")})

	_, err := g.GenerateQuery(context.Background(), "list users", testSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSQLGeneration))
}

func TestGenerateQueryRejectsCommentMarkers(t *testing.T) {
	g := newTestGenerator(t, &stubGenerator{response: "SELECT id FROM users /* hidden */"})

	_, err := g.GenerateQuery(context.Background(), "list users", testSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSQLGeneration))
}

func TestGenerateQueryAppliesOptimizerWhenEnabled(t *testing.T) {
	g := NewSQLGenerator(
		&stubGenerator{response: "SELECT region, COUNT(1) FROM orders GROUP BY region"},
		newTestCache(t),
		config.SQLGenConfig{EnableOptimizer: true, DefaultLimit: 100},
	)

	query, err := g.GenerateQuery(context.Background(), "orders per region", testSchema)
	require.NoError(t, err)
	assert.Contains(t, query, "/*+ PARALLEL(4) */")
}

func TestParseSchemaTableNames(t *testing.T) {
	allowed := parseSchemaTableNames(testSchema)
	assert.True(t, allowed["users"])
	assert.True(t, allowed["orders"])
	assert.False(t, allowed["credentials"])
}
