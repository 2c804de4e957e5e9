package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ai-assist-go/internal/config"
	"ai-assist-go/internal/model"
	"ai-assist-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 按提示词内容路由响应，并记录最后一次收到的提示词。
type fakeProvider struct {
	mu         sync.Mutex
	answer     func(prompt string) (string, error)
	lastPrompt string
}

func (p *fakeProvider) Initialize(ctx context.Context) error { return nil }

func (p *fakeProvider) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.lastPrompt = prompt
	p.mu.Unlock()
	return p.answer(prompt)
}

func (p *fakeProvider) Close() error { return nil }

func (p *fakeProvider) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPrompt
}

type fakeDocService struct {
	results []model.SearchResult
	err     error
}

func (f *fakeDocService) IndexDocument(ctx context.Context, content []byte, filename string, ownerID uint) (string, error) {
	return "", nil
}

func (f *fakeDocService) Query(ctx context.Context, question string, ownerID uint, topK int, hybrid bool) ([]model.SearchResult, error) {
	return f.results, f.err
}

func (f *fakeDocService) GetUserDocuments(ctx context.Context, ownerID uint) ([]model.DocumentInfo, error) {
	return nil, nil
}

func (f *fakeDocService) DeleteDocument(ctx context.Context, docID string, ownerID uint) error {
	return nil
}

func (f *fakeDocService) UpdateDocumentStatus(ctx context.Context, docID string, active bool) error {
	return nil
}

func (f *fakeDocService) ClearUserDocuments(ctx context.Context, ownerID uint) error {
	return nil
}

type fakeDBService struct {
	schema string
	rows   []map[string]interface{}
	err    error
}

func (f *fakeDBService) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	return f.rows, f.err
}

func (f *fakeDBService) GetSchema(ctx context.Context) (string, error) {
	return f.schema, f.err
}

func newTestQAService(t *testing.T, provider *fakeProvider, doc DocumentService, db DatabaseService) QAService {
	t.Helper()

	llmSvc := llm.NewService(map[llm.Kind]llm.Provider{llm.KindLocal: provider}, llm.KindLocal)
	require.NoError(t, llmSvc.Initialize(context.Background()))

	c := newTestCache(t)
	sqlGen := NewSQLGenerator(llmSvc, c, config.SQLGenConfig{DefaultLimit: 100})
	urlSvc := NewURLService(config.URLFetchConfig{TimeoutSeconds: 1, MaxContentSize: 1 << 20}, c)
	return NewQAService(llmSvc, doc, db, sqlGen, urlSvc, NewLanguageService(), c)
}

func TestGetAnswerWithDocumentEvidence(t *testing.T) {
	provider := &fakeProvider{answer: func(string) (string, error) { return "generated answer", nil }}
	doc := &fakeDocService{results: []model.SearchResult{
		{DocID: "d1", FileName: "tariffs.pdf", Text: "basic plan costs 10 euro", Score: 0.9},
		{DocID: "d2", FileName: "roaming.pdf", Text: "roaming costs extra", Score: 0.8},
	}}
	qa := newTestQAService(t, provider, doc, &fakeDBService{})

	result := qa.GetAnswer(context.Background(), "how much is the basic plan?", model.UserContext{
		OwnerID:         1,
		EnableDocSearch: true,
	})

	assert.Equal(t, "generated answer", result.Answer)
	require.Len(t, result.Context.SourceNodes, 2)
	assert.Equal(t, "tariffs.pdf", result.Context.SourceNodes[0].FileName)
	assert.Empty(t, result.Errors)
	assert.Contains(t, provider.last(), "Document Context:")
	assert.Contains(t, provider.last(), "basic plan costs 10 euro")
}

func TestGetAnswerSoftFailsWhenDocSearchErrors(t *testing.T) {
	provider := &fakeProvider{answer: func(string) (string, error) { return "answer without docs", nil }}
	doc := &fakeDocService{err: errors.New("elasticsearch is down")}
	qa := newTestQAService(t, provider, doc, &fakeDBService{})

	result := qa.GetAnswer(context.Background(), "any question", model.UserContext{
		OwnerID:         1,
		EnableDocSearch: true,
	})

	assert.Equal(t, "answer without docs", result.Answer)
	assert.Empty(t, result.Context.SourceNodes)
}

func TestGetAnswerReturnsErrorResultOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{answer: func(string) (string, error) { return "", errors.New("model unavailable") }}
	qa := newTestQAService(t, provider, &fakeDocService{}, &fakeDBService{})

	result := qa.GetAnswer(context.Background(), "question", model.UserContext{OwnerID: 1})

	assert.True(t, strings.HasPrefix(result.Answer, "Error: "))
	assert.NotNil(t, result.Context.SourceNodes)
	assert.Empty(t, result.Context.SourceNodes)
}

func TestGetAnswerRejectsUnknownProvider(t *testing.T) {
	provider := &fakeProvider{answer: func(string) (string, error) { return "ok", nil }}
	qa := newTestQAService(t, provider, &fakeDocService{}, &fakeDBService{})

	result := qa.GetAnswer(context.Background(), "question", model.UserContext{
		OwnerID:  1,
		Provider: "cloud",
	})

	assert.True(t, strings.HasPrefix(result.Answer, "Error: "))
}

func TestGetAnswerCollectsURLErrors(t *testing.T) {
	provider := &fakeProvider{answer: func(string) (string, error) { return "answer", nil }}
	qa := newTestQAService(t, provider, &fakeDocService{}, &fakeDBService{})

	result := qa.GetAnswer(context.Background(),
		"what is on http://127.0.0.1:1/page ?",
		model.UserContext{OwnerID: 1, HandleURLs: true},
	)

	assert.Equal(t, "answer", result.Answer)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Failed to fetch URL http://127.0.0.1:1/page")
}

func TestGetAnswerIncludesDatabaseEvidence(t *testing.T) {
	provider := &fakeProvider{answer: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, `Respond with only "true" or "false"`):
			return "true", nil
		case strings.Contains(prompt, "Write a SQL query"):
			return "SELECT id FROM users", nil
		default:
			return "final answer", nil
		}
	}}
	db := &fakeDBService{
		schema: testSchema,
		rows:   []map[string]interface{}{{"id": float64(1)}},
	}
	qa := newTestQAService(t, provider, &fakeDocService{}, db)

	result := qa.GetAnswer(context.Background(), "how many users are there?", model.UserContext{
		OwnerID: 1,
		CheckDB: true,
	})

	assert.Equal(t, "final answer", result.Answer)
	assert.Contains(t, provider.last(), "Database Results:")
	assert.Contains(t, provider.last(), "SQL: SELECT id FROM users LIMIT 100")
}

func TestGetAnswerFallsBackToDocsWhenSQLRejected(t *testing.T) {
	provider := &fakeProvider{answer: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, `Respond with only "true" or "false"`):
			return "true", nil
		case strings.Contains(prompt, "Write a SQL query"):
			return "DROP TABLE users", nil
		default:
			return "answer from documents", nil
		}
	}}
	doc := &fakeDocService{results: []model.SearchResult{
		{DocID: "d1", FileName: "users.md", Text: "the user table holds 42 rows", Score: 0.9},
	}}
	qa := newTestQAService(t, provider, doc, &fakeDBService{schema: testSchema})

	result := qa.GetAnswer(context.Background(), "how many users are there?", model.UserContext{
		OwnerID:         1,
		EnableDocSearch: true,
		CheckDB:         true,
	})

	// 危险 SQL 被拒绝后数据库证据缺席，但文档证据照常支撑回答
	assert.Equal(t, "answer from documents", result.Answer)
	require.Len(t, result.Context.SourceNodes, 1)
	assert.Equal(t, "users.md", result.Context.SourceNodes[0].FileName)
	assert.Contains(t, provider.last(), "Document Context:")
	assert.NotContains(t, provider.last(), "Database Results:")
}

func TestGetAnswerSkipsDBForNonDBQuestion(t *testing.T) {
	provider := &fakeProvider{answer: func(prompt string) (string, error) {
		if strings.Contains(prompt, `Respond with only "true" or "false"`) {
			return "false", nil
		}
		return "final answer", nil
	}}
	qa := newTestQAService(t, provider, &fakeDocService{}, &fakeDBService{schema: testSchema})

	result := qa.GetAnswer(context.Background(), "what is the capital of France?", model.UserContext{
		OwnerID: 1,
		CheckDB: true,
	})

	assert.Equal(t, "final answer", result.Answer)
	assert.NotContains(t, provider.last(), "Database Results:")
}

func TestAnswerCacheKeyVariesByCapabilities(t *testing.T) {
	provider := &fakeProvider{answer: func(string) (string, error) { return "ok", nil }}
	qa := newTestQAService(t, provider, &fakeDocService{}, &fakeDBService{}).(*qaService)

	base := model.UserContext{OwnerID: 1, EnableDocSearch: true}
	key := qa.answerCacheKey("q", base)

	withDB := base
	withDB.CheckDB = true
	assert.NotEqual(t, key, qa.answerCacheKey("q", withDB))

	withURLs := base
	withURLs.HandleURLs = true
	assert.NotEqual(t, key, qa.answerCacheKey("q", withURLs))

	withProvider := base
	withProvider.Provider = "cloud"
	assert.NotEqual(t, key, qa.answerCacheKey("q", withProvider))

	otherOwner := base
	otherOwner.OwnerID = 2
	assert.NotEqual(t, key, qa.answerCacheKey("q", otherOwner))
}

func TestBuildContextMergesEvidenceInOrder(t *testing.T) {
	bundle := &evidenceBundle{
		docResults: []model.SearchResult{{FileName: "a.txt", Text: "doc text"}},
		urlResult:  &model.URLResult{Contents: []string{"url text"}},
		dbResult:   &model.DBResult{SQLQuery: "SELECT 1", Results: []map[string]interface{}{{"n": float64(1)}}},
	}

	context := buildContext(bundle)
	docIdx := strings.Index(context, "Document Context:")
	urlIdx := strings.Index(context, "URL Content:")
	dbIdx := strings.Index(context, "Database Results:")

	require.NotEqual(t, -1, docIdx)
	require.NotEqual(t, -1, urlIdx)
	require.NotEqual(t, -1, dbIdx)
	assert.Less(t, docIdx, urlIdx)
	assert.Less(t, urlIdx, dbIdx)
}

func TestDedupeByFileNameKeepsFirstChunk(t *testing.T) {
	results := []model.SearchResult{
		{FileName: "a.txt", ChunkIndex: 0},
		{FileName: "a.txt", ChunkIndex: 2},
		{FileName: "b.txt", ChunkIndex: 1},
	}

	deduped := dedupeByFileName(results)
	require.Len(t, deduped, 2)
	assert.Equal(t, 0, deduped[0].ChunkIndex)
	assert.Equal(t, "b.txt", deduped[1].FileName)
}

func TestDecodeQuestion(t *testing.T) {
	assert.Equal(t, "как дела", decodeQuestion("%25D0%25BA%25D0%25B0%25D0%25BA%20%25D0%25B4%25D0%25B5%25D0%25BB%25D0%25B0"))
	assert.Equal(t, "plain question", decodeQuestion("plain question"))
}
