package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"ai-assist-go/internal/model"
	"ai-assist-go/pkg/cache"
	"ai-assist-go/pkg/llm"
	"ai-assist-go/pkg/log"
)

// 文档证据分支的默认召回条数。
const defaultEvidenceTopK = 5

// QAService 是问答编排器：汇聚文档、URL 与数据库三路证据，
// 组装语言相关的提示词并调用 LLM 生成最终回答。
type QAService interface {
	GetAnswer(ctx context.Context, question string, userCtx model.UserContext) model.AnswerResult
}

type qaService struct {
	llmService  *llm.Service
	docService  DocumentService
	dbService   DatabaseService
	sqlGen      *SQLGenerator
	urlService  *URLService
	langService *LanguageService
	cache       *cache.Cache
}

// NewQAService 创建问答编排服务。
func NewQAService(
	llmService *llm.Service,
	docService DocumentService,
	dbService DatabaseService,
	sqlGen *SQLGenerator,
	urlService *URLService,
	langService *LanguageService,
	c *cache.Cache,
) QAService {
	return &qaService{
		llmService:  llmService,
		docService:  docService,
		dbService:   dbService,
		sqlGen:      sqlGen,
		urlService:  urlService,
		langService: langService,
		cache:       c,
	}
}

// GetAnswer 返回问题的应答，永不 panic：
// 任何不可恢复的失败都转换为 Answer 为 "Error: ..." 的结构化结果。
// 证据分支是软失败的，单路失败只意味着该路证据缺席。
func (s *qaService) GetAnswer(ctx context.Context, question string, userCtx model.UserContext) (result model.AnswerResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[QAService] GetAnswer panic: %v", r)
			result = errorResult(fmt.Errorf("internal error: %v", r))
		}
	}()

	decoded := decodeQuestion(question)
	log.Infof("[QAService] 开始处理问题: '%s', owner: %d", decoded, userCtx.OwnerID)

	// 每个请求把提供方偏好解析为局部绑定，后续全程使用该绑定，
	// 运行中的默认切换不影响本次请求。
	provider, err := s.llmService.Provider(llm.Kind(userCtx.Provider))
	if err != nil {
		log.Errorf("[QAService] 解析 LLM 提供方失败: %v", err)
		return errorResult(err)
	}

	cacheKey := s.answerCacheKey(decoded, userCtx)
	var cached model.AnswerResult
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		log.Infof("[QAService] 应答命中缓存")
		return cached
	}

	evidence := s.collectEvidence(ctx, decoded, userCtx, provider)

	contextText := buildContext(evidence)
	prompt := s.langService.FormatPrompt(decoded, contextText)

	answer, err := provider.GenerateAnswer(ctx, prompt)
	if err != nil {
		log.Errorf("[QAService] LLM 生成回答失败: %v", err)
		return errorResult(err)
	}

	nodes := make([]model.SourceNode, 0, len(evidence.docResults))
	for _, r := range evidence.docResults {
		nodes = append(nodes, model.SourceNode{FileName: r.FileName, Text: r.Text})
	}

	result = model.AnswerResult{
		Answer: answer,
		Context: model.AnswerContext{
			SourceNodes: nodes,
			TimeTaken:   round2(time.Since(start).Seconds()),
		},
		Errors: evidence.softErrors,
	}

	s.cache.SetJSON(ctx, cacheKey, result)
	log.Infof("[QAService] 问题处理完成, 耗时 %.2fs", result.Context.TimeTaken)
	return result
}

// answerCacheKey 把影响证据构成的请求参数全部纳入键中：
// 归属、三个证据开关与提供方偏好，任何一项不同的请求都不会互相命中缓存。
func (s *qaService) answerCacheKey(question string, userCtx model.UserContext) string {
	return s.cache.Key("answer", question,
		strconv.FormatUint(uint64(userCtx.OwnerID), 10),
		strconv.FormatBool(userCtx.EnableDocSearch),
		strconv.FormatBool(userCtx.CheckDB),
		strconv.FormatBool(userCtx.HandleURLs),
		userCtx.Provider,
	)
}

// evidenceBundle 汇总三路证据分支的产出。
type evidenceBundle struct {
	docResults []model.SearchResult
	urlResult  *model.URLResult
	dbResult   *model.DBResult
	softErrors []string
}

// collectEvidence 并发执行启用的证据分支。
// 每个分支独立 recover：一路失败只清空该路证据，不影响其他分支。
func (s *qaService) collectEvidence(ctx context.Context, question string, userCtx model.UserContext, provider llm.Provider) *evidenceBundle {
	bundle := &evidenceBundle{}
	var wg sync.WaitGroup

	if userCtx.HandleURLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverBranch("url")
			bundle.urlResult = s.urlService.ExtractAndProcess(ctx, question)
		}()
	}

	if userCtx.CheckDB {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverBranch("db")
			if s.llmService.IsDBQuestion(ctx, provider, question) {
				bundle.dbResult = s.fetchDBEvidence(ctx, question)
			}
		}()
	}

	if userCtx.EnableDocSearch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverBranch("doc")
			results, err := s.docService.Query(ctx, question, userCtx.OwnerID, defaultEvidenceTopK, false)
			if err != nil {
				log.Warnf("[QAService] 文档检索失败, 该路证据缺席: %v", err)
				return
			}
			bundle.docResults = dedupeByFileName(results)
		}()
	}

	wg.Wait()

	if bundle.urlResult != nil {
		bundle.softErrors = bundle.urlResult.Errors
	}
	return bundle
}

// fetchDBEvidence 执行数据库证据分支：取 schema、生成 SQL、执行。
// 任何一步失败都降级为无数据库证据。
func (s *qaService) fetchDBEvidence(ctx context.Context, question string) *model.DBResult {
	schema, err := s.dbService.GetSchema(ctx)
	if err != nil {
		log.Warnf("[QAService] 读取数据库 schema 失败, 跳过数据库证据: %v", err)
		return nil
	}

	query, err := s.sqlGen.GenerateQuery(ctx, question, schema)
	if err != nil {
		log.Warnf("[QAService] SQL 生成失败, 跳过数据库证据: %v", err)
		return nil
	}

	rows, err := s.dbService.ExecuteQuery(ctx, query)
	if err != nil {
		log.Warnf("[QAService] SQL 执行失败, 跳过数据库证据: %v", err)
		return nil
	}

	return &model.DBResult{SQLQuery: query, Results: rows}
}

// recoverBranch 吸收证据分支里的 panic。
func recoverBranch(name string) {
	if r := recover(); r != nil {
		log.Errorf("[QAService] 证据分支 %s panic: %v", name, r)
	}
}

// buildContext 按固定顺序合并证据：文档、URL、数据库。
func buildContext(evidence *evidenceBundle) string {
	var sections []string

	if len(evidence.docResults) > 0 {
		var texts []string
		for _, r := range evidence.docResults {
			texts = append(texts, r.Text)
		}
		sections = append(sections, "Document Context:\n"+strings.Join(texts, "\n"))
	}

	if evidence.urlResult != nil && len(evidence.urlResult.Contents) > 0 {
		sections = append(sections, "URL Content:\n"+strings.Join(evidence.urlResult.Contents, "\n"))
	}

	if evidence.dbResult != nil {
		var lines []string
		lines = append(lines, fmt.Sprintf("SQL: %s", evidence.dbResult.SQLQuery))
		for _, row := range evidence.dbResult.Results {
			if data, err := json.Marshal(row); err == nil {
				lines = append(lines, string(data))
			}
		}
		sections = append(sections, "Database Results:\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// dedupeByFileName 按文件名去重，保留得分靠前的分块。
func dedupeByFileName(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]bool, len(results))
	deduped := results[:0:0]
	for _, r := range results {
		if seen[r.FileName] {
			continue
		}
		seen[r.FileName] = true
		deduped = append(deduped, r)
	}
	return deduped
}

// decodeQuestion 对问题做两次 URL 解码，处理双重编码的输入。
// 解码失败时退回上一次成功的形式。
func decodeQuestion(q string) string {
	once, err := url.QueryUnescape(q)
	if err != nil {
		return q
	}
	twice, err := url.QueryUnescape(once)
	if err != nil {
		return once
	}
	return twice
}

// errorResult 把错误转换为统一的结构化应答。
func errorResult(err error) model.AnswerResult {
	return model.AnswerResult{
		Answer: "Error: " + err.Error(),
		Context: model.AnswerContext{
			SourceNodes: []model.SourceNode{},
			TimeTaken:   0,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
