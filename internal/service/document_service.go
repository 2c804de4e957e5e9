// Package service 提供问答流水线的业务逻辑。
package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"ai-assist-go/internal/config"
	"ai-assist-go/internal/model"
	"ai-assist-go/pkg/embedding"
	"ai-assist-go/pkg/errs"
	"ai-assist-go/pkg/es"
	"ai-assist-go/pkg/log"
	"ai-assist-go/pkg/tika"

	"github.com/elastic/go-elasticsearch/v8"
)

// 混合检索的权重：向量相似度为主，词面重合度为辅。
const (
	vectorWeight  = 0.7
	lexicalWeight = 0.3
)

// DocumentService 管理文档的索引、检索与归属生命周期。
type DocumentService interface {
	IndexDocument(ctx context.Context, content []byte, filename string, ownerID uint) (string, error)
	Query(ctx context.Context, question string, ownerID uint, topK int, hybrid bool) ([]model.SearchResult, error)
	GetUserDocuments(ctx context.Context, ownerID uint) ([]model.DocumentInfo, error)
	DeleteDocument(ctx context.Context, docID string, ownerID uint) error
	UpdateDocumentStatus(ctx context.Context, docID string, active bool) error
	ClearUserDocuments(ctx context.Context, ownerID uint) error
}

type documentService struct {
	esClient        *elasticsearch.Client
	indexName       string
	embeddingClient embedding.Client
	tikaClient      *tika.Client
	modelVersion    string
	chunkSize       int
	chunkOverlap    int
}

// NewDocumentService 创建文档服务实例。
func NewDocumentService(
	esClient *elasticsearch.Client,
	esCfg config.ElasticsearchConfig,
	embeddingClient embedding.Client,
	embeddingCfg config.EmbeddingConfig,
	tikaClient *tika.Client,
	docCfg config.DocumentConfig,
) DocumentService {
	return &documentService{
		esClient:        esClient,
		indexName:       esCfg.IndexName,
		embeddingClient: embeddingClient,
		tikaClient:      tikaClient,
		modelVersion:    embeddingCfg.Model,
		chunkSize:       docCfg.ChunkSize,
		chunkOverlap:    docCfg.ChunkOverlap,
	}
}

// Fingerprint 根据文件名和字节长度计算确定性的文档 ID。
// 同名同大小的上传会命中同一指纹，由归属集合承载多租户共享。
func Fingerprint(filename string, byteLen int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d", filename, byteLen)))
	return hex.EncodeToString(sum[:])
}

// IndexDocument 索引一份文档并返回其 doc_id。
//
// 指纹已存在时只把 ownerID 加入归属集合后直接返回，不重新分块和向量化：
// 这是刻意的内容寻址存储共享，同名同大小的文件在索引中只保留一份分块。
// 内容为空或无法解码时返回 ErrValidation。
func (s *documentService) IndexDocument(ctx context.Context, content []byte, filename string, ownerID uint) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: document content is empty", errs.ErrValidation)
	}

	docID := Fingerprint(filename, len(content))
	log.Infof("[DocumentService] 开始索引文档, filename: %s, docID: %s, owner: %d", filename, docID, ownerID)

	_, exists, err := s.findDocumentChunk(ctx, docID)
	if err != nil {
		return "", err
	}
	if exists {
		log.Infof("[DocumentService] 文档指纹已存在, 仅追加归属: docID=%s, owner=%d", docID, ownerID)
		if err := s.addOwner(ctx, docID, ownerID); err != nil {
			return "", err
		}
		return docID, nil
	}

	text, err := s.extractText(ctx, content, filename)
	if err != nil {
		return "", err
	}

	chunks := splitText(text, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: document produced no text chunks", errs.ErrValidation)
	}
	log.Infof("[DocumentService] 文本分块完成, 共 %d 个分块", len(chunks))

	// 整批分块走一次向量化请求
	vectors, err := s.embeddingClient.CreateEmbeddings(ctx, chunks)
	if err != nil {
		return "", fmt.Errorf("%w: embedding %d chunks: %v", errs.ErrUpstream, len(chunks), err)
	}

	owner := formatOwner(ownerID)
	for i, chunk := range chunks {
		doc := model.ChunkDocument{
			DocID:        docID,
			FileName:     filename,
			FileSize:     int64(len(content)),
			ChunkIndex:   i,
			TotalChunks:  len(chunks),
			TextContent:  chunk,
			Vector:       vectors[i],
			ModelVersion: s.modelVersion,
			Active:       true,
			Owners:       []string{owner},
		}
		if err := es.IndexChunk(ctx, s.esClient, s.indexName, doc); err != nil {
			return "", fmt.Errorf("%w: indexing chunk %d: %v", errs.ErrUpstream, i, err)
		}
	}

	log.Infof("[DocumentService] 文档索引完成, docID: %s", docID)
	return docID, nil
}

// extractText 提取文档文本。纯文本格式直接解码，其余交给 Tika。
func (s *documentService) extractText(ctx context.Context, content []byte, filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	var text string
	switch ext {
	case "txt", "md":
		if !utf8.Valid(content) {
			return "", fmt.Errorf("%w: file %s is not valid utf-8 text", errs.ErrValidation, filename)
		}
		text = string(content)
	default:
		extracted, err := s.tikaClient.ExtractText(ctx, bytes.NewReader(content), filename)
		if err != nil {
			return "", fmt.Errorf("%w: tika extraction: %v", errs.ErrUpstream, err)
		}
		text = extracted
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text content extracted from %s", errs.ErrValidation, filename)
	}
	return text, nil
}

// Query 检索归属于 ownerID 且处于激活状态的文档分块。
// 默认按向量相似度排序；hybrid 为真时按 0.7·向量 + 0.3·词面重合度重排。
// 结果按 doc_id 去重后取前 topK 条。
func (s *documentService) Query(ctx context.Context, question string, ownerID uint, topK int, hybrid bool) ([]model.SearchResult, error) {
	if topK <= 0 {
		topK = 3
	}
	log.Infof("[DocumentService] 开始检索, question: '%s', owner: %d, topK: %d, hybrid: %v", question, ownerID, topK, hybrid)

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding question: %v", errs.ErrUpstream, err)
	}

	// 为 doc_id 去重预留召回余量
	recall := topK * 5
	numCandidates := recall * 10
	if numCandidates < 100 {
		numCandidates = 100
	}

	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              recall,
			"num_candidates": numCandidates,
			"filter": map[string]interface{}{
				"bool": map[string]interface{}{
					"must": []map[string]interface{}{
						{"term": map[string]interface{}{"active": true}},
						{"term": map[string]interface{}{"owners": formatOwner(ownerID)}},
					},
				},
			},
		},
		"size": recall,
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch search: %v", errs.ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[DocumentService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("%w: elasticsearch returned %s", errs.ErrUpstream, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ChunkDocument `json:"_source"`
				Score  float64             `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.SearchResult, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SearchResult{
			DocID:       hit.Source.DocID,
			FileName:    hit.Source.FileName,
			Text:        hit.Source.TextContent,
			Score:       hit.Score,
			ChunkIndex:  hit.Source.ChunkIndex,
			TotalChunks: hit.Source.TotalChunks,
		})
	}

	if hybrid {
		results = rerankHybrid(question, results)
	}

	results = dedupeByDocID(results)
	if len(results) > topK {
		results = results[:topK]
	}

	log.Infof("[DocumentService] 检索完成, 返回 %d 条结果", len(results))
	return results, nil
}

// rerankHybrid 按向量分数与词面重合度的加权和重新排序。
func rerankHybrid(question string, results []model.SearchResult) []model.SearchResult {
	for i := range results {
		overlap := tokenOverlap(question, results[i].Text)
		results[i].Score = vectorWeight*results[i].Score + lexicalWeight*overlap
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// tokenOverlap 计算问题词项在分块文本中出现的比例，范围 [0, 1]。
func tokenOverlap(question, text string) float64 {
	qTokens := strings.Fields(strings.ToLower(question))
	if len(qTokens) == 0 {
		return 0
	}
	tTokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tTokens[tok] = true
	}
	matched := 0
	for _, tok := range qTokens {
		if tTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(qTokens))
}

// dedupeByDocID 按 doc_id 去重，保留排序靠前的分块。
func dedupeByDocID(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]bool, len(results))
	deduped := results[:0:0]
	for _, r := range results {
		if seen[r.DocID] {
			continue
		}
		seen[r.DocID] = true
		deduped = append(deduped, r)
	}
	return deduped
}

// GetUserDocuments 返回归属于 ownerID 的去重文档列表。
func (s *documentService) GetUserDocuments(ctx context.Context, ownerID uint) ([]model.DocumentInfo, error) {
	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"owners": formatOwner(ownerID)},
		},
		"size":    1000,
		"_source": []string{"doc_id", "file_name", "file_size", "active"},
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch search: %v", errs.ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: elasticsearch returned %s", errs.ErrUpstream, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ChunkDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	seen := make(map[string]bool)
	var docs []model.DocumentInfo
	for _, hit := range esResponse.Hits.Hits {
		if seen[hit.Source.DocID] {
			continue
		}
		seen[hit.Source.DocID] = true
		docs = append(docs, model.DocumentInfo{
			ID:       hit.Source.DocID,
			FileName: hit.Source.FileName,
			FileSize: hit.Source.FileSize,
			Active:   hit.Source.Active,
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].FileName < docs[j].FileName })
	return docs, nil
}

// DeleteDocument 把 ownerID 从文档归属集合中移除。
// ownerID 是最后一个归属者时删除整个分块集合；文档不存在或不归属该用户时返回 ErrNotFound。
func (s *documentService) DeleteDocument(ctx context.Context, docID string, ownerID uint) error {
	chunk, exists, err := s.findDocumentChunk(ctx, docID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: document %s", errs.ErrNotFound, docID)
	}

	owner := formatOwner(ownerID)
	isOwner := false
	for _, o := range chunk.Owners {
		if o == owner {
			isOwner = true
			break
		}
	}
	if !isOwner {
		return fmt.Errorf("%w: document %s is not owned by user %d", errs.ErrNotFound, docID, ownerID)
	}

	if len(chunk.Owners) == 1 {
		log.Infof("[DocumentService] 最后一个归属者移除, 删除全部分块: docID=%s", docID)
		return s.deleteAllChunks(ctx, docID)
	}

	log.Infof("[DocumentService] 从归属集合移除用户: docID=%s, owner=%d", docID, ownerID)
	return s.removeOwner(ctx, docID, ownerID)
}

// UpdateDocumentStatus 更新文档所有分块的激活标记。
func (s *documentService) UpdateDocumentStatus(ctx context.Context, docID string, active bool) error {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		},
		"script": map[string]interface{}{
			"source": "ctx._source.active = params.active",
			"params": map[string]interface{}{"active": active},
		},
	}

	updated, err := s.updateByQuery(ctx, body)
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("%w: document %s", errs.ErrNotFound, docID)
	}
	log.Infof("[DocumentService] 文档状态已更新: docID=%s, active=%v, 分块数=%d", docID, active, updated)
	return nil
}

// ClearUserDocuments 逐个删除用户的全部文档。
// 共享文档只会缩减归属集合，其他归属者的数据不受影响。
func (s *documentService) ClearUserDocuments(ctx context.Context, ownerID uint) error {
	docs, err := s.GetUserDocuments(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.DeleteDocument(ctx, doc.ID, ownerID); err != nil {
			log.Errorf("[DocumentService] 清理文档失败: docID=%s, error: %v", doc.ID, err)
			return err
		}
	}
	log.Infof("[DocumentService] 已清理用户 %d 的 %d 份文档", ownerID, len(docs))
	return nil
}

// findDocumentChunk 按 doc_id 取一个分块，用于存在性与归属检查。
func (s *documentService) findDocumentChunk(ctx context.Context, docID string) (*model.ChunkDocument, bool, error) {
	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		},
		"size": 1,
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, false, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: elasticsearch search: %v", errs.ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, false, fmt.Errorf("%w: elasticsearch returned %s", errs.ErrUpstream, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ChunkDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, false, fmt.Errorf("failed to decode es response: %w", err)
	}

	if len(esResponse.Hits.Hits) == 0 {
		return nil, false, nil
	}
	return &esResponse.Hits.Hits[0].Source, true, nil
}

// addOwner 幂等地把用户加入文档所有分块的归属集合。
func (s *documentService) addOwner(ctx context.Context, docID string, ownerID uint) error {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		},
		"script": map[string]interface{}{
			"source": "if (!ctx._source.owners.contains(params.owner)) { ctx._source.owners.add(params.owner) }",
			"params": map[string]interface{}{"owner": formatOwner(ownerID)},
		},
	}
	_, err := s.updateByQuery(ctx, body)
	return err
}

// removeOwner 把用户从文档所有分块的归属集合中移除。
func (s *documentService) removeOwner(ctx context.Context, docID string, ownerID uint) error {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		},
		"script": map[string]interface{}{
			"source": "ctx._source.owners.removeIf(o -> o == params.owner)",
			"params": map[string]interface{}{"owner": formatOwner(ownerID)},
		},
	}
	_, err := s.updateByQuery(ctx, body)
	return err
}

// updateByQuery 执行 update_by_query 并返回更新的分块数。
func (s *documentService) updateByQuery(ctx context.Context, body map[string]interface{}) (int, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, fmt.Errorf("failed to encode update_by_query body: %w", err)
	}

	res, err := s.esClient.UpdateByQuery(
		[]string{s.indexName},
		s.esClient.UpdateByQuery.WithContext(ctx),
		s.esClient.UpdateByQuery.WithBody(&buf),
		s.esClient.UpdateByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: update_by_query: %v", errs.ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[DocumentService] update_by_query 失败, status: %s, body: %s", res.Status(), string(bodyBytes))
		return 0, fmt.Errorf("%w: update_by_query returned %s", errs.ErrUpstream, res.Status())
	}

	var result struct {
		Updated int `json:"updated"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode update_by_query response: %w", err)
	}
	return result.Updated, nil
}

// deleteAllChunks 删除文档的全部分块。
func (s *documentService) deleteAllChunks(ctx context.Context, docID string) error {
	var buf bytes.Buffer
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		},
	}
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("failed to encode delete_by_query body: %w", err)
	}

	res, err := s.esClient.DeleteByQuery(
		[]string{s.indexName},
		&buf,
		s.esClient.DeleteByQuery.WithContext(ctx),
		s.esClient.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("%w: delete_by_query: %v", errs.ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: delete_by_query returned %s", errs.ErrUpstream, res.Status())
	}
	return nil
}

// formatOwner 把用户 ID 转为归属集合里使用的 keyword 值。
func formatOwner(ownerID uint) string {
	return strconv.FormatUint(uint64(ownerID), 10)
}

// splitText 按 chunkSize 与 chunkOverlap 对文本做滑窗分块，
// 窗口末尾在回看范围内优先对齐段落边界，其次是句子边界。
func splitText(text string, chunkSize, chunkOverlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	var chunks []string
	step := chunkSize - chunkOverlap
	for start := 0; start < len(runes); {
		end := start + chunkSize
		if end >= len(runes) {
			if c := strings.TrimSpace(string(runes[start:])); c != "" {
				chunks = append(chunks, c)
			}
			break
		}

		end = adjustToBoundary(runes, start, end, chunkSize/4)
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}

		next := end - chunkOverlap
		if next <= start {
			next = start + step
		}
		start = next
	}
	return chunks
}

// adjustToBoundary 在 [end-lookback, end) 范围内向前寻找更好的切分点：
// 先找段落分隔（空行），再找句子结束符。找不到就保持原切分点。
func adjustToBoundary(runes []rune, start, end, lookback int) int {
	low := end - lookback
	if low <= start {
		low = start + 1
	}

	for i := end - 1; i >= low; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= low; i-- {
		switch runes[i] {
		case '.', '!', '?', '。', '！', '？', '\n':
			return i + 1
		}
	}
	return end
}
