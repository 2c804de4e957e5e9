package model

// ChunkDocument 是写入 Elasticsearch 的文档分块结构。
// 同一文档的所有分块共享 doc_id / active / owners，owners 为归属用户 ID 的字符串数组。
type ChunkDocument struct {
	DocID        string    `json:"doc_id"`
	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size"`
	ChunkIndex   int       `json:"chunk_index"`
	TotalChunks  int       `json:"total_chunks"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	Active       bool      `json:"active"`
	Owners       []string  `json:"owners"`
}

// SearchResult 是检索返回的单个分块结果。
type SearchResult struct {
	DocID       string  `json:"doc_id"`
	FileName    string  `json:"filename"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
	ChunkIndex  int     `json:"chunk_index"`
	TotalChunks int     `json:"total_chunks"`
}

// DocumentInfo 是文档列表接口返回的去重后文档元信息。
type DocumentInfo struct {
	ID       string `json:"id"`
	FileName string `json:"filename"`
	FileSize int64  `json:"file_size"`
	Active   bool   `json:"active"`
}
