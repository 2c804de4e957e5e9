package model

// UserContext 携带单次问答请求的用户上下文与开关。
// Provider 为空表示使用进程当前默认提供方；非空时仅对本次请求生效。
type UserContext struct {
	OwnerID         uint   `json:"owner_id"`
	EnableDocSearch bool   `json:"enable_doc_search"`
	HandleURLs      bool   `json:"handle_urls"`
	CheckDB         bool   `json:"check_db"`
	Provider        string `json:"provider,omitempty"`
}

// SourceNode 是进入提示词上下文的单条文档证据。
type SourceNode struct {
	FileName string `json:"filename"`
	Text     string `json:"text"`
}

// AnswerContext 汇总一次应答使用的证据与耗时。
type AnswerContext struct {
	SourceNodes []SourceNode `json:"source_nodes"`
	TimeTaken   float64      `json:"time_taken"`
}

// AnswerResult 是问答接口的统一返回结构。
// 出错时 Answer 为 "Error: ..."，SourceNodes 为空数组而非 null。
type AnswerResult struct {
	Answer  string        `json:"answer"`
	Context AnswerContext `json:"context"`
	Errors  []string      `json:"errors,omitempty"`
}

// DBResult 是数据库证据分支的产出。
type DBResult struct {
	SQLQuery string                   `json:"sql_query"`
	Results  []map[string]interface{} `json:"results"`
}

// URLResult 是 URL 证据分支的产出，Errors 记录抓取失败的软错误说明。
type URLResult struct {
	Contents []string `json:"contents"`
	Errors   []string `json:"errors"`
}
