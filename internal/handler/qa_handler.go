package handler

import (
	"net/http"
	"strconv"

	"ai-assist-go/internal/model"
	"ai-assist-go/internal/service"
	"ai-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QAHandler 负责处理问答相关的 API 请求。
type QAHandler struct {
	qaService  service.QAService
	docService service.DocumentService
}

// NewQAHandler 创建一个新的 QAHandler 实例。
func NewQAHandler(qaService service.QAService, docService service.DocumentService) *QAHandler {
	return &QAHandler{
		qaService:  qaService,
		docService: docService,
	}
}

// currentUser 从上下文中取出 AuthMiddleware 注入的用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := userValue.(*model.User)
	return user, ok
}

// parseBoolQuery 解析布尔查询参数，解析失败时使用默认值。
func parseBoolQuery(c *gin.Context, name string, def bool) bool {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// GetAnswer 是处理问答请求的 Gin 处理函数。
// 问答编排器把所有失败都转换为结构化应答，所以这里总是返回 200。
func (h *QAHandler) GetAnswer(c *gin.Context) {
	question := c.Param("query")
	log.Infof("[QAHandler] 收到问答请求, query: %s", question)

	user, ok := currentUser(c)
	if !ok {
		log.Errorf("[QAHandler] 无法从 Gin 上下文中获取用户信息")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	userCtx := model.UserContext{
		OwnerID:         user.ID,
		EnableDocSearch: parseBoolQuery(c, "enable_doc_search", true),
		HandleURLs:      parseBoolQuery(c, "handle_urls", true),
		CheckDB:         parseBoolQuery(c, "check_db", false),
		Provider:        c.Query("provider"),
	}

	result := h.qaService.GetAnswer(c.Request.Context(), question, userCtx)
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result, "message": "success"})
}

// QueryRequest 定义了文档检索 API 的请求体结构。
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"topK"`
	Hybrid   bool   `json:"hybrid"`
}

// Query 是只做文档检索的 Gin 处理函数，不调用 LLM。
func (h *QAHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QAHandler] 检索请求失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		log.Errorf("[QAHandler] 无法从 Gin 上下文中获取用户信息")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	results, err := h.docService.Query(c.Request.Context(), req.Question, user.ID, req.TopK, req.Hybrid)
	if err != nil {
		log.Errorf("[QAHandler] 文档检索失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败"})
		return
	}

	log.Infof("[QAHandler] 文档检索成功, question: '%s', 返回 %d 条结果", req.Question, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}
