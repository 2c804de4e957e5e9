package handler

import (
	"errors"
	"net/http"

	"ai-assist-go/pkg/errs"
	"ai-assist-go/pkg/llm"
	"ai-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SettingsHandler 负责处理运行时设置相关的 API 请求。
type SettingsHandler struct {
	llmService *llm.Service
}

// NewSettingsHandler 创建一个新的 SettingsHandler 实例。
func NewSettingsHandler(llmService *llm.Service) *SettingsHandler {
	return &SettingsHandler{llmService: llmService}
}

// GetProvider 返回当前默认的 LLM 提供方。
func (h *SettingsHandler) GetProvider(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"data":    gin.H{"provider": string(h.llmService.Current())},
		"message": "success",
	})
}

// SetProviderRequest 定义了切换 LLM 提供方 API 的请求体结构。
type SetProviderRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// SetProvider 切换默认的 LLM 提供方。
// 未注册或未初始化成功的提供方会被拒绝，当前默认保持不变。
func (h *SettingsHandler) SetProvider(c *gin.Context) {
	var req SetProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：provider 不能为空"})
		return
	}

	if err := h.llmService.SwitchProvider(llm.Kind(req.Provider)); err != nil {
		log.Warnf("[SettingsHandler] 切换提供方失败: %v", err)
		if errors.Is(err, errs.ErrConfiguration) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Infof("[SettingsHandler] 默认提供方已切换为 '%s'", req.Provider)
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"data":    gin.H{"provider": req.Provider},
		"message": "success",
	})
}
