package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"ai-assist-go/internal/config"
	"ai-assist-go/internal/service"
	"ai-assist-go/pkg/errs"
	"ai-assist-go/pkg/kafka"
	"ai-assist-go/pkg/log"
	"ai-assist-go/pkg/storage"
	"ai-assist-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理文档上传与生命周期管理的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
	docCfg     config.DocumentConfig
	minioCfg   config.MinIOConfig
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, docCfg config.DocumentConfig, minioCfg config.MinIOConfig) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		docCfg:     docCfg,
		minioCfg:   minioCfg,
	}
}

// Upload 处理文档上传请求。
// 文件先落到 MinIO，再投递 Kafka 索引任务；投递失败时降级为同步索引。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}

	if fileHeader.Size > h.docCfg.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("文件大小超过限制 (%d 字节)", h.docCfg.MaxFileSize),
		})
		return
	}
	if !h.allowedExtension(fileHeader.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("不支持的文件类型, 允许: %s", strings.Join(h.docCfg.AllowedExtensions, ", ")),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	if len(content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件内容为空"})
		return
	}

	ctx := c.Request.Context()
	docID := service.Fingerprint(fileHeader.Filename, len(content))
	objectName := fmt.Sprintf("documents/%s/%s", docID, fileHeader.Filename)
	log.Infof("[DocumentHandler] 收到上传, file: %s, size: %d, docID: %s, user: %d",
		fileHeader.Filename, len(content), docID, user.ID)

	contentType := fileHeader.Header.Get("Content-Type")
	if err := storage.PutObject(ctx, h.minioCfg.BucketName, objectName, content, contentType); err != nil {
		log.Errorf("[DocumentHandler] 上传到MinIO失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "文件存储失败"})
		return
	}

	task := tasks.IndexTask{
		DocID:      docID,
		ObjectName: objectName,
		FileName:   fileHeader.Filename,
		FileSize:   int64(len(content)),
		OwnerID:    user.ID,
	}
	if err := kafka.ProduceIndexTask(ctx, task); err != nil {
		log.Warnf("[DocumentHandler] Kafka 投递失败, 降级为同步索引: %v", err)
		if _, err := h.docService.IndexDocument(ctx, content, fileHeader.Filename, user.ID); err != nil {
			log.Errorf("[DocumentHandler] 同步索引失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "文档索引失败"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"data": gin.H{
			"docId":    docID,
			"fileName": fileHeader.Filename,
			"fileSize": len(content),
		},
		"message": "success",
	})
}

// allowedExtension 检查文件扩展名是否在允许列表中。
func (h *DocumentHandler) allowedExtension(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, allowed := range h.docCfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// List 返回当前用户的文档列表。
func (h *DocumentHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	docs, err := h.docService.GetUserDocuments(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("[DocumentHandler] 获取文档列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取文档列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": docs, "message": "success"})
}

// Delete 把当前用户从指定文档的归属集合中移除。
func (h *DocumentHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	docID := c.Param("docId")
	if err := h.docService.DeleteDocument(c.Request.Context(), docID, user.ID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 删除文档失败, docID: %s, error: %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文档失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// UpdateStatusRequest 定义了更新文档激活状态 API 的请求体结构。
type UpdateStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// UpdateStatus 更新文档的激活状态，停用的文档不参与检索。
func (h *DocumentHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：active 不能为空"})
		return
	}

	docID := c.Param("docId")
	if err := h.docService.UpdateDocumentStatus(c.Request.Context(), docID, *req.Active); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 更新文档状态失败, docID: %s, error: %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新文档状态失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// Clear 删除当前用户的全部文档。
func (h *DocumentHandler) Clear(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	if err := h.docService.ClearUserDocuments(c.Request.Context(), user.ID); err != nil {
		log.Errorf("[DocumentHandler] 清理文档失败, user: %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "清理文档失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}
