// Package pipeline 定义了文档索引任务的异步处理流程。
package pipeline

import (
	"context"
	"fmt"

	"ai-assist-go/internal/config"
	"ai-assist-go/internal/service"
	"ai-assist-go/pkg/log"
	"ai-assist-go/pkg/storage"
	"ai-assist-go/pkg/tasks"
)

// Processor 消费索引任务：从 MinIO 取回原始文件并交给文档服务索引。
type Processor struct {
	docService service.DocumentService
	minioCfg   config.MinIOConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(docService service.DocumentService, minioCfg config.MinIOConfig) *Processor {
	return &Processor{
		docService: docService,
		minioCfg:   minioCfg,
	}
}

// Process 是索引任务的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.IndexTask) error {
	log.Infof("[Processor] 开始处理索引任务, DocID: %s, FileName: %s, OwnerID: %d", task.DocID, task.FileName, task.OwnerID)

	// 1. 从 MinIO 下载文件
	content, err := storage.GetObject(ctx, p.minioCfg.BucketName, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	log.Infof("[Processor] 文件下载成功, 大小: %d字节", len(content))

	// 2. 提取、分块、向量化并索引
	docID, err := p.docService.IndexDocument(ctx, content, task.FileName, task.OwnerID)
	if err != nil {
		log.Errorf("[Processor] 索引文档失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("索引文档失败: %w", err)
	}

	// 任务里的 DocID 是上传时按同样指纹算出的，二者不一致说明上传与索引间文件被改动
	if docID != task.DocID {
		log.Warnf("[Processor] 指纹不一致, 任务: %s, 实际: %s", task.DocID, docID)
	}

	log.Infof("[Processor] 索引任务处理完成, DocID: %s", docID)
	return nil
}
