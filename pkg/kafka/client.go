// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"

	"ai-assist-go/internal/config"
	"ai-assist-go/pkg/log"
	"ai-assist-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IndexTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceIndexTask 发送一个文档索引任务到 Kafka。
// 以 doc_id 作为消息 key，同一文档的任务落到同一分区。
func ProduceIndexTask(ctx context.Context, task tasks.IndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(task.DocID),
			Value: taskBytes,
		},
	)
}

const maxTaskAttempts = 3

// StartConsumer 启动一个 Kafka 消费者来处理索引任务。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "ai-assist-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	// 按 doc_id 统计本进程内的失败次数，达到阈值后提交 offset 终止重试
	attempts := make(map[string]int)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.IndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理索引任务: DocID=%s, FileName=%s", task.DocID, task.FileName)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理索引任务失败: DocID=%s, Error: %v", task.DocID, err)
			attempts[task.DocID]++
			if attempts[task.DocID] >= maxTaskAttempts {
				log.Errorf("索引任务多次失败(>=%d)，提交 offset 终止重试: DocID=%s", maxTaskAttempts, task.DocID)
				delete(attempts, task.DocID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// 未达阈值时不提交 offset，让 Kafka 自动重试
		} else {
			log.Infof("索引任务处理成功: DocID=%s", task.DocID)
			delete(attempts, task.DocID)
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
