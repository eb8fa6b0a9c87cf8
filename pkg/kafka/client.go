// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"insight-qa-go/internal/config"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// maxAttempts 是单个事件的最大处理次数，达到后提交 offset 放弃重试。
const maxAttempts = 3

// EventProcessor 处理一条导入事件。
// 这使 Kafka 消费者与具体的持久化实现解耦。
type EventProcessor interface {
	Process(ctx context.Context, event tasks.IngestionEvent) error
}

// AttemptCounter 记录事件的失败次数。
type AttemptCounter interface {
	IncrAttempts(ctx context.Context, eventID string) (int64, error)
	ClearAttempts(ctx context.Context, eventID string) error
}

// Producer 把导入事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个导入事件，以会话 ID 作为消息键。
func (p *Producer) Publish(ctx context.Context, event tasks.IngestionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.SessionID), Value: value})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理导入事件，ctx 结束时返回。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor EventProcessor, counter AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}
		if handleMessage(ctx, m.Value, processor, counter) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// handleMessage 处理一条消息并返回是否应提交 offset。
// 失败次数未达到上限时不提交，让 Kafka 重新投递。
func handleMessage(ctx context.Context, value []byte, processor EventProcessor, counter AttemptCounter) bool {
	var event tasks.IngestionEvent
	if err := json.Unmarshal(value, &event); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	if err := processor.Process(ctx, event); err != nil {
		log.Errorf("处理导入事件失败: EventID=%s, Error: %v", event.EventID, err)
		attempts, incErr := counter.IncrAttempts(ctx, event.EventID)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("导入事件多次失败(>=%d)，提交 offset 终止重试: EventID=%s", maxAttempts, event.EventID)
			return true
		}
		return false
	}

	log.Infof("导入事件处理成功: EventID=%s, Status=%s", event.EventID, event.Status)
	_ = counter.ClearAttempts(ctx, event.EventID)
	return true
}

func brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
