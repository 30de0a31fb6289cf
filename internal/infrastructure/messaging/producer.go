// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishQABatch 发布视频问题批任务
func (p *Producer) PublishQABatch(ctx context.Context, batch *QABatchMessage) (string, error) {
	msg, err := NewMessage(batch.BatchID, "qa_batch", batch.VideoID, batch)
	if err != nil {
		return "", err
	}

	msg.SetMetadata("question_count", fmt.Sprintf("%d", len(batch.Questions)))
	if batch.IdempotencyKey != "" {
		msg.SetMetadata("idempotency_key", batch.IdempotencyKey)
	}

	return p.Publish(ctx, StreamQABatch, msg)
}

// PublishGraphIngest 发布图制品摄取任务
func (p *Producer) PublishGraphIngest(ctx context.Context, ingest *GraphIngestMessage) (string, error) {
	msg, err := NewMessage(ingest.VideoID, "graph_ingest", ingest.VideoID, ingest)
	if err != nil {
		return "", err
	}

	return p.Publish(ctx, StreamGraphIngest, msg)
}

// QuestionItem 批任务里的单个问题
type QuestionItem struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

// QABatchMessage 视频问题批消息
type QABatchMessage struct {
	BatchID        string         `json:"batch_id"`
	VideoID        string         `json:"video_id"`
	Questions      []QuestionItem `json:"questions"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// GraphIngestMessage 图制品摄取消息
type GraphIngestMessage struct {
	VideoID      string `json:"video_id"`
	ArtifactPath string `json:"artifact_path"`
	SegmentCount int    `json:"segment_count,omitempty"`
}
