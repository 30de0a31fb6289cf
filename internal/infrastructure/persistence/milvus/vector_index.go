// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"video-memory-qa/internal/domain/repository"
	"video-memory-qa/pkg/metrics"
)

// VectorIndex Milvus 召回索引实现
//
// client 为 nil 时索引视为关闭，调用方退化为全量扫描。
type VectorIndex struct {
	client *Client
}

// NewVectorIndex 创建召回索引
func NewVectorIndex(client *Client) *VectorIndex {
	return &VectorIndex{client: client}
}

// Enabled 索引是否可用
func (v *VectorIndex) Enabled() bool {
	return v != nil && v.client != nil && v.client.milvus != nil
}

// EnsureCollections 确保两个召回集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (v *VectorIndex) EnsureCollections(ctx context.Context) error {
	if !v.Enabled() {
		return fmt.Errorf("milvus client not configured")
	}

	for _, schema := range []*entity.Schema{RelationshipsSchema(), UtterancesSchema()} {
		name := schema.CollectionName
		exists, err := v.client.HasCollection(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			if err := v.createCollection(ctx, schema); err != nil {
				return err
			}
			// 新建集合时创建索引；若失败，允许后续由运维介入。
			_ = v.createIndex(ctx, name)
		}
		if err := v.client.LoadCollection(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// IndexRelationships 写入关系内容向量
func (v *VectorIndex) IndexRelationships(ctx context.Context, videoID string, ids []string, vectors [][]float32) error {
	return v.insert(ctx, CollectionRelationships, videoID, ids, vectors)
}

// IndexUtterances 写入对话文本向量
func (v *VectorIndex) IndexUtterances(ctx context.Context, videoID string, ids []string, vectors [][]float32) error {
	return v.insert(ctx, CollectionUtterances, videoID, ids, vectors)
}

// RecallRelationships 按查询向量召回关系候选
func (v *VectorIndex) RecallRelationships(ctx context.Context, videoID string, vector []float32, topK int) ([]repository.VectorHit, error) {
	return v.search(ctx, CollectionRelationships, videoID, vector, topK)
}

// RecallUtterances 按查询向量召回对话候选
func (v *VectorIndex) RecallUtterances(ctx context.Context, videoID string, vector []float32, topK int) ([]repository.VectorHit, error) {
	return v.search(ctx, CollectionUtterances, videoID, vector, topK)
}

func (v *VectorIndex) createCollection(ctx context.Context, schema *entity.Schema) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = v.client.CollectionName(schema.CollectionName)

	if err := v.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (v *VectorIndex) createIndex(ctx context.Context, collection string) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		v.client.config.HNSWM,
		v.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := v.client.milvus.CreateIndex(ctx, v.client.CollectionName(collection), "vector", idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (v *VectorIndex) insert(ctx context.Context, collection, videoID string, ids []string, vectors [][]float32) error {
	if !v.Enabled() {
		return fmt.Errorf("milvus client not configured")
	}
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("id count %d does not match vector count %d", len(ids), len(vectors))
	}

	ctx, span := tracer.Start(ctx, "milvus.Insert",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("video_id", videoID),
			attribute.Int("count", len(ids)),
		))
	defer span.End()

	collName := v.client.CollectionName(collection)
	partitionName := PartitionName(videoID)

	// 确保分区存在
	has, _ := v.client.milvus.HasPartition(ctx, collName, partitionName)
	if !has {
		if err := v.client.milvus.CreatePartition(ctx, collName, partitionName); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create partition: %w", err)
		}
	}

	videoIDs := make([]string, len(ids))
	for i := range videoIDs {
		videoIDs[i] = videoID
	}

	_, err := v.client.milvus.Insert(ctx, collName, partitionName,
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", VectorDimension, vectors),
		entity.NewColumnVarChar("video_id", videoIDs),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert vectors: %w", err)
	}
	return nil
}

func (v *VectorIndex) search(ctx context.Context, collection, videoID string, vector []float32, topK int) ([]repository.VectorHit, error) {
	if !v.Enabled() {
		return nil, fmt.Errorf("milvus client not configured")
	}

	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("video_id", videoID),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.MilvusSearchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	}()

	collName := v.client.CollectionName(collection)
	partitionName := PartitionName(videoID)

	// 分区尚未建立时直接返回空结果，避免 partition not found
	if has, err := v.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return []repository.VectorHit{}, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := v.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		fmt.Sprintf(`video_id == "%s"`, videoID),
		[]string{"id"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(collection, "error").Inc()
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(collection, "ok").Inc()

	var hits []repository.VectorHit
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			hit := repository.VectorHit{Score: result.Scores[i]}
			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				hit.ID = idCol.Data()[i]
			}
			hits = append(hits, hit)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}
