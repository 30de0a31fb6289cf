// Package repository 定义数据访问层接口
package repository

import (
	"context"
)

// VectorHit 向量召回的一条命中
type VectorHit struct {
	ID    string
	Score float32
}

// VectorIndex 可选的向量召回索引
//
// 仅用于缩小候选集合，召回结果不参与最终打分，索引不可用时
// 调用方退化为全量扫描，正确性不受影响。
type VectorIndex interface {
	// Enabled 索引是否可用
	Enabled() bool

	// IndexRelationships 写入关系内容向量
	IndexRelationships(ctx context.Context, videoID string, ids []string, vectors [][]float32) error

	// IndexUtterances 写入对话文本向量
	IndexUtterances(ctx context.Context, videoID string, ids []string, vectors [][]float32) error

	// RecallRelationships 按查询向量召回关系候选
	RecallRelationships(ctx context.Context, videoID string, vector []float32, topK int) ([]VectorHit, error)

	// RecallUtterances 按查询向量召回对话候选
	RecallUtterances(ctx context.Context, videoID string, vector []float32, topK int) ([]VectorHit, error)
}
