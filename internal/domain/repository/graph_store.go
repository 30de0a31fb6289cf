// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"video-memory-qa/internal/domain/entity"
)

// GraphStore 实体关系图仓储接口
//
// 摄取阶段写入，问答阶段只读。
type GraphStore interface {
	// Exists 视频是否存在已摄取的图制品
	//
	// 区分"视频不存在"（错误）与"图为空"（合法状态）。
	Exists(ctx context.Context, videoID string) (bool, error)

	// SaveRelationships 批量写入关系边
	SaveRelationships(ctx context.Context, rels []*entity.Relationship) error

	// ListRelationships 列出视频的全部关系边
	ListRelationships(ctx context.Context, videoID string) ([]*entity.Relationship, error)

	// ListHighLevel 只列出视频级高层关系
	ListHighLevel(ctx context.Context, videoID string) ([]*entity.Relationship, error)

	// ListBySegment 列出指定片段的低层关系
	ListBySegment(ctx context.Context, videoID string, segmentID int) ([]*entity.Relationship, error)

	// SaveUtterances 批量写入对话记录
	SaveUtterances(ctx context.Context, utts []*entity.Utterance) error

	// ListUtterances 按全局序号升序列出视频的全部对话
	ListUtterances(ctx context.Context, videoID string) ([]*entity.Utterance, error)
}

// SegmentLogStore 片段情景日志仓储接口
type SegmentLogStore interface {
	// SaveLogs 批量写入片段日志
	SaveLogs(ctx context.Context, logs []*entity.SegmentLog) error

	// SaveSegments 批量写入片段元数据
	SaveSegments(ctx context.Context, segments []*entity.Segment) error

	// ListLogs 按片段编号升序列出视频的全部日志
	ListLogs(ctx context.Context, videoID string) ([]*entity.SegmentLog, error)

	// GetLog 获取指定片段的日志
	GetLog(ctx context.Context, videoID string, segmentID int) (*entity.SegmentLog, error)

	// ListSegments 列出视频的片段元数据，按编号升序
	ListSegments(ctx context.Context, videoID string) ([]*entity.Segment, error)
}

// ResultsStore 问答结果仓储接口
//
// 每个视频对应一份问题到结果的映射。MergeResults 必须以
// 读-合并-写的方式原子执行，并发合并不得互相覆盖。
type ResultsStore interface {
	// MergeResults 把若干结果合并进视频的结果映射
	MergeResults(ctx context.Context, videoID string, results map[string]*entity.QAResult) error

	// GetResults 读取视频的全部结果
	GetResults(ctx context.Context, videoID string) (map[string]*entity.QAResult, error)
}
