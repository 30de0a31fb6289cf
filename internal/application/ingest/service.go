// Package ingest 负责图制品的落库与可选的向量索引构建
package ingest

import (
	"context"
	"fmt"
	"strings"

	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/domain/repository"
	"video-memory-qa/pkg/logger"
)

// Invalidator 摄取完成后需要失效的进程内缓存
type Invalidator interface {
	InvalidateVideo(videoID string)
}

// CacheInvalidator 摄取完成后需要失效的共享缓存
type CacheInvalidator interface {
	InvalidateVideo(ctx context.Context, videoID string) error
}

// Service 图制品摄取服务
type Service struct {
	graphs      repository.GraphStore
	logs        repository.SegmentLogStore
	index       repository.VectorIndex
	embedder    match.Embedder
	invalidator Invalidator
	cache       CacheInvalidator
	batchSize   int
}

// NewService 创建摄取服务，index 与 embedder 可为 nil（跳过向量索引）
func NewService(graphs repository.GraphStore, logs repository.SegmentLogStore, index repository.VectorIndex, embedder match.Embedder, invalidator Invalidator, cache CacheInvalidator, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{
		graphs:      graphs,
		logs:        logs,
		index:       index,
		embedder:    embedder,
		invalidator: invalidator,
		cache:       cache,
		batchSize:   batchSize,
	}
}

// IndexingEnabled 向量索引链路是否可用
func (s *Service) IndexingEnabled() bool {
	return s.index != nil && s.index.Enabled() && s.embedder != nil
}

// SaveArtifacts 落库一个视频的全部图制品
func (s *Service) SaveArtifacts(ctx context.Context, videoID string, rels []*entity.Relationship, utts []*entity.Utterance, logs []*entity.SegmentLog, segs []*entity.Segment) error {
	if strings.TrimSpace(videoID) == "" {
		return fmt.Errorf("video_id is required")
	}

	for _, rel := range rels {
		rel.VideoID = videoID
	}
	for _, utt := range utts {
		utt.VideoID = videoID
	}
	for _, log := range logs {
		log.VideoID = videoID
	}
	for _, seg := range segs {
		seg.VideoID = videoID
	}

	if err := s.logs.SaveSegments(ctx, segs); err != nil {
		return fmt.Errorf("save segments: %w", err)
	}
	if err := s.graphs.SaveRelationships(ctx, rels); err != nil {
		return fmt.Errorf("save relationships: %w", err)
	}
	if err := s.graphs.SaveUtterances(ctx, utts); err != nil {
		return fmt.Errorf("save utterances: %w", err)
	}
	if err := s.logs.SaveLogs(ctx, logs); err != nil {
		return fmt.Errorf("save segment logs: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateVideo(videoID)
	}
	if s.cache != nil {
		if err := s.cache.InvalidateVideo(ctx, videoID); err != nil {
			logger.Warn(ctx, "failed to invalidate video cache", "video_id", videoID, "error", err)
		}
	}

	logger.Info(ctx, "video artifacts saved",
		"video_id", videoID,
		"relationships", len(rels),
		"utterances", len(utts),
		"segment_logs", len(logs),
		"segments", len(segs),
	)
	return nil
}

// IndexVideo 为视频的关系与对话建立向量召回索引
//
// 索引是可选加速层，任何失败都不影响问答正确性。
func (s *Service) IndexVideo(ctx context.Context, videoID string) error {
	if s.index == nil || !s.index.Enabled() || s.embedder == nil {
		return nil
	}

	rels, err := s.graphs.ListRelationships(ctx, videoID)
	if err != nil {
		return fmt.Errorf("list relationships: %w", err)
	}
	if len(rels) > 0 {
		ids := make([]string, len(rels))
		texts := make([]string, len(rels))
		for i, rel := range rels {
			ids[i] = rel.ID
			texts[i] = rel.Render()
		}
		vectors, err := s.embedBatches(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed relationships: %w", err)
		}
		if err := s.index.IndexRelationships(ctx, videoID, ids, vectors); err != nil {
			return fmt.Errorf("index relationships: %w", err)
		}
	}

	utts, err := s.graphs.ListUtterances(ctx, videoID)
	if err != nil {
		return fmt.Errorf("list utterances: %w", err)
	}
	if len(utts) > 0 {
		ids := make([]string, len(utts))
		texts := make([]string, len(utts))
		for i, utt := range utts {
			ids[i] = utt.ID
			texts[i] = utt.Render()
		}
		vectors, err := s.embedBatches(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed utterances: %w", err)
		}
		if err := s.index.IndexUtterances(ctx, videoID, ids, vectors); err != nil {
			return fmt.Errorf("index utterances: %w", err)
		}
	}

	logger.Info(ctx, "video vectors indexed",
		"video_id", videoID,
		"relationships", len(rels),
		"utterances", len(utts),
	)
	return nil
}

// embedBatches 分批向量化并压缩为 float32
func (s *Service) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := s.embedder.EmbedStrings(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		for _, vec := range vectors {
			v32 := make([]float32, len(vec))
			for j, f := range vec {
				v32[j] = float32(f)
			}
			out = append(out, v32)
		}
	}
	return out, nil
}
