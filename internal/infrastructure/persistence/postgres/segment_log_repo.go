// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"video-memory-qa/internal/domain/entity"
	apperrors "video-memory-qa/pkg/errors"
)

// SegmentLogRepository 片段情景日志仓储实现
type SegmentLogRepository struct {
	client *Client
}

// NewSegmentLogRepository 创建片段日志仓储
func NewSegmentLogRepository(client *Client) *SegmentLogRepository {
	return &SegmentLogRepository{client: client}
}

// SaveLogs 批量写入片段日志
func (r *SegmentLogRepository) SaveLogs(ctx context.Context, logs []*entity.SegmentLog) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentLogRepository.SaveLogs")
	defer span.End()

	if len(logs) == 0 {
		return nil
	}

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		INSERT INTO segment_logs (video_id, segment_id, summary, scene, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (video_id, segment_id) DO UPDATE
		SET summary = EXCLUDED.summary, scene = EXCLUDED.scene
	`

	for _, log := range logs {
		_, err := q.ExecContext(ctx, query, log.VideoID, log.SegmentID, log.Summary, log.Scene)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to save segment log: %w", err)
		}
	}
	return nil
}

// ListLogs 按片段编号升序列出视频的全部日志
func (r *SegmentLogRepository) ListLogs(ctx context.Context, videoID string) ([]*entity.SegmentLog, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentLogRepository.ListLogs")
	defer span.End()

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		SELECT video_id, segment_id, summary, scene
		FROM segment_logs
		WHERE video_id = $1
		ORDER BY segment_id
	`

	rows, err := q.QueryContext(ctx, query, videoID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list segment logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.SegmentLog
	for rows.Next() {
		var log entity.SegmentLog
		if err := rows.Scan(&log.VideoID, &log.SegmentID, &log.Summary, &log.Scene); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan segment log row: %w", err)
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// GetLog 获取指定片段的日志
func (r *SegmentLogRepository) GetLog(ctx context.Context, videoID string, segmentID int) (*entity.SegmentLog, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentLogRepository.GetLog")
	defer span.End()

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		SELECT video_id, segment_id, summary, scene
		FROM segment_logs
		WHERE video_id = $1 AND segment_id = $2
	`

	var log entity.SegmentLog
	err := q.QueryRowContext(ctx, query, videoID, segmentID).
		Scan(&log.VideoID, &log.SegmentID, &log.Summary, &log.Scene)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrSegmentNotFound.WithDetail(
				fmt.Sprintf("segment %d of video %s", segmentID, videoID))
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get segment log: %w", err)
	}
	return &log, nil
}

// SaveSegments 批量写入片段元数据
func (r *SegmentLogRepository) SaveSegments(ctx context.Context, segments []*entity.Segment) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentLogRepository.SaveSegments")
	defer span.End()

	if len(segments) == 0 {
		return nil
	}

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		INSERT INTO segments (video_id, segment_id, start_ms, end_ms, media_path, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (video_id, segment_id) DO UPDATE
		SET start_ms = EXCLUDED.start_ms, end_ms = EXCLUDED.end_ms, media_path = EXCLUDED.media_path
	`

	for _, seg := range segments {
		_, err := q.ExecContext(ctx, query,
			seg.VideoID, seg.SegmentID, seg.Start.Milliseconds(), seg.End.Milliseconds(), seg.MediaPath)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to save segment: %w", err)
		}
	}
	return nil
}

// ListSegments 列出视频的片段元数据，按编号升序
func (r *SegmentLogRepository) ListSegments(ctx context.Context, videoID string) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentLogRepository.ListSegments")
	defer span.End()

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		SELECT video_id, segment_id, start_ms, end_ms, media_path
		FROM segments
		WHERE video_id = $1
		ORDER BY segment_id
	`

	rows, err := q.QueryContext(ctx, query, videoID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []*entity.Segment
	for rows.Next() {
		var seg entity.Segment
		var startMs, endMs int64
		if err := rows.Scan(&seg.VideoID, &seg.SegmentID, &startMs, &endMs, &seg.MediaPath); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		seg.Start = time.Duration(startMs) * time.Millisecond
		seg.End = time.Duration(endMs) * time.Millisecond
		segments = append(segments, &seg)
	}
	return segments, rows.Err()
}
