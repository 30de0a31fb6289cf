// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"video-memory-qa/internal/domain/entity"
)

// ResultsRepository 问答结果仓储实现
//
// 每个视频一行，结果映射整体存为 jsonb。合并时对行加锁，
// 并发批次不会互相覆盖对方已写入的问题结果。
type ResultsRepository struct {
	client *Client
	tx     *TxManager
}

// NewResultsRepository 创建结果仓储
func NewResultsRepository(client *Client) *ResultsRepository {
	return &ResultsRepository{client: client, tx: NewTxManager(client)}
}

// MergeResults 把若干结果合并进视频的结果映射
func (r *ResultsRepository) MergeResults(ctx context.Context, videoID string, results map[string]*entity.QAResult) error {
	ctx, span := tracer.Start(ctx, "postgres.ResultsRepository.MergeResults")
	defer span.End()

	if len(results) == 0 {
		return nil
	}

	return r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		q := getQuerier(txCtx, r.client.sqlDB)

		// 先占位，保证 FOR UPDATE 总能锁到行
		_, err := q.ExecContext(txCtx, `
			INSERT INTO video_results (video_id, payload, updated_at)
			VALUES ($1, '{}'::jsonb, NOW())
			ON CONFLICT (video_id) DO NOTHING
		`, videoID)
		if err != nil {
			return fmt.Errorf("failed to ensure results row: %w", err)
		}

		var payload []byte
		err = q.QueryRowContext(txCtx,
			`SELECT payload FROM video_results WHERE video_id = $1 FOR UPDATE`,
			videoID,
		).Scan(&payload)
		if err != nil {
			return fmt.Errorf("failed to lock results row: %w", err)
		}

		merged := make(map[string]*entity.QAResult)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &merged); err != nil {
				return fmt.Errorf("failed to decode results payload: %w", err)
			}
		}
		for id, result := range results {
			merged[id] = result
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to encode results payload: %w", err)
		}

		_, err = q.ExecContext(txCtx,
			`UPDATE video_results SET payload = $1, updated_at = NOW() WHERE video_id = $2`,
			data, videoID,
		)
		if err != nil {
			return fmt.Errorf("failed to write results payload: %w", err)
		}
		return nil
	})
}

// GetResults 读取视频的全部结果
func (r *ResultsRepository) GetResults(ctx context.Context, videoID string) (map[string]*entity.QAResult, error) {
	ctx, span := tracer.Start(ctx, "postgres.ResultsRepository.GetResults")
	defer span.End()

	q := getQuerier(ctx, r.client.sqlDB)

	var payload []byte
	err := q.QueryRowContext(ctx,
		`SELECT payload FROM video_results WHERE video_id = $1`,
		videoID,
	).Scan(&payload)
	if err != nil {
		if isNoRows(err) {
			return map[string]*entity.QAResult{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	results := make(map[string]*entity.QAResult)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &results); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to decode results payload: %w", err)
		}
	}
	return results, nil
}
