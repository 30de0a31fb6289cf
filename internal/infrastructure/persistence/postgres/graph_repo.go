// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"video-memory-qa/internal/domain/entity"
)

// GraphRepository 实体关系图仓储实现
//
// 节点以键字符串落库（人物 <name>，物体 name[@owner][#attribute]），
// 读出时还原为结构化引用。
type GraphRepository struct {
	client *Client
}

// NewGraphRepository 创建图仓储
func NewGraphRepository(client *Client) *GraphRepository {
	return &GraphRepository{client: client}
}

// Exists 视频是否存在已摄取的制品
func (r *GraphRepository) Exists(ctx context.Context, videoID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.GraphRepository.Exists")
	defer span.End()

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		SELECT EXISTS(SELECT 1 FROM relationships WHERE video_id = $1)
			OR EXISTS(SELECT 1 FROM utterances WHERE video_id = $1)
			OR EXISTS(SELECT 1 FROM segment_logs WHERE video_id = $1)
	`

	var exists bool
	if err := q.QueryRowContext(ctx, query, videoID).Scan(&exists); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check video existence: %w", err)
	}
	return exists, nil
}

// SaveRelationships 批量写入关系边
func (r *GraphRepository) SaveRelationships(ctx context.Context, rels []*entity.Relationship) error {
	ctx, span := tracer.Start(ctx, "postgres.GraphRepository.SaveRelationships")
	defer span.End()

	if len(rels) == 0 {
		return nil
	}

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		INSERT INTO relationships (id, video_id, source, target, content, confidence, segment_id, scene, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, confidence = EXCLUDED.confidence, scene = EXCLUDED.scene
	`

	for _, rel := range rels {
		if rel.ID == "" {
			rel.ID = uuid.NewString()
		}
		_, err := q.ExecContext(ctx, query,
			rel.ID, rel.VideoID, rel.Source.Key(), rel.Target.Key(),
			rel.Content, rel.Confidence, rel.SegmentID, rel.Scene,
		)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to save relationship: %w", err)
		}
	}
	return nil
}

// ListRelationships 列出视频的全部关系边
func (r *GraphRepository) ListRelationships(ctx context.Context, videoID string) ([]*entity.Relationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.GraphRepository.ListRelationships")
	defer span.End()

	query := `
		SELECT id, video_id, source, target, content, confidence, segment_id, scene
		FROM relationships
		WHERE video_id = $1
		ORDER BY segment_id, id
	`

	return r.queryRelationships(ctx, query, videoID)
}

// ListHighLevel 只列出视频级高层关系
func (r *GraphRepository) ListHighLevel(ctx context.Context, videoID string) ([]*entity.Relationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.GraphRepository.ListHighLevel")
	defer span.End()

	query := `
		SELECT id, video_id, source, target, content, confidence, segment_id, scene
		FROM relationships
		WHERE video_id = $1 AND segment_id = 0
		ORDER BY id
	`

	return r.queryRelationships(ctx, query, videoID)
}

// ListBySegment 列出指定片段的低层关系
func (r *GraphRepository) ListBySegment(ctx context.Context, videoID string, segmentID int) ([]*entity.Relationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.GraphRepository.ListBySegment")
	defer span.End()

	query := `
		SELECT id, video_id, source, target, content, confidence, segment_id, scene
		FROM relationships
		WHERE video_id = $1 AND segment_id = $2
		ORDER BY id
	`

	return r.queryRelationships(ctx, query, videoID, segmentID)
}

// SaveUtterances 批量写入对话记录
func (r *GraphRepository) SaveUtterances(ctx context.Context, utts []*entity.Utterance) error {
	ctx, span := tracer.Start(ctx, "postgres.GraphRepository.SaveUtterances")
	defer span.End()

	if len(utts) == 0 {
		return nil
	}

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		INSERT INTO utterances (id, video_id, segment_id, idx, speakers, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET speakers = EXCLUDED.speakers, text = EXCLUDED.text
	`

	for _, utt := range utts {
		if utt.ID == "" {
			utt.ID = uuid.NewString()
		}
		speakersJSON, _ := json.Marshal(utt.Speakers)
		_, err := q.ExecContext(ctx, query,
			utt.ID, utt.VideoID, utt.SegmentID, utt.Index, speakersJSON, utt.Text,
		)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to save utterance: %w", err)
		}
	}
	return nil
}

// ListUtterances 按全局序号升序列出视频的全部对话
func (r *GraphRepository) ListUtterances(ctx context.Context, videoID string) ([]*entity.Utterance, error) {
	ctx, span := tracer.Start(ctx, "postgres.GraphRepository.ListUtterances")
	defer span.End()

	q := getQuerier(ctx, r.client.sqlDB)

	query := `
		SELECT id, video_id, segment_id, idx, speakers, text
		FROM utterances
		WHERE video_id = $1
		ORDER BY idx
	`

	rows, err := q.QueryContext(ctx, query, videoID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list utterances: %w", err)
	}
	defer rows.Close()

	var utts []*entity.Utterance
	for rows.Next() {
		utt, err := scanUtterance(rows)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		utts = append(utts, utt)
	}
	return utts, rows.Err()
}

// queryRelationships 通用查询关系边
func (r *GraphRepository) queryRelationships(ctx context.Context, query string, args ...interface{}) ([]*entity.Relationship, error) {
	q := getQuerier(ctx, r.client.sqlDB)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []*entity.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// scanRelationship 扫描单行关系数据
func scanRelationship(rows *sql.Rows) (*entity.Relationship, error) {
	var rel entity.Relationship
	var source, target string

	err := rows.Scan(
		&rel.ID, &rel.VideoID, &source, &target,
		&rel.Content, &rel.Confidence, &rel.SegmentID, &rel.Scene,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan relationship row: %w", err)
	}

	ref, ok := entity.ParseEntityRef(source)
	if !ok {
		return nil, fmt.Errorf("malformed source node key %q for relationship %s", source, rel.ID)
	}
	rel.Source = ref

	ref, ok = entity.ParseEntityRef(target)
	if !ok {
		return nil, fmt.Errorf("malformed target node key %q for relationship %s", target, rel.ID)
	}
	rel.Target = ref

	return &rel, nil
}

// scanUtterance 扫描单行对话数据
func scanUtterance(rows *sql.Rows) (*entity.Utterance, error) {
	var utt entity.Utterance
	var speakersJSON []byte

	err := rows.Scan(&utt.ID, &utt.VideoID, &utt.SegmentID, &utt.Index, &speakersJSON, &utt.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to scan utterance row: %w", err)
	}
	json.Unmarshal(speakersJSON, &utt.Speakers)

	return &utt, nil
}
