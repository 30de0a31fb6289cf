// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"fmt"
	"time"

	"video-memory-qa/internal/domain/entity"
)

// RelationshipPayload 摄取的一条关系边
//
// Source 与 Target 使用节点键语法：人物为 <name>，
// 物件为 name[@owner][#attribute]。
type RelationshipPayload struct {
	ID         string `json:"id,omitempty"`
	Source     string `json:"source" binding:"required,max=255"`
	Target     string `json:"target" binding:"required,max=255"`
	Content    string `json:"content" binding:"required,max=2000"`
	Confidence int    `json:"confidence" binding:"gte=0,lte=100"`
	SegmentID  int    `json:"segment_id" binding:"gte=0"`
	Scene      string `json:"scene,omitempty" binding:"max=255"`
}

// UtterancePayload 摄取的一条对话记录
type UtterancePayload struct {
	SegmentID int      `json:"segment_id" binding:"gte=1"`
	Index     int      `json:"index" binding:"gte=0"`
	Speakers  []string `json:"speakers,omitempty"`
	Text      string   `json:"text" binding:"required,max=4000"`
}

// SegmentLogPayload 摄取的一条片段日志
type SegmentLogPayload struct {
	SegmentID int    `json:"segment_id" binding:"gte=1"`
	Summary   string `json:"summary" binding:"required,max=8000"`
	Scene     string `json:"scene,omitempty" binding:"max=255"`
}

// SegmentPayload 摄取的一条片段元数据
type SegmentPayload struct {
	SegmentID int    `json:"segment_id" binding:"gte=1"`
	StartMs   int64  `json:"start_ms" binding:"gte=0"`
	EndMs     int64  `json:"end_ms" binding:"gtefield=StartMs"`
	MediaPath string `json:"media_path,omitempty" binding:"max=1024"`
}

// IngestArtifactsRequest 摄取图制品请求
type IngestArtifactsRequest struct {
	Relationships []RelationshipPayload `json:"relationships,omitempty" binding:"dive"`
	Utterances    []UtterancePayload    `json:"utterances,omitempty" binding:"dive"`
	SegmentLogs   []SegmentLogPayload   `json:"segment_logs,omitempty" binding:"dive"`
	Segments      []SegmentPayload      `json:"segments,omitempty" binding:"dive"`
}

// IngestArtifactsResponse 摄取受理响应
type IngestArtifactsResponse struct {
	VideoID       string `json:"video_id"`
	Relationships int    `json:"relationships"`
	Utterances    int    `json:"utterances"`
	SegmentLogs   int    `json:"segment_logs"`
	Segments      int    `json:"segments"`
	Indexing      bool   `json:"indexing"`
}

// ToRelationship 解析载荷为关系实体，节点键非法时报错
func (p RelationshipPayload) ToRelationship(videoID string) (*entity.Relationship, error) {
	source, ok := entity.ParseEntityRef(p.Source)
	if !ok {
		return nil, fmt.Errorf("invalid source node key: %q", p.Source)
	}
	target, ok := entity.ParseEntityRef(p.Target)
	if !ok {
		return nil, fmt.Errorf("invalid target node key: %q", p.Target)
	}
	if p.SegmentID == entity.HighLevelSegmentID && p.Scene != "" {
		return nil, fmt.Errorf("high-level relationship cannot carry a scene")
	}
	return &entity.Relationship{
		ID:         p.ID,
		VideoID:    videoID,
		Source:     source,
		Target:     target,
		Content:    p.Content,
		Confidence: p.Confidence,
		SegmentID:  p.SegmentID,
		Scene:      p.Scene,
	}, nil
}

// ToUtterance 转换载荷为对话实体
func (p UtterancePayload) ToUtterance(videoID string) *entity.Utterance {
	return &entity.Utterance{
		VideoID:   videoID,
		SegmentID: p.SegmentID,
		Index:     p.Index,
		Speakers:  p.Speakers,
		Text:      p.Text,
	}
}

// ToSegmentLog 转换载荷为片段日志实体
func (p SegmentLogPayload) ToSegmentLog(videoID string) *entity.SegmentLog {
	return &entity.SegmentLog{
		VideoID:   videoID,
		SegmentID: p.SegmentID,
		Summary:   p.Summary,
		Scene:     p.Scene,
	}
}

// ToSegment 转换载荷为片段元数据实体
func (p SegmentPayload) ToSegment(videoID string) *entity.Segment {
	return &entity.Segment{
		VideoID:   videoID,
		SegmentID: p.SegmentID,
		Start:     time.Duration(p.StartMs) * time.Millisecond,
		End:       time.Duration(p.EndMs) * time.Millisecond,
		MediaPath: p.MediaPath,
	}
}
