// Package entity 定义领域实体
package entity

import (
	"time"
)

// Segment 视频片段元数据
type Segment struct {
	VideoID   string        `json:"video_id"`
	SegmentID int           `json:"segment_id"` // 从 1 开始编号
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
	MediaPath string        `json:"media_path,omitempty"`
}

// SegmentLog 片段级情景日志
//
// 摄取阶段为每个片段生成一条自由文本摘要，记录该片段内
// 发生的事件、出现的人物与场景。
type SegmentLog struct {
	VideoID   string `json:"video_id"`
	SegmentID int    `json:"segment_id"`
	Summary   string `json:"summary"`
	Scene     string `json:"scene,omitempty"`
}
