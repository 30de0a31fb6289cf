// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
)

// HighLevelSegmentID 高层关系的片段编号，表示跨越整段视频
const HighLevelSegmentID = 0

// Relationship 图中一条有向关系边
//
// SegmentID 为 HighLevelSegmentID 时表示视频级高层关系，此时
// Scene 为空；SegmentID 大于 0 时为片段级低层关系，Scene 记录
// 关系发生的场景。
type Relationship struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"video_id"`
	Source     EntityRef `json:"source"`
	Target     EntityRef `json:"target"`
	Content    string    `json:"content"`
	Confidence int       `json:"confidence"` // 0-100
	SegmentID  int       `json:"segment_id"`
	Scene      string    `json:"scene,omitempty"`
}

// IsHighLevel 是否为视频级高层关系
func (r *Relationship) IsHighLevel() bool {
	return r.SegmentID == HighLevelSegmentID
}

// Render 把关系边渲染为一句自然语言描述
func (r *Relationship) Render() string {
	var b strings.Builder
	b.WriteString(r.Source.Display())
	b.WriteString(" ")
	b.WriteString(strings.TrimSpace(r.Content))
	b.WriteString(" ")
	b.WriteString(r.Target.Display())
	if r.IsHighLevel() {
		b.WriteString(" (throughout the video")
	} else {
		fmt.Fprintf(&b, " (segment %d", r.SegmentID)
		if r.Scene != "" {
			b.WriteString(", at ")
			b.WriteString(r.Scene)
		}
	}
	fmt.Fprintf(&b, ", confidence %d)", r.Confidence)
	return b.String()
}

// Reversed 返回方向翻转后的副本，用于双向匹配
func (r *Relationship) Reversed() Relationship {
	rev := *r
	rev.Source, rev.Target = r.Target, r.Source
	return rev
}
