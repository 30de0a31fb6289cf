// Package entity 定义领域实体
package entity

import (
	"fmt"
	"time"
)

// QuestionState 问题在证据级联中的状态
type QuestionState string

const (
	// StateGraphSearch 第一层：实体关系图检索
	StateGraphSearch QuestionState = "graph_search"
	// StateEpisodicLookup 第二层：片段情景日志检索
	StateEpisodicLookup QuestionState = "episodic_lookup"
	// StateSegmentWatch 第三层：原始片段重看
	StateSegmentWatch QuestionState = "segment_watch"
	// StateAnswered 终态：证据充分，已作答
	StateAnswered QuestionState = "answered"
	// StateExhausted 终态：片段预算用尽，强制作答
	StateExhausted QuestionState = "exhausted"
	// StateFailed 终态：问题本身失败（视频缺失或问题无法解析）
	StateFailed QuestionState = "failed"
)

// Terminal 是否为终态
func (s QuestionState) Terminal() bool {
	return s == StateAnswered || s == StateExhausted || s == StateFailed
}

// QuestionKind 问题类别，决定证据充分性判定策略
type QuestionKind string

const (
	KindGeneral    QuestionKind = "general"
	KindLocation   QuestionKind = "location"
	KindCounting   QuestionKind = "counting"
	KindCausal     QuestionKind = "causal"
	KindComparison QuestionKind = "comparison"
)

// Question 针对单个视频的自然语言问题
type Question struct {
	ID      string `json:"id"`
	VideoID string `json:"video_id"`
	Text    string `json:"text"`
}

// Finding 级联过程中追加的一条片段发现
type Finding struct {
	SegmentID int    `json:"segment_id"`
	Note      string `json:"note"`
}

// String 渲染为累积日志行
func (f Finding) String() string {
	return fmt.Sprintf("Segment %d: %s", f.SegmentID, f.Note)
}

// QAResult 单个问题的最终回答
//
// Findings 为只追加的累积日志，按追加顺序保留级联过程中的
// 所有片段发现；SegmentsInspected 记录重看过的片段编号。
type QAResult struct {
	QuestionID        string        `json:"question_id"`
	VideoID           string        `json:"video_id"`
	Question          string        `json:"question"`
	Answer            string        `json:"answer"`
	Confidence        int           `json:"confidence"` // 0-100
	Citations         []string      `json:"citations,omitempty"`
	State             QuestionState `json:"state"`
	Findings          []Finding     `json:"findings,omitempty"`
	SegmentsInspected []int         `json:"segments_inspected,omitempty"`
	AnsweredAt        time.Time     `json:"answered_at"`
}
