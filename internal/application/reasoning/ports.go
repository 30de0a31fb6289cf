// Package reasoning 实现三层证据级联的升级控制器：图检索、
// 情景日志检索与片段重看，由充分性判定驱动状态迁移。
package reasoning

import (
	"context"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
)

// Action 充分性判定的动作
type Action string

const (
	// ActionAnswer 证据充分，直接作答
	ActionAnswer Action = "answer"
	// ActionEscalate 证据不足，请求更窄的调查
	ActionEscalate Action = "search"
)

// ParsedQuery 问题解析结果
type ParsedQuery struct {
	// Triples 结构化查询三元组，至少一条
	Triples []match.QueryTriple `json:"triples"`
	// Kind 问题类别，决定充分性策略
	Kind entity.QuestionKind `json:"kind"`
	// Scene 空间约束，如 "bedroom"
	Scene string `json:"scene,omitempty"`
	// Speakers 对话匹配的说话人
	Speakers []string `json:"speakers,omitempty"`
	// SpeakerStrict 是否要求包含全部说话人
	SpeakerStrict bool `json:"speaker_strict,omitempty"`
	// CompareItems 多项比较问题涉及的全部条目
	CompareItems []string `json:"compare_items,omitempty"`
	// ResultAllocation 每条三元组分配的候选数，0 用默认值
	ResultAllocation int `json:"result_allocation,omitempty"`
}

// Judgment 充分性判定或片段重看的结果
type Judgment struct {
	Action     Action   `json:"action"`
	Answer     string   `json:"answer,omitempty"`
	Confidence int      `json:"confidence,omitempty"`
	Citations  []string `json:"citations,omitempty"`
	// Segments 升级时要调查的片段编号
	Segments  []int  `json:"segments,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	// Extracted 片段重看时新抽取出的关系，可回写进图
	Extracted []*entity.Relationship `json:"extracted,omitempty"`
}

// QueryInterpreter 问题解析端口
//
// 输入畸形时返回 ParseError，对该问题视为致命且不重试。
type QueryInterpreter interface {
	Parse(ctx context.Context, question string) (*ParsedQuery, error)
}

// EvidenceJudge 证据充分性判定端口
type EvidenceJudge interface {
	Judge(ctx context.Context, question string, parsed *ParsedQuery, bundle *evidence.Bundle) (*Judgment, error)
}

// InspectRequest 片段重看请求
type InspectRequest struct {
	Question    string
	VideoID     string
	SegmentID   int
	Accumulated []entity.Finding
	// Last 为真时必须直接作答，不得再升级
	Last bool
}

// SegmentInspector 原始片段重看端口
//
// 指定片段缺少底层媒体时返回 SegmentUnavailable。
type SegmentInspector interface {
	Inspect(ctx context.Context, req InspectRequest) (*Judgment, error)
}
