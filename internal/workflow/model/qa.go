package model

// InterpretInput 问题解析链输入
type InterpretInput struct {
	Question string
	Provider string
	Model    string
}

// JudgeInput 证据裁判链输入
type JudgeInput struct {
	Question string
	Kind     string
	Triples  string
	Evidence string
	Provider string
	Model    string
}

// InspectInput 片段审查链输入
type InspectInput struct {
	Question       string
	SegmentID      int
	IsLast         bool
	Accumulated    string
	SegmentContext string
	Provider       string
	Model          string
}

// TriplePayload 模型输出的查询三元组
type TriplePayload struct {
	Source  string `json:"source"`
	Content string `json:"content"`
	Target  string `json:"target"`
}

// InterpretPayload 问题解析链的 JSON 输出
type InterpretPayload struct {
	Triples          []TriplePayload `json:"triples"`
	Kind             string          `json:"kind"`
	Scene            string          `json:"scene,omitempty"`
	Speakers         []string        `json:"speakers,omitempty"`
	SpeakerStrict    bool            `json:"speaker_strict,omitempty"`
	CompareItems     []string        `json:"compare_items,omitempty"`
	ResultAllocation int             `json:"result_allocation,omitempty"`
}

// ExtractedPayload 片段审查新抽取的关系
type ExtractedPayload struct {
	Source     string `json:"source"`
	Content    string `json:"content"`
	Target     string `json:"target"`
	Confidence int    `json:"confidence"`
	SegmentID  int    `json:"segment_id"`
	Scene      string `json:"scene,omitempty"`
}

// JudgmentPayload 裁判链与审查链共用的 JSON 输出
type JudgmentPayload struct {
	Action     string             `json:"action"`
	Answer     string             `json:"answer,omitempty"`
	Confidence int                `json:"confidence,omitempty"`
	Citations  []string           `json:"citations,omitempty"`
	Segments   []int              `json:"segments,omitempty"`
	Rationale  string             `json:"rationale,omitempty"`
	Extracted  []ExtractedPayload `json:"extracted,omitempty"`
}
