package reasoning

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/application/graph"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
	apperrors "video-memory-qa/pkg/errors"
)

// constantEmbedder 所有文本同一向量，近似相似度恒为 1
type constantEmbedder struct{}

func (constantEmbedder) EmbedStrings(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1}
	}
	return out, nil
}

type scriptedInterp struct {
	parsed *ParsedQuery
	err    error
}

func (s *scriptedInterp) Parse(context.Context, string) (*ParsedQuery, error) {
	return s.parsed, s.err
}

type scriptedJudge struct {
	judgments []*Judgment
	calls     int
}

func (s *scriptedJudge) Judge(context.Context, string, *ParsedQuery, *evidence.Bundle) (*Judgment, error) {
	j := s.judgments[s.calls]
	s.calls++
	return j, nil
}

type scriptedInspector struct {
	// script 按片段编号返回判定；缺省时升级
	script map[int]*Judgment
	errs   map[int]error
	calls  []InspectRequest
}

func (s *scriptedInspector) Inspect(_ context.Context, req InspectRequest) (*Judgment, error) {
	s.calls = append(s.calls, req)
	if err, ok := s.errs[req.SegmentID]; ok {
		return nil, err
	}
	if j, ok := s.script[req.SegmentID]; ok {
		return j, nil
	}
	return &Judgment{Action: ActionEscalate, Rationale: "nothing conclusive"}, nil
}

func (s *scriptedInspector) inspectedSegments() []int {
	out := make([]int, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.SegmentID)
	}
	return out
}

func testGraph(segments ...int) *graph.EvidenceGraph {
	var rels []*entity.Relationship
	for _, seg := range segments {
		rels = append(rels, &entity.Relationship{
			ID:        fmt.Sprintf("rel-%d", seg),
			Source:    entity.Character("Alice"),
			Target:    entity.Character("Bob"),
			Content:   "talks to",
			SegmentID: seg,
		})
	}
	return graph.Build("vid-1", rels, nil)
}

func generalParse() *ParsedQuery {
	return &ParsedQuery{
		Kind:    entity.KindGeneral,
		Triples: []match.QueryTriple{{Source: "<Alice>", Content: "talks to", Target: "<Bob>"}},
	}
}

func newTestController(interp QueryInterpreter, judge EvidenceJudge, inspector SegmentInspector, cfg Config) *Controller {
	matcher := match.NewMatcher(constantEmbedder{}, match.DefaultWeights())
	return NewController(interp, judge, inspector, matcher, &Policy{}, cfg)
}

func question() *entity.Question {
	return &entity.Question{ID: "q1", VideoID: "vid-1", Text: "what does Alice do?"}
}

func TestAnswerEmptyGraphShortCircuits(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	c := newTestController(interp, &scriptedJudge{}, &scriptedInspector{}, Config{})

	res, err := c.Answer(context.Background(), graph.Build("vid-1", nil, nil), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	assert.Equal(t, "No usable evidence was ingested for this video.", res.Answer)
}

func TestParseErrorIsFatalForQuestion(t *testing.T) {
	interp := &scriptedInterp{err: apperrors.ErrParseError}
	c := newTestController(interp, &scriptedJudge{}, &scriptedInspector{}, Config{})

	_, err := c.Answer(context.Background(), testGraph(1), nil, question())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeParseError, apperrors.AsAppError(err).Code)
}

func TestAnswerAtGraphTier(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionAnswer, Answer: "Alice talks to Bob", Confidence: 90, Citations: []string{"Alice talks to Bob (segment 2, confidence 0)"}},
	}}
	inspector := &scriptedInspector{}
	c := newTestController(interp, judge, inspector, Config{})

	res, err := c.Answer(context.Background(), testGraph(2), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	assert.Equal(t, "Alice talks to Bob", res.Answer)
	assert.Equal(t, 90, res.Confidence)
	assert.Equal(t, []string{"Alice talks to Bob (segment 2, confidence 0)"}, res.Citations)
	assert.Empty(t, res.SegmentsInspected)
	assert.Equal(t, 1, judge.calls)
	assert.Empty(t, inspector.calls)
}

func TestAnswerAtEpisodicTier(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{2}},
		{Action: ActionAnswer, Answer: "she cooks", Confidence: 85},
	}}
	inspector := &scriptedInspector{}
	c := newTestController(interp, judge, inspector, Config{})

	logs := []*entity.SegmentLog{{VideoID: "vid-1", SegmentID: 2, Summary: "Alice cooks dinner"}}
	res, err := c.Answer(context.Background(), testGraph(2), logs, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	assert.Equal(t, "she cooks", res.Answer)
	assert.Equal(t, 2, judge.calls)
	assert.Empty(t, inspector.calls)
}

func TestSegmentWatchAscendingWithinBudget(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{5, 2, 9, 2, 11, 3}},
		{Action: ActionEscalate, Segments: []int{5, 2, 9, 2, 11, 3}},
	}}
	inspector := &scriptedInspector{script: map[int]*Judgment{
		5: {Action: ActionAnswer, Answer: "found it", Confidence: 80},
	}}
	c := newTestController(interp, judge, inspector, Config{SegmentBudget: 3})

	res, err := c.Answer(context.Background(), testGraph(2, 3, 5, 9, 11), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	// 去重、升序、截断到预算
	assert.Equal(t, []int{2, 3, 5}, inspector.inspectedSegments())
	assert.Equal(t, []int{2, 3, 5}, res.SegmentsInspected)
	assert.True(t, inspector.calls[2].Last)
	assert.False(t, inspector.calls[0].Last)
	// 前两个片段的升级理由进入累积摘要
	require.Len(t, res.Findings, 2)
	assert.Equal(t, 2, res.Findings[0].SegmentID)
	assert.Equal(t, "nothing conclusive", res.Findings[0].Note)
}

func TestCountingDiscardsEarlyAnswer(t *testing.T) {
	parsed := generalParse()
	parsed.Kind = entity.KindCounting
	interp := &scriptedInterp{parsed: parsed}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{2, 5}},
		{Action: ActionEscalate, Segments: []int{2, 5}},
	}}
	inspector := &scriptedInspector{script: map[int]*Judgment{
		2: {Action: ActionAnswer, Answer: "two knives so far", Confidence: 70},
		5: {Action: ActionAnswer, Answer: "three knives total", Confidence: 90},
	}}
	c := newTestController(interp, judge, inspector, Config{SegmentBudget: 5})

	res, err := c.Answer(context.Background(), testGraph(2, 5), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	assert.Equal(t, "three knives total", res.Answer)
	// 提前作答被丢弃但保留为发现，最终回答也追加为发现
	assert.Equal(t, []int{2, 5}, inspector.inspectedSegments())
	require.Len(t, res.Findings, 2)
	assert.Equal(t, "two knives so far", res.Findings[0].Note)
	assert.Equal(t, "three knives total", res.Findings[1].Note)
}

func TestSegmentUnavailableSkipped(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{2, 5}},
		{Action: ActionEscalate, Segments: []int{2, 5}},
	}}
	inspector := &scriptedInspector{
		errs:   map[int]error{2: apperrors.ErrSegmentUnavailable},
		script: map[int]*Judgment{5: {Action: ActionAnswer, Answer: "seen in segment 5", Confidence: 75}},
	}
	c := newTestController(interp, judge, inspector, Config{})

	res, err := c.Answer(context.Background(), testGraph(2, 5), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	// 缺失片段不计入已重看列表
	assert.Equal(t, []int{5}, res.SegmentsInspected)
}

func TestUnavailableLastSegmentExhausts(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{4}},
		{Action: ActionEscalate, Segments: []int{4}},
	}}
	inspector := &scriptedInspector{errs: map[int]error{4: apperrors.ErrSegmentUnavailable}}
	c := newTestController(interp, judge, inspector, Config{})

	res, err := c.Answer(context.Background(), testGraph(4), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateExhausted, res.State)
	assert.Equal(t, 20, res.Confidence)
	assert.Contains(t, res.Answer, "insufficient")
}

func TestAllEscalationsExhaustBudget(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{2, 5}},
		{Action: ActionEscalate, Segments: []int{2, 5}},
	}}
	inspector := &scriptedInspector{script: map[int]*Judgment{
		2: {Action: ActionEscalate, Rationale: "Alice enters the kitchen"},
		5: {Action: ActionEscalate, Rationale: "Alice leaves"},
	}}
	c := newTestController(interp, judge, inspector, Config{})

	res, err := c.Answer(context.Background(), testGraph(2, 5), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateExhausted, res.State)
	assert.Equal(t, 20, res.Confidence)
	assert.Contains(t, res.Answer, "Partial findings")
	assert.Contains(t, res.Answer, "Segment 2: Alice enters the kitchen")
	require.Len(t, res.Findings, 2)
}

func TestMalformedEscalationFallsBackToAvailable(t *testing.T) {
	parsed := &ParsedQuery{
		Kind:    entity.KindGeneral,
		Triples: []match.QueryTriple{{Source: "<Carol>", Content: "sings"}},
	}
	interp := &scriptedInterp{parsed: parsed}
	// 升级请求不点名任何片段
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate},
		{Action: ActionEscalate},
	}}
	inspector := &scriptedInspector{script: map[int]*Judgment{
		7: {Action: ActionAnswer, Answer: "last resort", Confidence: 60},
	}}
	// 阈值高到近似匹配全部被过滤，证据包为空
	c := newTestController(interp, judge, inspector, Config{SegmentBudget: 2, MatchThreshold: 100})

	q := &entity.Question{ID: "q1", VideoID: "vid-1"}
	res, err := c.Answer(context.Background(), testGraph(3, 7, 9), nil, q)
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	// 兜底候选取全部可用片段，升序且受预算约束
	assert.Equal(t, []int{3, 7}, inspector.inspectedSegments())
}

type recordingWriteback struct {
	videoID string
	rels    []*entity.Relationship
}

func (w *recordingWriteback) AppendRelationships(_ context.Context, videoID string, rels []*entity.Relationship) error {
	w.videoID = videoID
	w.rels = append(w.rels, rels...)
	return nil
}

func TestWritebackReceivesExtractedRelationships(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &scriptedJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{2}},
		{Action: ActionEscalate, Segments: []int{2}},
	}}
	extracted := &entity.Relationship{
		Source:    entity.Character("Alice"),
		Target:    entity.Object("knife", "", ""),
		Content:   "drops",
		SegmentID: 2,
	}
	inspector := &scriptedInspector{script: map[int]*Judgment{
		2: {Action: ActionAnswer, Answer: "she drops the knife", Confidence: 80, Extracted: []*entity.Relationship{extracted}},
	}}
	c := newTestController(interp, judge, inspector, Config{})
	wb := &recordingWriteback{}
	c.WithWriteback(wb)

	res, err := c.Answer(context.Background(), testGraph(2), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)
	assert.Equal(t, "vid-1", wb.videoID)
	require.Len(t, wb.rels, 1)
	assert.Equal(t, "drops", wb.rels[0].Content)
}
