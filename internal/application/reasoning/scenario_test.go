package reasoning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/application/graph"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
)

// citingJudge 有最高分精确匹配即作答并引用该关系
type citingJudge struct {
	calls int
}

func (j *citingJudge) Judge(_ context.Context, _ string, _ *ParsedQuery, bundle *evidence.Bundle) (*Judgment, error) {
	j.calls++
	if m, ok := bundle.BestExact(); ok {
		return &Judgment{
			Action:     ActionAnswer,
			Answer:     "Alice and Bob are friends throughout the video.",
			Confidence: m.Rel.Confidence,
			Citations:  []string{m.Rel.Render()},
		}, nil
	}
	return &Judgment{Action: ActionEscalate, Rationale: "no exact evidence"}, nil
}

// 关系类问题在图层直接作答，引用命中的高层关系边
func TestFriendRelationshipAnsweredAtGraphTier(t *testing.T) {
	rels := []*entity.Relationship{
		{
			ID:         "rel-friend",
			Source:     entity.Character("Alice"),
			Target:     entity.Character("Bob"),
			Content:    "friend",
			Confidence: 85,
			SegmentID:  entity.HighLevelSegmentID,
		},
		{
			ID:         "rel-cup",
			Source:     entity.Character("Alice"),
			Target:     entity.Character("Bob"),
			Content:    "hands a cup to",
			Confidence: 60,
			SegmentID:  4,
			Scene:      "kitchen",
		},
	}
	g := graph.Build("vid-1", rels, nil)

	interp := &scriptedInterp{parsed: &ParsedQuery{
		Kind:    entity.KindGeneral,
		Triples: []match.QueryTriple{{Source: "<Alice>", Content: "friend", Target: "<Bob>"}},
	}}
	judge := &citingJudge{}
	inspector := &scriptedInspector{}
	matcher := match.NewMatcher(constantEmbedder{}, match.DefaultWeights())
	c := NewController(interp, judge, inspector, matcher, &Policy{ConfidenceFloor: 70}, Config{})

	q := &entity.Question{ID: "q1", VideoID: "vid-1", Text: "What is the relationship between Alice and Bob?"}
	res, err := c.Answer(context.Background(), g, nil, q)
	require.NoError(t, err)

	assert.Equal(t, entity.StateAnswered, res.State)
	assert.Equal(t, 85, res.Confidence)
	assert.Equal(t, []string{"Alice friend Bob (throughout the video, confidence 85)"}, res.Citations)
	assert.Empty(t, res.SegmentsInspected)
	assert.Equal(t, 1, judge.calls)
	assert.Empty(t, inspector.calls)
}

// 位置类问题在图层只有房间级场景时升级，在情景层由片段日志给
// 出容器级位置后作答
func TestLocationEscalatesToEpisodicLog(t *testing.T) {
	rels := []*entity.Relationship{{
		ID:         "rel-key",
		Source:     entity.Character("Alice"),
		Target:     entity.Character("Bob"),
		Content:    "talks about the spare key",
		Confidence: 70,
		SegmentID:  3,
		Scene:      "bedroom",
	}}
	g := graph.Build("vid-1", rels, nil)
	logs := []*entity.SegmentLog{{
		VideoID:   "vid-1",
		SegmentID: 3,
		Summary:   "Alice puts the key on the bedside table",
		Scene:     "bedroom",
	}}

	interp := &scriptedInterp{parsed: &ParsedQuery{
		Kind:    entity.KindLocation,
		Scene:   "bedroom",
		Triples: []match.QueryTriple{{Source: "<Alice>", Content: "talks about the spare key", Target: "<Bob>"}},
	}}
	judge := &scriptedJudge{judgments: []*Judgment{
		// 图层回答只有房间级信息，会被充分性校验降级为升级
		{Action: ActionAnswer, Answer: "somewhere in the bedroom", Confidence: 80},
		{Action: ActionAnswer, Answer: "on the bedside table", Confidence: 90, Citations: []string{"Segment 3 log: Alice puts the key on the bedside table"}},
	}}
	inspector := &scriptedInspector{}
	c := newTestController(interp, judge, inspector, Config{})

	q := &entity.Question{ID: "q1", VideoID: "vid-1", Text: "Where is the key?"}
	res, err := c.Answer(context.Background(), g, logs, q)
	require.NoError(t, err)

	assert.Equal(t, entity.StateAnswered, res.State)
	assert.Equal(t, "on the bedside table", res.Answer)
	assert.Equal(t, 90, res.Confidence)
	assert.Equal(t, []string{"Segment 3 log: Alice puts the key on the bedside table"}, res.Citations)
	assert.Equal(t, 2, judge.calls)
	assert.Empty(t, inspector.calls)
}

// orderRecordingJudge 记录每次判定时证据包的候选片段顺序
type orderRecordingJudge struct {
	judgments []*Judgment
	orders    [][]int
}

func (j *orderRecordingJudge) Judge(_ context.Context, _ string, _ *ParsedQuery, bundle *evidence.Bundle) (*Judgment, error) {
	j.orders = append(j.orders, bundle.CandidateSegments())
	next := j.judgments[len(j.orders)-1]
	return next, nil
}

func TestEpisodicTierAnchorsTemporalBonus(t *testing.T) {
	interp := &scriptedInterp{parsed: generalParse()}
	judge := &orderRecordingJudge{judgments: []*Judgment{
		{Action: ActionEscalate, Segments: []int{8}},
		{Action: ActionAnswer, Answer: "near the end", Confidence: 80},
	}}
	inspector := &scriptedInspector{}
	c := newTestController(interp, judge, inspector, Config{})

	res, err := c.Answer(context.Background(), testGraph(4, 9), nil, question())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAnswered, res.State)

	require.Len(t, judge.orders, 2)
	// 图层无锚点，同分按片段编号升序
	assert.Equal(t, []int{4, 9}, judge.orders[0])
	// 情景层以片段 8 为锚点重打分，邻近片段 9 排到前面
	assert.Equal(t, []int{9, 4}, judge.orders[1])
}
