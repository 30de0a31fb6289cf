package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
)

func exactMatchOn(rel *entity.Relationship, score float64) match.Match {
	return match.Match{Rel: rel, Score: score, Exact: true}
}

func charRel(id string, segment int) *entity.Relationship {
	return &entity.Relationship{
		ID:        id,
		Source:    entity.Character("Alice"),
		Target:    entity.Character("Bob"),
		Content:   "talks to",
		SegmentID: segment,
	}
}

func objRel(id string, segment int) *entity.Relationship {
	return &entity.Relationship{
		ID:        id,
		Source:    entity.Character("Alice"),
		Target:    entity.Object("drawer", "", ""),
		Content:   "puts knife in",
		SegmentID: segment,
	}
}

func answer(confidence int) *Judgment {
	return &Judgment{Action: ActionAnswer, Answer: "yes", Confidence: confidence}
}

func TestVetPassesThroughEscalations(t *testing.T) {
	p := &Policy{ConfidenceFloor: 70}
	j := &Judgment{Action: ActionEscalate, Segments: []int{4}}
	got := p.Vet(&ParsedQuery{Kind: entity.KindGeneral}, evidence.Assemble(nil, nil), j, false)
	assert.Same(t, j, got)
}

func TestVetLocation(t *testing.T) {
	p := &Policy{ConfidenceFloor: 70}
	parsed := &ParsedQuery{Kind: entity.KindLocation}

	sceneOnly := evidence.Assemble([]match.Match{exactMatchOn(charRel("r1", 3), 10)}, nil)
	got := p.Vet(parsed, sceneOnly, answer(95), false)
	assert.Equal(t, ActionEscalate, got.Action)
	assert.Equal(t, []int{3}, got.Segments)

	container := evidence.Assemble([]match.Match{exactMatchOn(objRel("r2", 3), 10)}, nil)
	got = p.Vet(parsed, container, answer(95), false)
	assert.Equal(t, ActionAnswer, got.Action)

	// 片段日志也算容器级证据
	withLog := evidence.Assemble([]match.Match{exactMatchOn(charRel("r3", 3), 10)}, nil)
	withLog.AttachLogs([]*entity.SegmentLog{{SegmentID: 3, Summary: "knife in the drawer"}})
	got = p.Vet(parsed, withLog, answer(95), true)
	assert.Equal(t, ActionAnswer, got.Action)
}

func TestVetCounting(t *testing.T) {
	p := &Policy{ConfidenceFloor: 70}
	parsed := &ParsedQuery{Kind: entity.KindCounting}

	b := evidence.Assemble([]match.Match{
		exactMatchOn(charRel("r1", 2), 10),
		exactMatchOn(objRel("r2", 6), 10),
	}, nil)

	// 图层一律升级
	got := p.Vet(parsed, b, answer(99), false)
	assert.Equal(t, ActionEscalate, got.Action)

	// 部分覆盖仍升级
	b.AttachLogs([]*entity.SegmentLog{{SegmentID: 2, Summary: "one knife"}})
	got = p.Vet(parsed, b, answer(99), true)
	assert.Equal(t, ActionEscalate, got.Action)

	// 全覆盖才放行
	b.AttachLogs([]*entity.SegmentLog{{SegmentID: 6, Summary: "another knife"}})
	got = p.Vet(parsed, b, answer(99), true)
	assert.Equal(t, ActionAnswer, got.Action)
}

func TestVetCausal(t *testing.T) {
	p := &Policy{ConfidenceFloor: 70}
	parsed := &ParsedQuery{Kind: entity.KindCausal}

	noDialogue := evidence.Assemble([]match.Match{exactMatchOn(charRel("r1", 3), 10)}, nil)
	got := p.Vet(parsed, noDialogue, answer(95), true)
	assert.Equal(t, ActionEscalate, got.Action)

	withDialogue := evidence.Assemble([]match.Match{exactMatchOn(charRel("r1", 3), 10)}, []match.DialogueMatch{{
		Utt:   &entity.Utterance{ID: "u1", SegmentID: 3, Index: 1, Speakers: []string{"Alice"}, Text: "because I was angry"},
		Score: 1,
	}})
	got = p.Vet(parsed, withDialogue, answer(95), true)
	assert.Equal(t, ActionAnswer, got.Action)
}

func TestVetComparison(t *testing.T) {
	p := &Policy{ConfidenceFloor: 70}
	parsed := &ParsedQuery{Kind: entity.KindComparison, CompareItems: []string{"Alice", "Carol"}}

	b := evidence.Assemble([]match.Match{exactMatchOn(charRel("r1", 3), 10)}, nil)
	got := p.Vet(parsed, b, answer(95), true)
	assert.Equal(t, ActionEscalate, got.Action)

	parsed.CompareItems = []string{"Alice", "Bob"}
	got = p.Vet(parsed, b, answer(95), true)
	assert.Equal(t, ActionAnswer, got.Action)
}

func TestVetGeneralConfidenceFloor(t *testing.T) {
	p := &Policy{ConfidenceFloor: 70}
	parsed := &ParsedQuery{Kind: entity.KindGeneral}
	b := evidence.Assemble([]match.Match{exactMatchOn(charRel("r1", 3), 10)}, nil)

	got := p.Vet(parsed, b, answer(69), false)
	assert.Equal(t, ActionEscalate, got.Action)

	got = p.Vet(parsed, b, answer(70), false)
	assert.Equal(t, ActionAnswer, got.Action)
}

func TestVetGeneralConflicts(t *testing.T) {
	p := &Policy{ConfidenceFloor: 50}
	parsed := &ParsedQuery{Kind: entity.KindGeneral}

	a := charRel("r1", 3)
	conflicting := charRel("r2", 3)
	conflicting.Target = entity.Character("Carol")
	b := evidence.Assemble([]match.Match{exactMatchOn(a, 10), exactMatchOn(conflicting, 9)}, nil)

	got := p.Vet(parsed, b, answer(95), false)
	require.Equal(t, ActionEscalate, got.Action)
	assert.Contains(t, got.Rationale, "conflicting")

	// 不同片段的同形关系不算冲突
	later := charRel("r3", 7)
	later.Target = entity.Character("Carol")
	noConflict := evidence.Assemble([]match.Match{exactMatchOn(a, 10), exactMatchOn(later, 9)}, nil)
	got = p.Vet(parsed, noConflict, answer(95), false)
	assert.Equal(t, ActionAnswer, got.Action)
}
