package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
)

func relMatch(id string, segment int, score float64, exact bool) match.Match {
	return match.Match{
		Rel: &entity.Relationship{
			ID:        id,
			Source:    entity.Character("Alice"),
			Target:    entity.Character("Bob"),
			Content:   "talks to",
			SegmentID: segment,
			Scene:     "kitchen",
		},
		Score: score,
		Exact: exact,
	}
}

func diaMatch(id string, segment, index int, score float64) match.DialogueMatch {
	return match.DialogueMatch{
		Utt:   &entity.Utterance{ID: id, SegmentID: segment, Index: index, Speakers: []string{"Alice"}, Text: "hello"},
		Score: score,
	}
}

func TestAssembleGroupsBySegment(t *testing.T) {
	high := relMatch("high", entity.HighLevelSegmentID, 10, true)
	high.Rel.Scene = ""

	b := Assemble([]match.Match{
		high,
		relMatch("r3a", 3, 1.0, false),
		relMatch("r5", 5, 4.0, true),
		relMatch("r3b", 3, 2.0, false),
	}, []match.DialogueMatch{
		diaMatch("d3", 3, 1, 0.5),
	})

	require.Len(t, b.HighLevel, 1)
	assert.Equal(t, "high", b.HighLevel[0].Rel.ID)

	require.Len(t, b.Groups, 2)
	// 片段 5 得分 4.0，片段 3 聚合得分 3.5
	assert.Equal(t, 5, b.Groups[0].SegmentID)
	assert.Equal(t, 3, b.Groups[1].SegmentID)
	assert.InDelta(t, 3.5, b.Groups[1].Score, 1e-9)
	assert.Len(t, b.Groups[1].Relationships, 2)
	assert.Len(t, b.Groups[1].Dialogue, 1)
	assert.Equal(t, "kitchen", b.Groups[1].Scene)
}

func TestAssembleTieBreaksBySegmentID(t *testing.T) {
	b := Assemble([]match.Match{
		relMatch("r7", 7, 2.0, false),
		relMatch("r2", 2, 2.0, false),
	}, nil)
	require.Len(t, b.Groups, 2)
	assert.Equal(t, 2, b.Groups[0].SegmentID)
	assert.Equal(t, 7, b.Groups[1].SegmentID)
}

func TestAttachLogsPreservesEvidence(t *testing.T) {
	b := Assemble([]match.Match{relMatch("r3", 3, 2.0, true)}, nil)
	b.AttachLogs([]*entity.SegmentLog{
		{SegmentID: 3, Summary: "Alice cooks", Scene: "kitchen"},
		{SegmentID: 8, Summary: "Bob leaves", Scene: "hallway"},
	})

	require.Len(t, b.Groups, 2)
	var seg3, seg8 *SegmentGroup
	for _, g := range b.Groups {
		switch g.SegmentID {
		case 3:
			seg3 = g
		case 8:
			seg8 = g
		}
	}
	require.NotNil(t, seg3)
	require.NotNil(t, seg8)

	// 既有证据不被移除
	assert.Len(t, seg3.Relationships, 1)
	require.NotNil(t, seg3.Log)
	assert.Equal(t, "Alice cooks", seg3.Log.Summary)

	// 纯日志分组的场景来自日志
	assert.Equal(t, "hallway", seg8.Scene)
	assert.Empty(t, seg8.Relationships)
}

func TestCandidateSegmentsFollowGroupOrder(t *testing.T) {
	b := Assemble([]match.Match{
		relMatch("r2", 2, 1.0, false),
		relMatch("r9", 9, 5.0, true),
	}, nil)
	assert.Equal(t, []int{9, 2}, b.CandidateSegments())
}

func TestHasDialogueAndEmpty(t *testing.T) {
	empty := Assemble(nil, nil)
	assert.True(t, empty.Empty())
	assert.False(t, empty.HasDialogue())

	withDia := Assemble(nil, []match.DialogueMatch{diaMatch("d1", 2, 1, 1.0)})
	assert.False(t, withDia.Empty())
	assert.True(t, withDia.HasDialogue())
}

func TestBestExact(t *testing.T) {
	b := Assemble([]match.Match{
		relMatch("approx", 2, 9.0, false),
		relMatch("weak-exact", 3, 4.0, true),
		relMatch("strong-exact", 5, 6.0, true),
	}, nil)

	best, found := b.BestExact()
	require.True(t, found)
	assert.Equal(t, "strong-exact", best.Rel.ID)

	_, found = Assemble([]match.Match{relMatch("approx", 2, 9.0, false)}, nil).BestExact()
	assert.False(t, found)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "No matching evidence.", Assemble(nil, nil).Render())

	b := Assemble([]match.Match{relMatch("r3", 3, 2.0, true)}, []match.DialogueMatch{diaMatch("d3", 3, 1, 0.5)})
	b.AttachLogs([]*entity.SegmentLog{{SegmentID: 3, Summary: "Alice cooks"}})
	out := b.Render()
	assert.Contains(t, out, "Segment 3 (at kitchen):")
	assert.Contains(t, out, "Alice talks to Bob")
	assert.Contains(t, out, "Alice: hello")
	assert.Contains(t, out, "Segment log: Alice cooks")
}
