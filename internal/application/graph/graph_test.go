package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/domain/entity"
)

func rel(id string, src, dst entity.EntityRef, content string, segment int) *entity.Relationship {
	return &entity.Relationship{ID: id, Source: src, Target: dst, Content: content, SegmentID: segment, Confidence: 80}
}

func buildTestGraph() *EvidenceGraph {
	alice := entity.Character("Alice")
	bob := entity.Character("Bob")
	knife := entity.Object("knife", "Alice", "")

	rels := []*entity.Relationship{
		rel("r1", alice, bob, "trusts", entity.HighLevelSegmentID),
		rel("r2", alice, knife, "picks up", 3),
		rel("r3", bob, knife, "hides", 5),
		rel("r4", alice, bob, "argues with", 3),
	}
	utts := []*entity.Utterance{
		{ID: "u2", SegmentID: 5, Index: 2, Speakers: []string{"Bob"}, Text: "I hid it."},
		{ID: "u1", SegmentID: 3, Index: 1, Speakers: []string{"Alice"}, Text: "Where is my knife?"},
		{ID: "u3", SegmentID: 7, Index: 3, Text: "(door slams)"},
	}
	return Build("vid-1", rels, utts)
}

func TestBuildSegmentsSortedAndDeduped(t *testing.T) {
	g := buildTestGraph()
	// 高层关系不占片段；片段编号来自低层关系与对话的并集
	assert.Equal(t, []int{3, 5, 7}, g.Segments())
}

func TestBuildUtterancesSortedByIndex(t *testing.T) {
	g := buildTestGraph()
	utts := g.Utterances()
	require.Len(t, utts, 3)
	assert.Equal(t, "u1", utts[0].ID)
	assert.Equal(t, "u2", utts[1].ID)
	assert.Equal(t, "u3", utts[2].ID)
}

func TestEmpty(t *testing.T) {
	assert.True(t, Build("vid-0", nil, nil).Empty())
	assert.False(t, buildTestGraph().Empty())
}

func TestHighLowLevelSplit(t *testing.T) {
	g := buildTestGraph()
	high := g.HighLevel()
	require.Len(t, high, 1)
	assert.Equal(t, "r1", high[0].ID)
	assert.Len(t, g.LowLevel(), 3)
}

func TestLookupExact(t *testing.T) {
	g := buildTestGraph()

	tests := []struct {
		name    string
		source  string
		content string
		target  string
		wantIDs []string
	}{
		{"full triple", "<Alice>", "picks up", "knife@Alice", []string{"r2"}},
		{"bare character name", "alice", "", "", []string{"r1", "r2", "r4"}},
		{"content wildcard source", "", "hides", "", []string{"r3"}},
		{"case insensitive content", "<Alice>", "PICKS UP", "", []string{"r2"}},
		{"no match", "<Carol>", "", "", nil},
		{"target only", "", "", "<Bob>", []string{"r1", "r4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.LookupExact(tt.source, tt.content, tt.target)
			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if tt.wantIDs == nil {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.wantIDs, ids)
			}
		})
	}
}

func TestLookupExactDeterministic(t *testing.T) {
	g := buildTestGraph()
	first := g.LookupExact("alice", "", "")
	second := g.LookupExact("alice", "", "")
	assert.Equal(t, first, second)
}

func TestNeighbors(t *testing.T) {
	g := buildTestGraph()
	knife := entity.Object("knife", "Alice", "")

	out := g.Neighbors(entity.Character("Alice"), Outbound)
	assert.Len(t, out, 3)

	in := g.Neighbors(knife, Inbound)
	assert.Len(t, in, 2)

	both := g.Neighbors(entity.Character("Bob"), Both)
	assert.Len(t, both, 3)
}

func TestConnectedEdges(t *testing.T) {
	g := buildTestGraph()
	edges := g.ConnectedEdges(entity.Character("Alice"), entity.Character("Bob"))
	ids := make([]string, 0, len(edges))
	for _, r := range edges {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"r1", "r4"}, ids)
}

func TestDialogueFor(t *testing.T) {
	g := buildTestGraph()
	utts := g.DialogueFor([]int{3, 7})
	require.Len(t, utts, 2)
	assert.Equal(t, "u1", utts[0].ID)
	assert.Equal(t, "u3", utts[1].ID)
}

func TestContextWindowCrossesSegments(t *testing.T) {
	g := buildTestGraph()
	center := g.Utterances()[1] // u2, segment 5
	window := g.ContextWindow(center, 1)
	require.Len(t, window, 3)
	// 窗口跨片段边界
	assert.Equal(t, 3, window[0].SegmentID)
	assert.Equal(t, 7, window[2].SegmentID)

	assert.Nil(t, g.ContextWindow(&entity.Utterance{Index: 99}, 1))
}
