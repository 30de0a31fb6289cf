package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/domain/entity"
)

func utt(id string, segment, index int, text string, speakers ...string) *entity.Utterance {
	return &entity.Utterance{ID: id, SegmentID: segment, Index: index, Speakers: speakers, Text: text}
}

func TestMatchDialogueSpeakerAny(t *testing.T) {
	m := NewMatcher(nil, DefaultWeights())
	candidates := []*entity.Utterance{
		utt("u1", 1, 1, "hello", "Alice"),
		utt("u2", 2, 2, "hi there", "Bob"),
		utt("u3", 3, 3, "(off screen)"),
	}

	got, err := m.MatchDialogue(context.Background(), DialogueQuery{Speakers: []string{"alice", "Carol"}}, candidates, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].Utt.ID)
	assert.True(t, got[0].Exact)
}

func TestMatchDialogueSpeakerStrict(t *testing.T) {
	m := NewMatcher(nil, DefaultWeights())
	candidates := []*entity.Utterance{
		utt("both", 1, 1, "we agree", "Alice", "Bob"),
		utt("only-alice", 2, 2, "hmm", "Alice"),
	}

	got, err := m.MatchDialogue(context.Background(), DialogueQuery{Speakers: []string{"Alice", "Bob"}, SpeakerStrict: true}, candidates, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "both", got[0].Utt.ID)
}

func TestMatchDialogueExactBeforeApproximate(t *testing.T) {
	emb := orthogonalEmbedder("where is the knife", "hello", "the knife is gone")
	m := NewMatcher(emb, DefaultWeights())
	candidates := []*entity.Utterance{
		utt("approx", 1, 1, "where is the knife", "Bob"),
		utt("exact", 2, 2, "hello", "Alice"),
	}

	got, err := m.MatchDialogue(context.Background(), DialogueQuery{
		Speakers: []string{"Alice"},
		Content:  "where is the knife",
	}, candidates, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 说话人精确命中排在内容相似度 1.0 的近似命中之前
	assert.Equal(t, "exact", got[0].Utt.ID)
	assert.True(t, got[0].Exact)
	assert.Equal(t, "approx", got[1].Utt.ID)
	assert.False(t, got[1].Exact)
}

func TestMatchDialogueContentOnlyTopK(t *testing.T) {
	emb := orthogonalEmbedder("goodbye", "goodbye everyone", "see you")
	m := NewMatcher(emb, DefaultWeights())
	candidates := []*entity.Utterance{
		utt("u1", 1, 1, "goodbye"),
		utt("u2", 2, 2, "see you"),
		utt("u3", 3, 3, "goodbye everyone"),
	}

	got, err := m.MatchDialogue(context.Background(), DialogueQuery{Content: "goodbye"}, candidates, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].Utt.ID)
}

func TestMatchDialogueNoSpeakersNoContent(t *testing.T) {
	m := NewMatcher(nil, DefaultWeights())
	got, err := m.MatchDialogue(context.Background(), DialogueQuery{}, []*entity.Utterance{utt("u1", 1, 1, "hi", "Alice")}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
