package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/application/reasoning"
	"video-memory-qa/internal/domain/entity"
	wfmodel "video-memory-qa/internal/workflow/model"
	apperrors "video-memory-qa/pkg/errors"
)

func TestParseJudgmentJSON(t *testing.T) {
	content := `Here is my verdict:
{"action": "answer", "answer": "Alice took the knife", "confidence": 85, "citations": ["segment 3"]}
`
	j, err := parseJudgment(content)
	require.NoError(t, err)
	assert.Equal(t, reasoning.ActionAnswer, j.Action)
	assert.Equal(t, "Alice took the knife", j.Answer)
	assert.Equal(t, 85, j.Confidence)
	assert.Equal(t, []string{"segment 3"}, j.Citations)
}

func TestParseJudgmentJSONEscalate(t *testing.T) {
	content := `{"action": "search", "segments": [5, 2], "rationale": "need to re-watch"}`
	j, err := parseJudgment(content)
	require.NoError(t, err)
	assert.Equal(t, reasoning.ActionEscalate, j.Action)
	assert.Equal(t, []int{5, 2}, j.Segments)
	assert.Equal(t, "need to re-watch", j.Rationale)
}

func TestParseJudgmentConfidenceClamped(t *testing.T) {
	j, err := parseJudgment(`{"action": "answer", "answer": "ok", "confidence": 230}`)
	require.NoError(t, err)
	assert.Equal(t, 100, j.Confidence)

	j, err = parseJudgment(`{"action": "answer", "answer": "ok", "confidence": -3}`)
	require.NoError(t, err)
	assert.Equal(t, 0, j.Confidence)
}

func TestParseJudgmentActionContentFallback(t *testing.T) {
	j, err := parseJudgment("Action: [Answer]\nContent: Alice left through the back door")
	require.NoError(t, err)
	assert.Equal(t, reasoning.ActionAnswer, j.Action)
	assert.Equal(t, "Alice left through the back door", j.Answer)

	j, err = parseJudgment("Action: [Search]\nContent: check segments 4 and 7 again")
	require.NoError(t, err)
	assert.Equal(t, reasoning.ActionEscalate, j.Action)
	assert.Equal(t, []int{4, 7}, j.Segments)
	assert.Empty(t, j.Answer)
}

func TestParseJudgmentGarbage(t *testing.T) {
	_, err := parseJudgment("I am not sure what you mean.")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeLLMCallFailed, apperrors.AsAppError(err).Code)
}

func TestParseJudgmentExtractedRelationships(t *testing.T) {
	content := `{"action": "answer", "answer": "she hid it", "confidence": 80, "extracted": [
		{"source": "<Alice>", "content": "hides", "target": "knife@Alice", "confidence": 70, "segment_id": 4, "scene": "kitchen"},
		{"source": "", "content": "broken", "target": "<Bob>", "confidence": 50, "segment_id": 4},
		{"source": "<Carol>", "content": "  ", "target": "<Bob>", "confidence": 50, "segment_id": 4}
	]}`
	j, err := parseJudgment(content)
	require.NoError(t, err)
	// 端点或内容非法的抽取结果被静默丢弃
	require.Len(t, j.Extracted, 1)
	rel := j.Extracted[0]
	assert.Equal(t, entity.Character("Alice"), rel.Source)
	assert.Equal(t, entity.Object("knife", "Alice", ""), rel.Target)
	assert.Equal(t, "hides", rel.Content)
	assert.Equal(t, 4, rel.SegmentID)
	assert.Equal(t, "kitchen", rel.Scene)
}

func TestExtractedToRelationshipInvalidEndpoints(t *testing.T) {
	assert.Nil(t, extractedToRelationship(wfmodel.ExtractedPayload{Source: "<>", Content: "x", Target: "<Bob>"}))
	assert.Nil(t, extractedToRelationship(wfmodel.ExtractedPayload{Source: "<Alice>", Content: "x", Target: ""}))
	assert.Nil(t, extractedToRelationship(wfmodel.ExtractedPayload{Source: "<Alice>", Content: "", Target: "<Bob>"}))
}
