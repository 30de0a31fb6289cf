package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/domain/entity"
)

func TestRelationshipPayloadToRelationship(t *testing.T) {
	p := RelationshipPayload{
		ID:         "r1",
		Source:     "<Alice>",
		Target:     "knife@Alice#bloody",
		Content:    "hides",
		Confidence: 80,
		SegmentID:  3,
		Scene:      "kitchen",
	}
	rel, err := p.ToRelationship("vid-1")
	require.NoError(t, err)
	assert.Equal(t, "vid-1", rel.VideoID)
	assert.Equal(t, entity.Character("Alice"), rel.Source)
	assert.Equal(t, entity.Object("knife", "Alice", "bloody"), rel.Target)
	assert.Equal(t, 3, rel.SegmentID)
}

func TestRelationshipPayloadInvalidNodeKeys(t *testing.T) {
	_, err := RelationshipPayload{Source: "<>", Target: "<Bob>", Content: "x"}.ToRelationship("vid-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")

	_, err = RelationshipPayload{Source: "<Alice>", Target: "  ", Content: "x"}.ToRelationship("vid-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
}

func TestRelationshipPayloadHighLevelRejectsScene(t *testing.T) {
	p := RelationshipPayload{
		Source:    "<Alice>",
		Target:    "<Bob>",
		Content:   "trusts",
		SegmentID: entity.HighLevelSegmentID,
		Scene:     "kitchen",
	}
	_, err := p.ToRelationship("vid-1")
	require.Error(t, err)

	p.Scene = ""
	rel, err := p.ToRelationship("vid-1")
	require.NoError(t, err)
	assert.True(t, rel.IsHighLevel())
}

func TestSegmentPayloadToSegment(t *testing.T) {
	seg := SegmentPayload{SegmentID: 2, StartMs: 30000, EndMs: 60000, MediaPath: "segments/2.mp4"}.ToSegment("vid-1")
	assert.Equal(t, "vid-1", seg.VideoID)
	assert.Equal(t, 30*time.Second, seg.Start)
	assert.Equal(t, time.Minute, seg.End)
}

func TestToQAResultPayloadRendersFindings(t *testing.T) {
	r := &entity.QAResult{
		QuestionID: "q1",
		VideoID:    "vid-1",
		Question:   "where is the knife?",
		Answer:     "in the drawer",
		Confidence: 88,
		Citations:  []string{"Alice opens drawer (segment 3, confidence 88)"},
		State:      entity.StateAnswered,
		Findings: []entity.Finding{
			{SegmentID: 3, Note: "Alice opens the drawer"},
		},
		SegmentsInspected: []int{3},
	}
	p := ToQAResultPayload(r)
	assert.Equal(t, "q1", p.QuestionID)
	assert.Equal(t, string(entity.StateAnswered), p.State)
	assert.Equal(t, []string{"Alice opens drawer (segment 3, confidence 88)"}, p.Citations)
	require.Len(t, p.Findings, 1)
	assert.Equal(t, "Segment 3: Alice opens the drawer", p.Findings[0])
}
