package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityRef(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  EntityRef
		ok    bool
	}{
		{"character", "<Alice>", Character("Alice"), true},
		{"character with spaces", "  < Bob >  ", Character("Bob"), true},
		{"plain object", "knife", Object("knife", "", ""), true},
		{"object with owner", "knife@Alice", Object("knife", "Alice", ""), true},
		{"object with attribute", "knife#bloody", Object("knife", "", "bloody"), true},
		{"object full key", "knife@Alice#bloody", Object("knife", "Alice", "bloody"), true},
		{"empty string", "", EntityRef{}, false},
		{"blank character", "<>", EntityRef{}, false},
		{"only suffixes", "@Alice#bloody", EntityRef{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseEntityRef(tt.input)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEntityRefKeyRoundTrip(t *testing.T) {
	refs := []EntityRef{
		Character("Alice"),
		Object("knife", "", ""),
		Object("knife", "Alice", ""),
		Object("cup", "", "broken"),
		Object("knife", "Alice", "bloody"),
	}
	for _, ref := range refs {
		parsed, ok := ParseEntityRef(ref.Key())
		require.True(t, ok, "key %q should parse", ref.Key())
		assert.Equal(t, ref, parsed)
	}
}

func TestEntityRefDisplay(t *testing.T) {
	tests := []struct {
		name string
		ref  EntityRef
		want string
	}{
		{"character", Character("Alice"), "Alice"},
		{"plain object", Object("knife", "", ""), "knife"},
		{"owned object", Object("knife", "Alice", ""), "Alice's knife"},
		{"attributed object", Object("knife", "", "bloody"), "bloody knife"},
		{"full object", Object("knife", "Alice", "bloody"), "Alice's bloody knife"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ref.Display())
		})
	}
}

func TestExtractCharacterNames(t *testing.T) {
	names := ExtractCharacterNames("<Alice> gave the knife to <Bob>, then <Alice> left")
	assert.Equal(t, []string{"Alice", "Bob"}, names)

	assert.Empty(t, ExtractCharacterNames("no markers here"))
	assert.Empty(t, ExtractCharacterNames("broken <marker"))
}

func TestRelationshipRender(t *testing.T) {
	high := &Relationship{
		Source:     Character("Alice"),
		Target:     Character("Bob"),
		Content:    "trusts",
		Confidence: 90,
		SegmentID:  HighLevelSegmentID,
	}
	assert.Equal(t, "Alice trusts Bob (throughout the video, confidence 90)", high.Render())

	low := &Relationship{
		Source:     Character("Alice"),
		Target:     Object("knife", "", ""),
		Content:    "picks up",
		Confidence: 75,
		SegmentID:  3,
		Scene:      "kitchen",
	}
	assert.Equal(t, "Alice picks up knife (segment 3, at kitchen, confidence 75)", low.Render())
}

func TestRelationshipReversed(t *testing.T) {
	r := &Relationship{Source: Character("Alice"), Target: Character("Bob"), Content: "follows"}
	rev := r.Reversed()
	assert.Equal(t, Character("Bob"), rev.Source)
	assert.Equal(t, Character("Alice"), rev.Target)
	// 原关系不受影响
	assert.Equal(t, Character("Alice"), r.Source)
}

func TestQuestionStateTerminal(t *testing.T) {
	assert.True(t, StateAnswered.Terminal())
	assert.True(t, StateExhausted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateGraphSearch.Terminal())
	assert.False(t, StateEpisodicLookup.Terminal())
	assert.False(t, StateSegmentWatch.Terminal())
}
