package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionContent(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantAction  string
		wantContent string
		wantOK      bool
	}{
		{"bracketed answer", "Action: [Answer]\nContent: she left", "answer", "she left", true},
		{"plain search", "action: search\ncontent: look at segment 4", "search", "look at segment 4", true},
		{"mixed case", "ACTION: [ANSWER]\nCONTENT: yes", "answer", "yes", true},
		{"no content", "Action: [Search]", "search", "", true},
		{"no action", "Content: something", "", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, content, ok := ParseActionContent(tt.input)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantContent, content)
		})
	}
}

func TestExtractSegmentIDs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{"comma list", "check segments 4, 7 and 2", []int{4, 7, 2}},
		{"dedup keeps order", "segment 5 then 3 then 5", []int{5, 3}},
		{"skips zero", "segments 0 and 6", []int{6}},
		{"none", "nothing numeric here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSegmentIDs(tt.input))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, ExtractJSONObject("noise before {\"a\": 1} noise after"))
	assert.Equal(t, `[1, 2]`, ExtractJSONObject("list: [1, 2] done"))
	assert.Equal(t, "", ExtractJSONObject("   "))
	// 没有 JSON 时原样返回，交给调用方的反序列化报错
	assert.Equal(t, "plain text", ExtractJSONObject("plain text"))
}
