package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"video-memory-qa/internal/domain/entity"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input string
		want  entity.QuestionKind
	}{
		{"location", entity.KindLocation},
		{"COUNTING", entity.KindCounting},
		{" causal ", entity.KindCausal},
		{"comparison", entity.KindComparison},
		{"general", entity.KindGeneral},
		{"", entity.KindGeneral},
		{"something-else", entity.KindGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseKind(tt.input), "input %q", tt.input)
	}
}
