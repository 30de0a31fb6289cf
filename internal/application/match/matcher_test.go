package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/domain/entity"
)

// stubEmbedder 按文本查表返回固定向量，未知文本给零向量
type stubEmbedder struct {
	vecs map[string][]float64
}

func (s *stubEmbedder) EmbedStrings(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := s.vecs[t]; ok {
			out[i] = v
		} else {
			out[i] = []float64{0, 0, 0}
		}
	}
	return out, nil
}

// orthogonalEmbedder 每个不同文本一个独立维度，相同文本相似度 1，
// 不同文本相似度 0
func orthogonalEmbedder(texts ...string) *stubEmbedder {
	vecs := make(map[string][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, len(texts))
		v[i] = 1
		vecs[t] = v
	}
	return &stubEmbedder{vecs: vecs}
}

func lowRel(id string, src, dst entity.EntityRef, content string, segment, confidence int) *entity.Relationship {
	return &entity.Relationship{ID: id, Source: src, Target: dst, Content: content, SegmentID: segment, Confidence: confidence}
}

func TestExactBeatsApproximate(t *testing.T) {
	alice := entity.Character("Alice")
	knife := entity.Object("knife", "", "")
	emb := orthogonalEmbedder("Alice", "picks up", "grabs", "knife")
	m := NewMatcher(emb, DefaultWeights())

	exact := lowRel("r-exact", alice, knife, "picks up", 2, 10)
	// 内容嵌入完全相同，置信度也更高，但仍排在精确匹配之后
	approx := lowRel("r-approx", alice, knife, "grabs", 1, 100)

	got, err := m.MatchRelationships(context.Background(), QueryTriple{Source: "<Alice>", Content: "picks up", Target: "knife"},
		[]*entity.Relationship{approx, exact}, Options{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r-exact", got[0].Rel.ID)
	assert.True(t, got[0].Exact)
	assert.False(t, got[1].Exact)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestExactOnlyNeedsNoEmbedder(t *testing.T) {
	alice := entity.Character("Alice")
	knife := entity.Object("knife", "", "")
	m := NewMatcher(nil, DefaultWeights())

	exact := lowRel("r1", alice, knife, "picks up", 2, 80)
	got, err := m.MatchRelationships(context.Background(), QueryTriple{Source: "<Alice>", Content: "picks up"},
		[]*entity.Relationship{exact}, Options{TopK: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Exact)
}

func TestMatchBatchConsistentWithSingle(t *testing.T) {
	alice := entity.Character("Alice")
	bob := entity.Character("Bob")
	knife := entity.Object("knife", "", "")
	emb := orthogonalEmbedder("Alice", "Bob", "knife", "picks up", "hides", "argues with")

	candidates := []*entity.Relationship{
		lowRel("r1", alice, knife, "picks up", 2, 80),
		lowRel("r2", bob, knife, "hides", 4, 60),
		lowRel("r3", alice, bob, "argues with", 3, 70),
	}
	qs := []QueryTriple{
		{Source: "<Alice>", Content: "picks up"},
		{Content: "hides", Target: "knife"},
	}
	opts := Options{TopK: 3}

	batch := NewMatcher(emb, DefaultWeights())
	batched, err := batch.MatchBatch(context.Background(), qs, candidates, opts)
	require.NoError(t, err)
	require.Len(t, batched, len(qs))

	for i, q := range qs {
		single := NewMatcher(emb, DefaultWeights())
		got, err := single.MatchRelationships(context.Background(), q, candidates, opts)
		require.NoError(t, err)
		assert.Equal(t, got, batched[i], "triple %d", i)
	}
}

func TestTieBreakConfidenceThenSegment(t *testing.T) {
	alice := entity.Character("Alice")
	knife := entity.Object("knife", "", "")
	// 置信度加成权重为 0，精确匹配分数完全相同
	m := NewMatcher(nil, Weights{Content: 0.5, Source: 0.25, Target: 0.25})

	candidates := []*entity.Relationship{
		lowRel("late-low", alice, knife, "drops", 9, 50),
		lowRel("early-low", alice, knife, "drops", 2, 50),
		lowRel("high-conf", alice, knife, "drops", 5, 90),
	}
	got, err := m.MatchRelationships(context.Background(), QueryTriple{Source: "<Alice>", Content: "drops"},
		candidates, Options{TopK: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "high-conf", got[0].Rel.ID)
	assert.Equal(t, "early-low", got[1].Rel.ID)
	assert.Equal(t, "late-low", got[2].Rel.ID)
}

func TestBidirectionalApproximate(t *testing.T) {
	alice := entity.Character("Alice")
	bob := entity.Character("Bob")
	emb := orthogonalEmbedder("Alice", "Bob", "follows")
	m := NewMatcher(emb, DefaultWeights())

	// 候选方向 Alice→Bob，查询方向 Bob→Alice：反向得分更高
	cand := lowRel("r1", alice, bob, "follows", 3, 0)
	got, err := m.MatchRelationships(context.Background(), QueryTriple{Source: "Bob", Content: "follows", Target: "Alice"},
		[]*entity.Relationship{cand}, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Reversed)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestMinScoreFiltersApproximateOnly(t *testing.T) {
	alice := entity.Character("Alice")
	knife := entity.Object("knife", "", "")
	cup := entity.Object("cup", "", "")
	emb := orthogonalEmbedder("Alice", "knife", "cup", "picks up", "holds")
	m := NewMatcher(emb, DefaultWeights())

	exact := lowRel("r-exact", alice, knife, "picks up", 2, 0)
	weak := lowRel("r-weak", alice, cup, "holds", 4, 0)

	got, err := m.MatchRelationships(context.Background(), QueryTriple{Source: "<Alice>", Content: "picks up", Target: "knife"},
		[]*entity.Relationship{exact, weak}, Options{MinScore: 0.6})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r-exact", got[0].Rel.ID)
}

func TestTemporalBonusPrefersNearbySegments(t *testing.T) {
	alice := entity.Character("Alice")
	knife := entity.Object("knife", "", "")
	emb := orthogonalEmbedder("Alice", "knife", "holds", "carries")
	m := NewMatcher(emb, DefaultWeights())

	near := lowRel("near", alice, knife, "holds", 4, 0)
	far := lowRel("far", alice, knife, "carries", 9, 0)

	got, err := m.MatchRelationships(context.Background(), QueryTriple{Source: "<Alice>", Target: "knife"},
		[]*entity.Relationship{far, near}, Options{AnchorSegments: []int{4}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Rel.ID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestZeroWeightsFallBackToDefault(t *testing.T) {
	alice := entity.Character("Alice")
	knife := entity.Object("knife", "", "")
	emb := orthogonalEmbedder("Alice", "knife", "holds", "waves")
	candidates := []*entity.Relationship{
		lowRel("r1", alice, knife, "holds", 2, 40),
		lowRel("r2", alice, knife, "waves", 3, 70),
	}
	q := QueryTriple{Source: "<Alice>", Content: "holds"}

	zero, err := NewMatcher(emb, Weights{}).MatchRelationships(context.Background(), q, candidates, Options{})
	require.NoError(t, err)
	def, err := NewMatcher(emb, DefaultWeights()).MatchRelationships(context.Background(), q, candidates, Options{})
	require.NoError(t, err)
	assert.Equal(t, def, zero)
}

func TestContentWeightDominatesEndpoints(t *testing.T) {
	alice := entity.Character("Alice")
	carol := entity.Character("Carol")
	cup := entity.Object("cup", "", "")
	drawer := entity.Object("drawer", "", "")
	emb := orthogonalEmbedder("Alice", "Carol", "cup", "drawer", "opens", "shuts")
	q := QueryTriple{Source: "Alice", Content: "opens", Target: "drawer"}
	candidates := []*entity.Relationship{
		lowRel("content-only", carol, cup, "opens", 2, 0),
		lowRel("source-only", alice, cup, "shuts", 3, 0),
		lowRel("target-only", carol, drawer, "shuts", 4, 0),
	}

	scores := func(t *testing.T, w Weights) map[string]float64 {
		t.Helper()
		got, err := NewMatcher(emb, w).MatchRelationships(context.Background(), q, candidates, Options{})
		require.NoError(t, err)
		out := make(map[string]float64, len(got))
		for _, mt := range got {
			out[mt.Rel.ID] = mt.Score
		}
		return out
	}

	t.Run("default weights", func(t *testing.T) {
		s := scores(t, DefaultWeights())
		assert.Greater(t, s["content-only"], s["source-only"])
		assert.Greater(t, s["content-only"], s["target-only"])
	})

	// 端点权重超过内容权重时被钳制，内容命中仍不落后于端点命中
	t.Run("endpoint heavy weights clamped", func(t *testing.T) {
		s := scores(t, Weights{Content: 0.2, Source: 0.9, Target: 0.7})
		assert.GreaterOrEqual(t, s["content-only"], s["source-only"])
		assert.GreaterOrEqual(t, s["content-only"], s["target-only"])
	})
}

func TestTopKTruncation(t *testing.T) {
	alice := entity.Character("Alice")
	knife := entity.Object("knife", "", "")
	m := NewMatcher(nil, DefaultWeights())

	var candidates []*entity.Relationship
	for i := 1; i <= 5; i++ {
		candidates = append(candidates, lowRel(string(rune('a'+i)), alice, knife, "drops", i, 50+i))
	}
	got, err := m.MatchRelationships(context.Background(), QueryTriple{Content: "drops"}, candidates, Options{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
