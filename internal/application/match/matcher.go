// Package match 实现结构化查询片段与候选关系、对话之间的相似度
// 匹配：先精确匹配，再按字段嵌入相似度近似匹配。
package match

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"video-memory-qa/internal/domain/entity"
)

// exactScoreBand 精确匹配的固定分数段，任何近似匹配的得分都
// 不可能达到这个量级，保证精确匹配永远排在近似匹配之前。
const exactScoreBand = 10.0

// temporalBonusScale 时间邻近加成的系数
const temporalBonusScale = 0.1

// QueryTriple 结构化查询三元组，空字段为通配符
type QueryTriple struct {
	Source  string `json:"source"`
	Content string `json:"content"`
	Target  string `json:"target"`
}

// String 渲染为 (source, content, target) 形式
func (q QueryTriple) String() string {
	f := func(s string) string {
		if s == "" {
			return "*"
		}
		return s
	}
	return fmt.Sprintf("(%s, %s, %s)", f(q.Source), f(q.Content), f(q.Target))
}

// Weights 相似度打分权重
type Weights struct {
	Content         float64
	Source          float64
	Target          float64
	ConfidenceBonus float64
}

// DefaultWeights 默认权重：内容 0.5，端点各 0.25
func DefaultWeights() Weights {
	return Weights{Content: 0.5, Source: 0.25, Target: 0.25, ConfidenceBonus: 0.3}
}

// normalized 校正权重，内容权重不得低于任一端点权重
func (w Weights) normalized() Weights {
	if w.Content <= 0 && w.Source <= 0 && w.Target <= 0 {
		return DefaultWeights()
	}
	if w.Source > w.Content {
		w.Source = w.Content
	}
	if w.Target > w.Content {
		w.Target = w.Content
	}
	return w
}

// Match 一条带分数的关系匹配
type Match struct {
	Rel   *entity.Relationship
	Score float64
	Exact bool
	// Reversed 近似匹配时方向翻转的得分更高
	Reversed bool
}

// Options 单次匹配的可选约束
type Options struct {
	// TopK 返回的候选数上限，0 表示不限
	TopK int
	// AnchorSegments 已锚定的片段编号，用于时间邻近加成
	AnchorSegments []int
	// Scene 空间约束，非空时对低层关系按场景相似度加权
	Scene string
	// MinScore 近似匹配的最低得分，低于阈值的候选被丢弃。
	// 精确匹配不受阈值限制。
	MinScore float64
}

// Matcher 相似度匹配引擎
type Matcher struct {
	embedder Embedder
	weights  Weights

	// simCache 缓存重复查询形状的打分结果
	simCache sync.Map // "src|content|dst|relID|scene" -> float64
}

// NewMatcher 创建匹配引擎
func NewMatcher(embedder Embedder, weights Weights) *Matcher {
	return &Matcher{embedder: embedder, weights: weights.normalized()}
}

// MatchRelationships 对候选关系执行两段式匹配
//
// 精确段：每个非通配字段与候选字段归一化相等的候选，得分落在
// 固定高分段。近似段：仅当精确段数量不足 TopK 时执行，按字段
// 嵌入相似度加权合成，双向取最大，再叠加置信度与时间邻近加成。
// 排序规则：精确优先，其后按分数降序，同分先比置信度再比片段
// 编号。
func (m *Matcher) MatchRelationships(ctx context.Context, q QueryTriple, candidates []*entity.Relationship, opts Options) ([]Match, error) {
	results, err := m.matchOne(ctx, q, candidates, opts, nil)
	if err != nil {
		return nil, err
	}
	return truncate(results, opts.TopK), nil
}

// MatchBatch 批量匹配多个查询三元组
//
// 嵌入向量一次性批量获取，但每个三元组的打分与单独调用
// MatchRelationships 完全一致。
func (m *Matcher) MatchBatch(ctx context.Context, qs []QueryTriple, candidates []*entity.Relationship, opts Options) ([][]Match, error) {
	texts := make(map[string]struct{})
	for _, q := range qs {
		collectQueryTexts(texts, q, opts)
	}
	collectCandidateTexts(texts, candidates)
	vectors, err := m.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([][]Match, 0, len(qs))
	for _, q := range qs {
		results, err := m.matchOne(ctx, q, candidates, opts, vectors)
		if err != nil {
			return nil, err
		}
		out = append(out, truncate(results, opts.TopK))
	}
	return out, nil
}

// matchOne 单个三元组的完整两段式打分
func (m *Matcher) matchOne(ctx context.Context, q QueryTriple, candidates []*entity.Relationship, opts Options, vectors map[string][]float64) ([]Match, error) {
	var exact []Match
	var rest []*entity.Relationship
	for _, r := range candidates {
		if exactMatch(q, r) {
			score := exactScoreBand + m.confidenceBonus(r) + temporalBonus(opts.AnchorSegments, r)
			exact = append(exact, Match{Rel: r, Score: score, Exact: true})
		} else {
			rest = append(rest, r)
		}
	}
	sortMatches(exact)

	need := opts.TopK
	if need <= 0 {
		need = len(candidates)
	}
	if len(exact) >= need || len(rest) == 0 {
		return exact, nil
	}

	if vectors == nil {
		texts := make(map[string]struct{})
		collectQueryTexts(texts, q, opts)
		collectCandidateTexts(texts, rest)
		var err error
		vectors, err = m.embedAll(ctx, texts)
		if err != nil {
			return nil, err
		}
	}

	approx := make([]Match, 0, len(rest))
	for _, r := range rest {
		score, reversed := m.approxScore(q, r, opts, vectors)
		if score < opts.MinScore {
			continue
		}
		approx = append(approx, Match{Rel: r, Score: score, Reversed: reversed})
	}
	sortMatches(approx)

	return append(exact, approx...), nil
}

// approxScore 近似段打分，返回得分与是否取反向
func (m *Matcher) approxScore(q QueryTriple, r *entity.Relationship, opts Options, vectors map[string][]float64) (float64, bool) {
	cacheKey := fmt.Sprintf("%s|%s|%s|%s|%s", q.Source, q.Content, q.Target, r.ID, opts.Scene)
	if v, ok := m.simCache.Load(cacheKey); ok {
		cached := v.(simEntry)
		return cached.score + temporalBonus(opts.AnchorSegments, r), cached.reversed
	}

	simContent := fieldSim(vectors, q.Content, strings.TrimSpace(r.Content))
	simSrcNormal := fieldSim(vectors, q.Source, r.Source.Display())
	simDstNormal := fieldSim(vectors, q.Target, r.Target.Display())
	simSrcReversed := fieldSim(vectors, q.Source, r.Target.Display())
	simDstReversed := fieldSim(vectors, q.Target, r.Source.Display())

	normal := m.blend(q, simSrcNormal, simContent, simDstNormal)
	revScore := m.blend(q, simSrcReversed, simContent, simDstReversed)
	score, reversed := normal, false
	if revScore > normal {
		score, reversed = revScore, true
	}

	// 空间约束：低层关系按场景相似度缩放，高层关系不受影响
	if opts.Scene != "" && r.Scene != "" {
		sceneSim := fieldSim(vectors, opts.Scene, r.Scene)
		score *= 0.5 + 0.5*sceneSim
	}

	score += m.confidenceBonus(r)
	m.simCache.Store(cacheKey, simEntry{score: score, reversed: reversed})
	return score + temporalBonus(opts.AnchorSegments, r), reversed
}

type simEntry struct {
	score    float64
	reversed bool
}

// blend 按权重合成字段相似度，通配字段不参与并按剩余权重归一
func (m *Matcher) blend(q QueryTriple, simSrc, simContent, simDst float64) float64 {
	var sum, total float64
	if q.Content != "" {
		sum += m.weights.Content * simContent
		total += m.weights.Content
	}
	if q.Source != "" {
		sum += m.weights.Source * simSrc
		total += m.weights.Source
	}
	if q.Target != "" {
		sum += m.weights.Target * simDst
		total += m.weights.Target
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// confidenceBonus 置信度加成
func (m *Matcher) confidenceBonus(r *entity.Relationship) float64 {
	return float64(r.Confidence) / 100 * m.weights.ConfidenceBonus
}

// temporalBonus 时间邻近加成：离已锚定片段越近加成越大
func temporalBonus(anchors []int, r *entity.Relationship) float64 {
	if len(anchors) == 0 || r.IsHighLevel() {
		return 0
	}
	minDist := -1
	for _, a := range anchors {
		d := a - r.SegmentID
		if d < 0 {
			d = -d
		}
		if minDist < 0 || d < minDist {
			minDist = d
		}
	}
	return temporalBonusScale / float64(1+minDist)
}

// exactMatch 每个非通配字段均归一化相等
func exactMatch(q QueryTriple, r *entity.Relationship) bool {
	if q.Source != "" && !sameEndpoint(q.Source, r.Source) {
		return false
	}
	if q.Content != "" && !strings.EqualFold(strings.TrimSpace(q.Content), strings.TrimSpace(r.Content)) {
		return false
	}
	if q.Target != "" && !sameEndpoint(q.Target, r.Target) {
		return false
	}
	return q.Source != "" || q.Content != "" || q.Target != ""
}

// sameEndpoint 查询端点与节点引用的归一化比较
func sameEndpoint(query string, ref entity.EntityRef) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == strings.ToLower(ref.Key()) {
		return true
	}
	if ref.IsCharacter() && q == strings.ToLower(strings.TrimSpace(ref.Name)) {
		return true
	}
	return false
}

// fieldSim 单字段嵌入相似度，通配字段返回 0
func fieldSim(vectors map[string][]float64, queryField, candidateField string) float64 {
	if queryField == "" || candidateField == "" {
		return 0
	}
	return cosine(vectors[queryField], vectors[candidateField])
}

// embedAll 批量获取全部文本的嵌入向量
func (m *Matcher) embedAll(ctx context.Context, texts map[string]struct{}) (map[string][]float64, error) {
	if len(texts) == 0 {
		return map[string][]float64{}, nil
	}
	ordered := make([]string, 0, len(texts))
	for t := range texts {
		ordered = append(ordered, t)
	}
	sort.Strings(ordered)
	vecs, err := m.embedder.EmbedStrings(ctx, ordered)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(ordered) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(ordered))
	}
	out := make(map[string][]float64, len(ordered))
	for i, t := range ordered {
		out[t] = vecs[i]
	}
	return out, nil
}

// collectQueryTexts 收集查询侧需要嵌入的文本
func collectQueryTexts(texts map[string]struct{}, q QueryTriple, opts Options) {
	for _, t := range []string{q.Source, q.Content, q.Target, opts.Scene} {
		if t != "" {
			texts[t] = struct{}{}
		}
	}
}

// collectCandidateTexts 收集候选侧需要嵌入的文本
func collectCandidateTexts(texts map[string]struct{}, rels []*entity.Relationship) {
	for _, r := range rels {
		for _, t := range []string{r.Source.Display(), strings.TrimSpace(r.Content), r.Target.Display(), r.Scene} {
			if t != "" {
				texts[t] = struct{}{}
			}
		}
	}
}

// sortMatches 精确优先，分数降序，同分先比置信度再比片段编号
func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Exact != b.Exact {
			return a.Exact
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Rel.Confidence != b.Rel.Confidence {
			return a.Rel.Confidence > b.Rel.Confidence
		}
		return a.Rel.SegmentID < b.Rel.SegmentID
	})
}

// truncate 截断到 topK，topK<=0 表示不限
func truncate(ms []Match, topK int) []Match {
	if topK > 0 && len(ms) > topK {
		return ms[:topK]
	}
	return ms
}
