// Package reasoning 实现三层证据级联的升级控制器
package reasoning

import (
	"strings"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/domain/entity"
)

// Policy 确定性的充分性校验策略
//
// 判定端口给出的 ANSWER 要先过这里的硬性规则；不满足规则的
// 回答会被降级为升级请求，升级目标取证据包覆盖的片段。这些
// 规则是级联准确率的关键，必须独立于判定端口的实现成立。
type Policy struct {
	// ConfidenceFloor 一般问题作答所需的最低置信度
	ConfidenceFloor int
}

// Vet 校验一次判定结果，必要时降级为升级请求
//
// logsAttached 标记情景日志是否已附加进证据包。
func (p *Policy) Vet(parsed *ParsedQuery, bundle *evidence.Bundle, j *Judgment, logsAttached bool) *Judgment {
	if j.Action != ActionAnswer {
		return j
	}

	switch parsed.Kind {
	case entity.KindLocation:
		// 只有房间级场景、没有任何容器级证据时不充分
		if !p.hasContainerEvidence(bundle) {
			return escalateFrom(bundle, j, "location evidence is scene-level only")
		}
	case entity.KindCounting:
		// 计数问题要求全部候选片段都有日志覆盖，图层一律升级
		if !logsAttached || !p.fullLogCoverage(bundle) {
			return escalateFrom(bundle, j, "counting requires full segment coverage")
		}
	case entity.KindCausal:
		// 因果问题必须有对话佐证，动作本身精确命中也不够
		if !bundle.HasDialogue() {
			return escalateFrom(bundle, j, "causal answer lacks supporting dialogue")
		}
	case entity.KindComparison:
		// 比较问题必须覆盖全部条目
		if !p.coversAllItems(bundle, parsed.CompareItems) {
			return escalateFrom(bundle, j, "comparison items not fully covered")
		}
	default:
		if j.Confidence < p.ConfidenceFloor {
			return escalateFrom(bundle, j, "confidence below floor")
		}
		if p.hasConflicts(bundle) {
			return escalateFrom(bundle, j, "conflicting relationships in the same window")
		}
	}
	return j
}

// hasContainerEvidence 证据中是否存在容器级的具体位置
//
// 物体节点或片段日志都算容器级证据；只有关系边上的场景名
// 不算。
func (p *Policy) hasContainerEvidence(bundle *evidence.Bundle) bool {
	for _, m := range bundle.HighLevel {
		if objectEndpoint(m.Rel) {
			return true
		}
	}
	for _, g := range bundle.Groups {
		if g.Log != nil {
			return true
		}
		for _, m := range g.Relationships {
			if objectEndpoint(m.Rel) {
				return true
			}
		}
	}
	return false
}

// objectEndpoint 关系至少一个端点是物体节点
func objectEndpoint(r *entity.Relationship) bool {
	return !r.Source.IsCharacter() || !r.Target.IsCharacter()
}

// fullLogCoverage 每个候选片段都已附加日志
func (p *Policy) fullLogCoverage(bundle *evidence.Bundle) bool {
	if len(bundle.Groups) == 0 {
		return false
	}
	for _, g := range bundle.Groups {
		if g.Log == nil {
			return false
		}
	}
	return true
}

// coversAllItems 每个比较条目都出现在某条匹配关系的端点或内容里
func (p *Policy) coversAllItems(bundle *evidence.Bundle, items []string) bool {
	if len(items) == 0 {
		return true
	}
	var texts []string
	collect := func(r *entity.Relationship) {
		texts = append(texts, strings.ToLower(r.Source.Display()), strings.ToLower(r.Content), strings.ToLower(r.Target.Display()))
	}
	for _, m := range bundle.HighLevel {
		collect(m.Rel)
	}
	for _, g := range bundle.Groups {
		for _, m := range g.Relationships {
			collect(m.Rel)
		}
	}
	for _, item := range items {
		needle := strings.ToLower(strings.TrimSpace(item))
		found := false
		for _, t := range texts {
			if strings.Contains(t, needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// hasConflicts 同一片段内同源同内容的精确匹配指向不同目标
func (p *Policy) hasConflicts(bundle *evidence.Bundle) bool {
	type key struct {
		source  string
		content string
		segment int
	}
	seen := make(map[key]string)
	check := func(rels []*entity.Relationship) bool {
		for _, r := range rels {
			k := key{
				source:  strings.ToLower(r.Source.Key()),
				content: strings.ToLower(strings.TrimSpace(r.Content)),
				segment: r.SegmentID,
			}
			target := strings.ToLower(r.Target.Key())
			if prev, ok := seen[k]; ok && prev != target {
				return true
			}
			seen[k] = target
		}
		return false
	}
	var exact []*entity.Relationship
	for _, m := range bundle.HighLevel {
		if m.Exact {
			exact = append(exact, m.Rel)
		}
	}
	for _, g := range bundle.Groups {
		for _, m := range g.Relationships {
			if m.Exact {
				exact = append(exact, m.Rel)
			}
		}
	}
	return check(exact)
}

// escalateFrom 降级为升级请求，候选片段取证据包覆盖的片段
func escalateFrom(bundle *evidence.Bundle, j *Judgment, reason string) *Judgment {
	return &Judgment{
		Action:    ActionEscalate,
		Segments:  bundle.CandidateSegments(),
		Rationale: reason,
		// 保留原始回答内容便于日志排查
		Answer: j.Answer,
	}
}
