// Package graph 提供单个视频的证据图：实体、关系边与对话记录的
// 内存结构，以及基于邻接索引的精确查询。
//
// 图在摄取后构建一次，问答路径只读共享，多个问题可以并发查询
// 同一快照。
package graph

import (
	"sort"
	"strings"

	"video-memory-qa/internal/domain/entity"
)

// Direction 邻接查询方向
type Direction int

const (
	// Outbound 以实体为源的出边
	Outbound Direction = iota
	// Inbound 以实体为目标的入边
	Inbound
	// Both 出边与入边
	Both
)

// EvidenceGraph 一个视频的证据图快照
//
// 构建完成后不可变；邻接索引由关系集合派生，任何时刻都可以
// 从关系集合重建。
type EvidenceGraph struct {
	videoID       string
	relationships []*entity.Relationship
	outbound      map[string][]*entity.Relationship
	inbound       map[string][]*entity.Relationship
	utterances    []*entity.Utterance
	bySegment     map[int][]*entity.Utterance
	segments      []int
}

// Build 从关系边与对话记录构建证据图
//
// 对话按全局序号升序排列；片段编号列表去重后升序。
func Build(videoID string, rels []*entity.Relationship, utts []*entity.Utterance) *EvidenceGraph {
	g := &EvidenceGraph{
		videoID:       videoID,
		relationships: append([]*entity.Relationship(nil), rels...),
		outbound:      make(map[string][]*entity.Relationship),
		inbound:       make(map[string][]*entity.Relationship),
		utterances:    append([]*entity.Utterance(nil), utts...),
		bySegment:     make(map[int][]*entity.Utterance),
	}

	segSeen := make(map[int]struct{})
	for _, r := range g.relationships {
		src := normalizeKey(r.Source.Key())
		dst := normalizeKey(r.Target.Key())
		g.outbound[src] = append(g.outbound[src], r)
		g.inbound[dst] = append(g.inbound[dst], r)
		if !r.IsHighLevel() {
			if _, ok := segSeen[r.SegmentID]; !ok {
				segSeen[r.SegmentID] = struct{}{}
				g.segments = append(g.segments, r.SegmentID)
			}
		}
	}

	sort.SliceStable(g.utterances, func(i, j int) bool {
		return g.utterances[i].Index < g.utterances[j].Index
	})
	for _, u := range g.utterances {
		g.bySegment[u.SegmentID] = append(g.bySegment[u.SegmentID], u)
		if _, ok := segSeen[u.SegmentID]; !ok {
			segSeen[u.SegmentID] = struct{}{}
			g.segments = append(g.segments, u.SegmentID)
		}
	}
	sort.Ints(g.segments)

	return g
}

// VideoID 返回视频标识
func (g *EvidenceGraph) VideoID() string {
	return g.videoID
}

// Empty 图中没有任何关系与对话
//
// 空图是合法状态而非错误，表示视频没有可用内容。
func (g *EvidenceGraph) Empty() bool {
	return len(g.relationships) == 0 && len(g.utterances) == 0
}

// Relationships 返回全部关系边，按插入顺序
func (g *EvidenceGraph) Relationships() []*entity.Relationship {
	return g.relationships
}

// HighLevel 返回全部视频级高层关系
func (g *EvidenceGraph) HighLevel() []*entity.Relationship {
	var out []*entity.Relationship
	for _, r := range g.relationships {
		if r.IsHighLevel() {
			out = append(out, r)
		}
	}
	return out
}

// LowLevel 返回全部片段级低层关系
func (g *EvidenceGraph) LowLevel() []*entity.Relationship {
	var out []*entity.Relationship
	for _, r := range g.relationships {
		if !r.IsHighLevel() {
			out = append(out, r)
		}
	}
	return out
}

// Segments 返回出现过的片段编号，升序
func (g *EvidenceGraph) Segments() []int {
	return g.segments
}

// LookupExact 按三元组精确查询，空字段为通配符
//
// 字段比较经过大小写归一化。结果顺序与关系插入顺序一致，
// 对同一图重复查询返回完全相同的结果。
func (g *EvidenceGraph) LookupExact(source, content, target string) []*entity.Relationship {
	// 有端点约束时走邻接索引，否则全量过滤
	var pool []*entity.Relationship
	switch {
	case source != "":
		pool = indexLookup(g.outbound, source)
	case target != "":
		pool = indexLookup(g.inbound, target)
	default:
		pool = g.relationships
	}

	var out []*entity.Relationship
	for _, r := range pool {
		if source != "" && !sameNode(source, r.Source) {
			continue
		}
		if target != "" && !sameNode(target, r.Target) {
			continue
		}
		if content != "" && !sameText(content, r.Content) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Neighbors 返回实体的邻接边
func (g *EvidenceGraph) Neighbors(ref entity.EntityRef, dir Direction) []*entity.Relationship {
	key := normalizeKey(ref.Key())
	switch dir {
	case Outbound:
		return g.outbound[key]
	case Inbound:
		return g.inbound[key]
	default:
		out := append([]*entity.Relationship(nil), g.outbound[key]...)
		return append(out, g.inbound[key]...)
	}
}

// ConnectedEdges 返回连接两个实体的所有边，不区分方向
func (g *EvidenceGraph) ConnectedEdges(a, b entity.EntityRef) []*entity.Relationship {
	bKey := normalizeKey(b.Key())
	var out []*entity.Relationship
	for _, r := range g.outbound[normalizeKey(a.Key())] {
		if normalizeKey(r.Target.Key()) == bKey {
			out = append(out, r)
		}
	}
	for _, r := range g.inbound[normalizeKey(a.Key())] {
		if normalizeKey(r.Source.Key()) == bKey {
			out = append(out, r)
		}
	}
	return out
}

// DialogueFor 返回指定片段的对话记录，按全局序号升序
func (g *EvidenceGraph) DialogueFor(segmentIDs []int) []*entity.Utterance {
	want := make(map[int]struct{}, len(segmentIDs))
	for _, id := range segmentIDs {
		want[id] = struct{}{}
	}
	var out []*entity.Utterance
	for _, u := range g.utterances {
		if _, ok := want[u.SegmentID]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Utterances 返回全部对话记录，按全局序号升序
func (g *EvidenceGraph) Utterances() []*entity.Utterance {
	return g.utterances
}

// ContextWindow 返回指定对话前后 radius 条以内的上下文
//
// 用于跨片段的对话连续性：窗口不受片段边界限制。
func (g *EvidenceGraph) ContextWindow(u *entity.Utterance, radius int) []*entity.Utterance {
	if radius < 0 {
		radius = 0
	}
	pos := -1
	for i, cand := range g.utterances {
		if cand.Index == u.Index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil
	}
	lo := pos - radius
	if lo < 0 {
		lo = 0
	}
	hi := pos + radius + 1
	if hi > len(g.utterances) {
		hi = len(g.utterances)
	}
	return g.utterances[lo:hi]
}

// normalizeKey 归一化节点键用于索引比较
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sameText 归一化后的文本相等比较
func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// sameNode 查询端点与节点引用的归一化比较
//
// 查询端点既可以是完整节点键（<Alice> 或 knife@Alice#bloody），
// 也可以是裸名称；裸名称与同名人物节点视为相同。
func sameNode(query string, ref entity.EntityRef) bool {
	q := normalizeKey(query)
	if q == normalizeKey(ref.Key()) {
		return true
	}
	if ref.IsCharacter() && q == normalizeKey(ref.Name) {
		return true
	}
	return false
}

// indexLookup 邻接索引查找，裸名称同时尝试人物键
func indexLookup(idx map[string][]*entity.Relationship, endpoint string) []*entity.Relationship {
	key := normalizeKey(endpoint)
	if rels, ok := idx[key]; ok {
		return rels
	}
	if !strings.HasPrefix(key, "<") {
		return idx["<"+key+">"]
	}
	return nil
}
