// Package evidence 把匹配到的关系、对话与片段日志合并为按片段
// 分组的证据包，供充分性判定使用。
//
// 证据包归单个在途问题所有，问题结束后即丢弃。
package evidence

import (
	"fmt"
	"sort"
	"strings"

	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
)

// SegmentGroup 同一片段内的证据分组
type SegmentGroup struct {
	SegmentID     int
	Scene         string
	Relationships []match.Match
	Dialogue      []match.DialogueMatch
	// Log 升级到情景层之后附加的片段日志
	Log *entity.SegmentLog
	// Score 组内所有匹配分数之和，决定分组排序
	Score float64
}

// Bundle 单个问题的证据包
//
// HighLevel 放视频级高层关系匹配；Groups 按聚合分数降序。
type Bundle struct {
	HighLevel []match.Match
	Groups    []*SegmentGroup
}

// Assemble 从关系匹配与对话匹配组装证据包
//
// 纯函数：按片段分组、附加场景与对话上下文、按聚合分数降序
// 排列分组。
func Assemble(relMatches []match.Match, diaMatches []match.DialogueMatch) *Bundle {
	b := &Bundle{}
	byID := make(map[int]*SegmentGroup)

	group := func(segmentID int) *SegmentGroup {
		g, ok := byID[segmentID]
		if !ok {
			g = &SegmentGroup{SegmentID: segmentID}
			byID[segmentID] = g
			b.Groups = append(b.Groups, g)
		}
		return g
	}

	for _, m := range relMatches {
		if m.Rel.IsHighLevel() {
			b.HighLevel = append(b.HighLevel, m)
			continue
		}
		g := group(m.Rel.SegmentID)
		g.Relationships = append(g.Relationships, m)
		g.Score += m.Score
		if g.Scene == "" {
			g.Scene = m.Rel.Scene
		}
	}
	for _, d := range diaMatches {
		g := group(d.Utt.SegmentID)
		g.Dialogue = append(g.Dialogue, d)
		g.Score += d.Score
	}

	b.sortGroups()
	return b
}

// AttachLogs 附加片段日志，把证据包拓宽到情景层
//
// 只影响已有分组或新建分组，不移除任何既有证据。
func (b *Bundle) AttachLogs(logs []*entity.SegmentLog) {
	byID := make(map[int]*SegmentGroup, len(b.Groups))
	for _, g := range b.Groups {
		byID[g.SegmentID] = g
	}
	for _, l := range logs {
		g, ok := byID[l.SegmentID]
		if !ok {
			g = &SegmentGroup{SegmentID: l.SegmentID}
			byID[l.SegmentID] = g
			b.Groups = append(b.Groups, g)
		}
		g.Log = l
		if g.Scene == "" {
			g.Scene = l.Scene
		}
	}
	b.sortGroups()
}

// sortGroups 聚合分数降序，同分按片段编号升序
func (b *Bundle) sortGroups() {
	sort.SliceStable(b.Groups, func(i, j int) bool {
		if b.Groups[i].Score != b.Groups[j].Score {
			return b.Groups[i].Score > b.Groups[j].Score
		}
		return b.Groups[i].SegmentID < b.Groups[j].SegmentID
	})
}

// CandidateSegments 返回证据包覆盖的片段编号，按分组顺序
func (b *Bundle) CandidateSegments() []int {
	out := make([]int, 0, len(b.Groups))
	for _, g := range b.Groups {
		out = append(out, g.SegmentID)
	}
	return out
}

// HasDialogue 是否包含任何对话证据
func (b *Bundle) HasDialogue() bool {
	for _, g := range b.Groups {
		if len(g.Dialogue) > 0 {
			return true
		}
	}
	return false
}

// Empty 证据包没有任何匹配
func (b *Bundle) Empty() bool {
	return len(b.HighLevel) == 0 && len(b.Groups) == 0
}

// BestExact 返回最高分的精确关系匹配
func (b *Bundle) BestExact() (match.Match, bool) {
	best := match.Match{}
	found := false
	consider := func(m match.Match) {
		if !m.Exact {
			return
		}
		if !found || m.Score > best.Score {
			best = m
			found = true
		}
	}
	for _, m := range b.HighLevel {
		consider(m)
	}
	for _, g := range b.Groups {
		for _, m := range g.Relationships {
			consider(m)
		}
	}
	return best, found
}

// Render 把证据包渲染为自然语言文本
func (b *Bundle) Render() string {
	var sb strings.Builder
	if len(b.HighLevel) > 0 {
		sb.WriteString("Throughout the video:\n")
		for _, m := range b.HighLevel {
			fmt.Fprintf(&sb, "- %s\n", m.Rel.Render())
		}
	}
	for _, g := range b.Groups {
		if g.Scene != "" {
			fmt.Fprintf(&sb, "Segment %d (at %s):\n", g.SegmentID, g.Scene)
		} else {
			fmt.Fprintf(&sb, "Segment %d:\n", g.SegmentID)
		}
		for _, m := range g.Relationships {
			fmt.Fprintf(&sb, "- %s\n", m.Rel.Render())
		}
		if len(g.Dialogue) > 0 {
			sb.WriteString("Dialogue:\n")
			for _, d := range g.Dialogue {
				fmt.Fprintf(&sb, "  %s\n", d.Utt.Render())
			}
		}
		if g.Log != nil {
			fmt.Fprintf(&sb, "Segment log: %s\n", g.Log.Summary)
		}
	}
	if sb.Len() == 0 {
		return "No matching evidence."
	}
	return sb.String()
}
