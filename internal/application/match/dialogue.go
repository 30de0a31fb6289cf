// Package match 实现结构化查询片段与候选关系、对话之间的相似度
// 匹配：先精确匹配，再按字段嵌入相似度近似匹配。
package match

import (
	"context"
	"sort"
	"strings"

	"video-memory-qa/internal/domain/entity"
)

// DialogueQuery 对话匹配查询
type DialogueQuery struct {
	// Speakers 期望的说话人集合
	Speakers []string
	// Content 期望的内容，空串表示只按说话人过滤
	Content string
	// SpeakerStrict 为真时要求包含全部说话人，否则命中任一即可
	SpeakerStrict bool
}

// DialogueMatch 一条带分数的对话匹配
type DialogueMatch struct {
	Utt   *entity.Utterance
	Score float64
	Exact bool
}

// MatchDialogue 对话两段式匹配
//
// 精确段按说话人集合包含判定，近似段按内容嵌入相似度打分；
// 精确命中永远排在近似命中之前。
func (m *Matcher) MatchDialogue(ctx context.Context, q DialogueQuery, candidates []*entity.Utterance, topK int) ([]DialogueMatch, error) {
	var vectors map[string][]float64
	if q.Content != "" {
		texts := map[string]struct{}{q.Content: {}}
		for _, u := range candidates {
			if t := strings.TrimSpace(u.Text); t != "" {
				texts[t] = struct{}{}
			}
		}
		var err error
		vectors, err = m.embedAll(ctx, texts)
		if err != nil {
			return nil, err
		}
	}

	contentSim := func(u *entity.Utterance) float64 {
		if q.Content == "" {
			return 0
		}
		return fieldSim(vectors, q.Content, strings.TrimSpace(u.Text))
	}

	var exact, approx []DialogueMatch
	for _, u := range candidates {
		if speakersMatch(q, u) {
			exact = append(exact, DialogueMatch{Utt: u, Score: exactScoreBand + contentSim(u), Exact: true})
		} else if q.Content != "" {
			approx = append(approx, DialogueMatch{Utt: u, Score: contentSim(u)})
		}
	}
	sortDialogue(exact)
	sortDialogue(approx)

	out := append(exact, approx...)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// speakersMatch 说话人集合判定
func speakersMatch(q DialogueQuery, u *entity.Utterance) bool {
	if len(q.Speakers) == 0 {
		return false
	}
	hit := 0
	for _, s := range q.Speakers {
		if u.HasSpeaker(s) {
			hit++
		}
	}
	if q.SpeakerStrict {
		return hit == len(q.Speakers)
	}
	return hit > 0
}

// sortDialogue 分数降序，同分按全局序号升序
func sortDialogue(ms []DialogueMatch) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].Utt.Index < ms[j].Utt.Index
	})
}
