// Package capability 用 LLM 工作流链实现级联所需的外部能力
package capability

import (
	"context"
	"encoding/json"
	"strings"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/application/reasoning"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/workflow/chain"
	wfmodel "video-memory-qa/internal/workflow/model"
	wfnode "video-memory-qa/internal/workflow/node"
	apperrors "video-memory-qa/pkg/errors"
)

// Judge 基于 LLM 的证据充分性裁判
type Judge struct {
	chain    *chain.JudgeChain
	provider string
	model    string
}

// NewJudge 创建证据裁判
func NewJudge(c *chain.JudgeChain, provider, model string) *Judge {
	return &Judge{chain: c, provider: provider, model: model}
}

// Judge 判定证据是否足以作答
func (j *Judge) Judge(ctx context.Context, question string, parsed *reasoning.ParsedQuery, bundle *evidence.Bundle) (*reasoning.Judgment, error) {
	msg, err := j.chain.Invoke(ctx, &wfmodel.JudgeInput{
		Question: question,
		Kind:     string(parsed.Kind),
		Triples:  renderTriples(parsed.Triples),
		Evidence: bundle.Render(),
		Provider: j.provider,
		Model:    j.model,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "judge chain failed")
	}
	return parseJudgment(msg.Content)
}

// renderTriples 三元组的文本化
func renderTriples(triples []match.QueryTriple) string {
	parts := make([]string, 0, len(triples))
	for _, t := range triples {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, "; ")
}

// parseJudgment 解析判定输出
//
// 先按 JSON 解析；失败时回退到 "Action:/Content:" 纯文本格式，
// 升级动作从内容里抽取片段编号。两种格式都解析不出时返回
// LLM 调用失败，由上层吸收为降级结果。
func parseJudgment(content string) (*reasoning.Judgment, error) {
	var payload wfmodel.JudgmentPayload
	if err := json.Unmarshal([]byte(wfnode.ExtractJSONObject(content)), &payload); err == nil && payload.Action != "" {
		return judgmentFromPayload(&payload), nil
	}

	action, text, ok := wfnode.ParseActionContent(content)
	if !ok {
		return nil, apperrors.ErrLLMCallFailed.WithDetail("judgment output is neither JSON nor action/content format")
	}
	jd := &reasoning.Judgment{Answer: text}
	if action == "answer" {
		jd.Action = reasoning.ActionAnswer
	} else {
		jd.Action = reasoning.ActionEscalate
		jd.Segments = wfnode.ExtractSegmentIDs(text)
		jd.Rationale = text
		jd.Answer = ""
	}
	return jd, nil
}

// judgmentFromPayload JSON 输出映射为领域判定
func judgmentFromPayload(p *wfmodel.JudgmentPayload) *reasoning.Judgment {
	jd := &reasoning.Judgment{
		Answer:     strings.TrimSpace(p.Answer),
		Confidence: clampConfidence(p.Confidence),
		Citations:  p.Citations,
		Segments:   p.Segments,
		Rationale:  strings.TrimSpace(p.Rationale),
	}
	if strings.EqualFold(strings.TrimSpace(p.Action), string(reasoning.ActionAnswer)) {
		jd.Action = reasoning.ActionAnswer
	} else {
		jd.Action = reasoning.ActionEscalate
	}
	for _, e := range p.Extracted {
		rel := extractedToRelationship(e)
		if rel != nil {
			jd.Extracted = append(jd.Extracted, rel)
		}
	}
	return jd
}

// extractedToRelationship 新抽取关系的映射，端点解析失败则丢弃
func extractedToRelationship(e wfmodel.ExtractedPayload) *entity.Relationship {
	src, ok := entity.ParseEntityRef(e.Source)
	if !ok {
		return nil
	}
	dst, ok := entity.ParseEntityRef(e.Target)
	if !ok {
		return nil
	}
	content := strings.TrimSpace(e.Content)
	if content == "" {
		return nil
	}
	return &entity.Relationship{
		Source:     src,
		Target:     dst,
		Content:    content,
		Confidence: clampConfidence(e.Confidence),
		SegmentID:  e.SegmentID,
		Scene:      strings.TrimSpace(e.Scene),
	}
}

// clampConfidence 置信度夹取到 [0,100]
func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
