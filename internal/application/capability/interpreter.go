// Package capability 用 LLM 工作流链实现级联所需的外部能力：
// 问题解析、证据裁判与片段审查。
package capability

import (
	"context"
	"encoding/json"
	"strings"

	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/application/reasoning"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/workflow/chain"
	wfmodel "video-memory-qa/internal/workflow/model"
	wfnode "video-memory-qa/internal/workflow/node"
	apperrors "video-memory-qa/pkg/errors"
)

// Interpreter 基于 LLM 的问题解析器
type Interpreter struct {
	chain    *chain.InterpretChain
	provider string
	model    string
}

// NewInterpreter 创建问题解析器
func NewInterpreter(c *chain.InterpretChain, provider, model string) *Interpreter {
	return &Interpreter{chain: c, provider: provider, model: model}
}

// Parse 把自然语言问题解析为结构化查询
//
// 输出畸形或没有任何三元组时返回 ParseError。
func (i *Interpreter) Parse(ctx context.Context, question string) (*reasoning.ParsedQuery, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.ErrParseError.WithDetail("question is empty")
	}

	msg, err := i.chain.Invoke(ctx, &wfmodel.InterpretInput{
		Question: question,
		Provider: i.provider,
		Model:    i.model,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "interpret chain failed")
	}

	var payload wfmodel.InterpretPayload
	if err := json.Unmarshal([]byte(wfnode.ExtractJSONObject(msg.Content)), &payload); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeParseError, "malformed interpreter output")
	}

	triples := make([]match.QueryTriple, 0, len(payload.Triples))
	for _, t := range payload.Triples {
		if t.Source == "" && t.Content == "" && t.Target == "" {
			continue
		}
		triples = append(triples, match.QueryTriple{
			Source:  strings.TrimSpace(t.Source),
			Content: strings.TrimSpace(t.Content),
			Target:  strings.TrimSpace(t.Target),
		})
	}
	if len(triples) == 0 {
		return nil, apperrors.ErrParseError.WithDetail("interpreter produced no query triples")
	}

	return &reasoning.ParsedQuery{
		Triples:          triples,
		Kind:             parseKind(payload.Kind),
		Scene:            strings.TrimSpace(payload.Scene),
		Speakers:         payload.Speakers,
		SpeakerStrict:    payload.SpeakerStrict,
		CompareItems:     payload.CompareItems,
		ResultAllocation: payload.ResultAllocation,
	}, nil
}

// parseKind 问题类别字符串映射，未知值落到 general
func parseKind(s string) entity.QuestionKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(entity.KindLocation):
		return entity.KindLocation
	case string(entity.KindCounting):
		return entity.KindCounting
	case string(entity.KindCausal):
		return entity.KindCausal
	case string(entity.KindComparison):
		return entity.KindComparison
	default:
		return entity.KindGeneral
	}
}
