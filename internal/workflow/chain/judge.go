package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "video-memory-qa/internal/domain/service"
	wfmodel "video-memory-qa/internal/workflow/model"
	wfnode "video-memory-qa/internal/workflow/node"
	workflowport "video-memory-qa/internal/workflow/port"
	workflowprompt "video-memory-qa/internal/workflow/prompt"
	"video-memory-qa/pkg/logger"
)

var defaultPromptRegistry = workflowprompt.NewRegistry()

// JudgeChain 证据裁判链：问题 + 证据包 → 作答或升级
type JudgeChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.JudgeInput, *schema.Message]
	chainErr  error
}

func NewJudgeChain(factory workflowport.ChatModelFactory) *JudgeChain {
	return &JudgeChain{factory: factory}
}

func (c *JudgeChain) Invoke(ctx context.Context, in *wfmodel.JudgeInput) (*schema.Message, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}

	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, in)
}

type judgeChainState struct {
	In       *wfmodel.JudgeInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *JudgeChain) getChain() (compose.Runnable[*wfmodel.JudgeInput, *schema.Message], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *JudgeChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.JudgeInput, *schema.Message], error) {
	chain := compose.NewChain[*wfmodel.JudgeInput, *schema.Message]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.JudgeInput) (*judgeChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			return &judgeChainState{In: in}, nil
		}),
		compose.WithNodeName("judge.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *judgeChainState) (*judgeChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptJudgeEvidenceV1)
			if err != nil {
				return nil, err
			}
			msgs, err := tpl.Format(ctx, map[string]any{
				"question": strings.TrimSpace(st.In.Question),
				"kind":     strings.TrimSpace(st.In.Kind),
				"triples":  strings.TrimSpace(st.In.Triples),
				"evidence": st.In.Evidence,
			})
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("judge.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *judgeChainState) (*judgeChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			if c.factory == nil {
				return nil, fmt.Errorf("llm factory not configured")
			}

			ctx = llmctx.WithWorkflowProvider(ctx, "judge_evidence", strings.TrimSpace(st.In.Provider))
			chatModel, err := c.factory.Get(ctx, strings.TrimSpace(st.In.Provider))
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildJudgmentModelOptions(st.In.Model, "judge_evidence", true)...)
			if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"provider", strings.TrimSpace(st.In.Provider),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildJudgmentModelOptions(st.In.Model, "judge_evidence", false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("judge.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *judgeChainState) (*schema.Message, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return st.OutMsg, nil
		}),
		compose.WithNodeName("judge.finalize"),
	)

	return chain.Compile(ctx)
}

// buildJudgmentModelOptions 裁判链与审查链共用的模型选项
func buildJudgmentModelOptions(modelName, schemaName string, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if strings.TrimSpace(modelName) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(modelName)))
	}

	if enableSchema {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   schemaName,
					"strict": false,
					"schema": judgmentJSONSchema(),
				},
			},
		}))
	}

	return opts
}

func judgmentJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"action"},
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{"answer", "search"},
			},
			"answer":     map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "integer"},
			"citations":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"segments":   map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			"rationale":  map[string]any{"type": "string"},
			"extracted": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"source", "content", "target"},
					"properties": map[string]any{
						"source":     map[string]any{"type": "string"},
						"content":    map[string]any{"type": "string"},
						"target":     map[string]any{"type": "string"},
						"confidence": map[string]any{"type": "integer"},
						"segment_id": map[string]any{"type": "integer"},
						"scene":      map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}
