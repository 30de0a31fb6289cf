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

// InterpretChain 问题解析链：自然语言问题 → 结构化查询
type InterpretChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.InterpretInput, *schema.Message]
	chainErr  error
}

func NewInterpretChain(factory workflowport.ChatModelFactory) *InterpretChain {
	return &InterpretChain{factory: factory}
}

func (c *InterpretChain) Invoke(ctx context.Context, in *wfmodel.InterpretInput) (*schema.Message, error) {
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

type interpretChainState struct {
	In       *wfmodel.InterpretInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *InterpretChain) getChain() (compose.Runnable[*wfmodel.InterpretInput, *schema.Message], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *InterpretChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.InterpretInput, *schema.Message], error) {
	chain := compose.NewChain[*wfmodel.InterpretInput, *schema.Message]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.InterpretInput) (*interpretChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			return &interpretChainState{In: in}, nil
		}),
		compose.WithNodeName("interpret.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *interpretChainState) (*interpretChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptInterpretQuestionV1)
			if err != nil {
				return nil, err
			}
			msgs, err := tpl.Format(ctx, map[string]any{
				"question": strings.TrimSpace(st.In.Question),
			})
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("interpret.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *interpretChainState) (*interpretChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			if c.factory == nil {
				return nil, fmt.Errorf("llm factory not configured")
			}

			ctx = llmctx.WithWorkflowProvider(ctx, "interpret_question", strings.TrimSpace(st.In.Provider))
			chatModel, err := c.factory.Get(ctx, strings.TrimSpace(st.In.Provider))
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildInterpretModelOptions(st.In, true)...)
			if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"provider", strings.TrimSpace(st.In.Provider),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildInterpretModelOptions(st.In, false)...)
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
		compose.WithNodeName("interpret.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *interpretChainState) (*schema.Message, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return st.OutMsg, nil
		}),
		compose.WithNodeName("interpret.finalize"),
	)

	return chain.Compile(ctx)
}

func buildInterpretModelOptions(in *wfmodel.InterpretInput, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if in == nil {
		return opts
	}
	if strings.TrimSpace(in.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(in.Model)))
	}

	if enableSchema {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   "interpret_question",
					"strict": false,
					"schema": interpretJSONSchema(),
				},
			},
		}))
	}

	return opts
}

func interpretJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"triples", "kind"},
		"properties": map[string]any{
			"triples": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"source", "content", "target"},
					"properties": map[string]any{
						"source":  map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
						"target":  map[string]any{"type": "string"},
					},
				},
			},
			"kind": map[string]any{
				"type": "string",
				"enum": []any{"general", "location", "counting", "causal", "comparison"},
			},
			"scene":             map[string]any{"type": "string"},
			"speakers":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"speaker_strict":    map[string]any{"type": "boolean"},
			"compare_items":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"result_allocation": map[string]any{"type": "integer"},
		},
	}
}
