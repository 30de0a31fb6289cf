package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "video-memory-qa/internal/domain/service"
	wfmodel "video-memory-qa/internal/workflow/model"
	wfnode "video-memory-qa/internal/workflow/node"
	workflowport "video-memory-qa/internal/workflow/port"
	workflowprompt "video-memory-qa/internal/workflow/prompt"
	"video-memory-qa/pkg/logger"
)

// InspectChain 片段审查链：逐片段重看并结合累积发现作答
type InspectChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.InspectInput, *schema.Message]
	chainErr  error
}

func NewInspectChain(factory workflowport.ChatModelFactory) *InspectChain {
	return &InspectChain{factory: factory}
}

func (c *InspectChain) Invoke(ctx context.Context, in *wfmodel.InspectInput) (*schema.Message, error) {
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

type inspectChainState struct {
	In       *wfmodel.InspectInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *InspectChain) getChain() (compose.Runnable[*wfmodel.InspectInput, *schema.Message], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *InspectChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.InspectInput, *schema.Message], error) {
	chain := compose.NewChain[*wfmodel.InspectInput, *schema.Message]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.InspectInput) (*inspectChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			return &inspectChainState{In: in}, nil
		}),
		compose.WithNodeName("inspect.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *inspectChainState) (*inspectChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptInspectSegmentV1)
			if err != nil {
				return nil, err
			}
			accumulated := strings.TrimSpace(st.In.Accumulated)
			if accumulated == "" {
				accumulated = "(none)"
			}
			msgs, err := tpl.Format(ctx, map[string]any{
				"question":        strings.TrimSpace(st.In.Question),
				"segment_id":      strconv.Itoa(st.In.SegmentID),
				"is_last":         strconv.FormatBool(st.In.IsLast),
				"accumulated":     accumulated,
				"segment_context": st.In.SegmentContext,
			})
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("inspect.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *inspectChainState) (*inspectChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			if c.factory == nil {
				return nil, fmt.Errorf("llm factory not configured")
			}

			ctx = llmctx.WithWorkflowProvider(ctx, "inspect_segment", strings.TrimSpace(st.In.Provider))
			chatModel, err := c.factory.Get(ctx, strings.TrimSpace(st.In.Provider))
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildJudgmentModelOptions(st.In.Model, "inspect_segment", true)...)
			if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"provider", strings.TrimSpace(st.In.Provider),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildJudgmentModelOptions(st.In.Model, "inspect_segment", false)...)
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
		compose.WithNodeName("inspect.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *inspectChainState) (*schema.Message, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return st.OutMsg, nil
		}),
		compose.WithNodeName("inspect.finalize"),
	)

	return chain.Compile(ctx)
}
