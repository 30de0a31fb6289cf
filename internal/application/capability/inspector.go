package capability

import (
	"context"
	"fmt"
	"strings"

	"video-memory-qa/internal/application/reasoning"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/domain/repository"
	"video-memory-qa/internal/workflow/chain"
	wfmodel "video-memory-qa/internal/workflow/model"
	apperrors "video-memory-qa/pkg/errors"
)

// Inspector 基于 LLM 的原始片段重看器
//
// 重看上下文由片段日志、片段内关系和对话拼装而成，片段制品
// 缺失时返回 SegmentUnavailable，由级联跳过该片段。
type Inspector struct {
	chain    *chain.InspectChain
	graphs   repository.GraphStore
	logs     repository.SegmentLogStore
	provider string
	model    string
}

// NewInspector 创建片段重看器
func NewInspector(c *chain.InspectChain, graphs repository.GraphStore, logs repository.SegmentLogStore, provider, model string) *Inspector {
	return &Inspector{chain: c, graphs: graphs, logs: logs, provider: provider, model: model}
}

// Inspect 重看单个片段并给出判定
func (i *Inspector) Inspect(ctx context.Context, req reasoning.InspectRequest) (*reasoning.Judgment, error) {
	segCtx, err := i.segmentContext(ctx, req.VideoID, req.SegmentID)
	if err != nil {
		return nil, err
	}

	msg, err := i.chain.Invoke(ctx, &wfmodel.InspectInput{
		Question:       req.Question,
		SegmentID:      req.SegmentID,
		IsLast:         req.Last,
		Accumulated:    renderFindings(req.Accumulated),
		SegmentContext: segCtx,
		Provider:       i.provider,
		Model:          i.model,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "inspect chain failed")
	}

	jd, err := parseJudgment(msg.Content)
	if err != nil {
		return nil, err
	}
	// 重看产出的关系默认归属当前片段
	for _, rel := range jd.Extracted {
		rel.VideoID = req.VideoID
		if rel.SegmentID == 0 {
			rel.SegmentID = req.SegmentID
		}
	}
	return jd, nil
}

// segmentContext 拼装片段重看的全部可见素材
func (i *Inspector) segmentContext(ctx context.Context, videoID string, segmentID int) (string, error) {
	log, err := i.logs.GetLog(ctx, videoID, segmentID)
	if err != nil || log == nil {
		return "", apperrors.ErrSegmentUnavailable.WithDetail(
			fmt.Sprintf("segment %d of video %s has no inspectable artifact", segmentID, videoID))
	}

	var b strings.Builder
	if log.Scene != "" {
		fmt.Fprintf(&b, "Scene: %s\n", log.Scene)
	}
	fmt.Fprintf(&b, "Segment log: %s\n", log.Summary)

	rels, err := i.graphs.ListBySegment(ctx, videoID, segmentID)
	if err == nil && len(rels) > 0 {
		b.WriteString("Observed relationships:\n")
		for _, rel := range rels {
			fmt.Fprintf(&b, "- %s\n", rel.Render())
		}
	}

	utts, err := i.graphs.ListUtterances(ctx, videoID)
	if err == nil {
		wrote := false
		for _, u := range utts {
			if u.SegmentID != segmentID {
				continue
			}
			if !wrote {
				b.WriteString("Dialogue:\n")
				wrote = true
			}
			fmt.Fprintf(&b, "- %s\n", u.Render())
		}
	}
	return b.String(), nil
}

// renderFindings 已积累发现的文本化
func renderFindings(findings []entity.Finding) string {
	if len(findings) == 0 {
		return ""
	}
	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}
