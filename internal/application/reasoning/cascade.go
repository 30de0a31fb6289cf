// Package reasoning 实现三层证据级联的升级控制器
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/application/graph"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/entity"
	apperrors "video-memory-qa/pkg/errors"
	"video-memory-qa/pkg/logger"
	"video-memory-qa/pkg/metrics"
)

// exhaustedConfidence 预算耗尽时兜底回答的置信度
const exhaustedConfidence = 20

// Config 级联控制器参数
type Config struct {
	// SegmentBudget 单个问题最多重看的片段数
	SegmentBudget int
	// NeighborWindow 情景层取日志时的邻居半径
	NeighborWindow int
	// TopK 每条三元组的默认候选数
	TopK int
	// MatchThreshold 近似匹配的最低综合得分
	MatchThreshold float64
}

// Controller 证据级联控制器
//
// 状态机：PARSE → GRAPH_SEARCH → EPISODIC_LOOKUP → SEGMENT_WATCH，
// 任一层证据充分即终止；片段重看严格按编号升序且受预算约束。
// 图与日志只读，同一视频可被多个问题并发使用。
type Controller struct {
	interp    QueryInterpreter
	judge     EvidenceJudge
	inspector SegmentInspector
	matcher   *match.Matcher
	policy    *Policy
	cfg       Config
	writeback Writeback
}

// Writeback 重看阶段新抽取关系的回写端口，可选
type Writeback interface {
	AppendRelationships(ctx context.Context, videoID string, rels []*entity.Relationship) error
}

// NewController 创建级联控制器
func NewController(interp QueryInterpreter, judge EvidenceJudge, inspector SegmentInspector, matcher *match.Matcher, policy *Policy, cfg Config) *Controller {
	if cfg.SegmentBudget <= 0 {
		cfg.SegmentBudget = 5
	}
	if cfg.NeighborWindow < 0 {
		cfg.NeighborWindow = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	return &Controller{
		interp:    interp,
		judge:     judge,
		inspector: inspector,
		matcher:   matcher,
		policy:    policy,
		cfg:       cfg,
	}
}

// WithWriteback 启用新抽取关系的回写
func (c *Controller) WithWriteback(w Writeback) *Controller {
	c.writeback = w
	return c
}

// Answer 回答针对单个视频的一个问题
//
// 空图直接短路为"无证据"结果；ParseError 对该问题致命；其余
// 异常都吸收为带累积摘要的降级结果，绝不让单个问题的失败
// 扩散到批次里的其他问题。
func (c *Controller) Answer(ctx context.Context, g *graph.EvidenceGraph, logs []*entity.SegmentLog, q *entity.Question) (*entity.QAResult, error) {
	log := logger.FromContext(ctx).With("question_id", q.ID, "video_id", q.VideoID)

	if g.Empty() {
		log.Info("graph has no usable content, short-circuiting")
		return c.result(q, &Judgment{
			Action: ActionAnswer,
			Answer: "No usable evidence was ingested for this video.",
		}, entity.StateAnswered, nil, nil), nil
	}

	parsed, err := c.interp.Parse(ctx, q.Text)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeParseError, "failed to parse question")
	}

	logByID := make(map[int]*entity.SegmentLog, len(logs))
	available := append([]int(nil), g.Segments()...)
	availSeen := make(map[int]struct{}, len(available))
	for _, id := range available {
		availSeen[id] = struct{}{}
	}
	for _, l := range logs {
		logByID[l.SegmentID] = l
		if _, ok := availSeen[l.SegmentID]; !ok {
			availSeen[l.SegmentID] = struct{}{}
			available = append(available, l.SegmentID)
		}
	}
	sort.Ints(available)

	// GRAPH_SEARCH：第一层，图上的关系与对话匹配
	metrics.TierReachedTotal.WithLabelValues(string(entity.StateGraphSearch)).Inc()
	bundle, err := c.graphSearch(ctx, g, parsed, q.Text, nil)
	if err != nil {
		return nil, err
	}
	j, err := c.judge.Judge(ctx, q.Text, parsed, bundle)
	if err != nil {
		return nil, err
	}
	j = c.policy.Vet(parsed, bundle, j, false)
	if j.Action == ActionAnswer {
		log.Info("answered at graph tier", "confidence", j.Confidence)
		return c.result(q, j, entity.StateAnswered, nil, nil), nil
	}

	candidates := c.candidates(j, bundle, available, log)

	// EPISODIC_LOOKUP：第二层，以首轮点名的片段为锚点重打分，
	// 时间上邻近的证据排名靠前，再附加候选片段及其邻居的日志
	metrics.TierReachedTotal.WithLabelValues(string(entity.StateEpisodicLookup)).Inc()
	bundle, err = c.graphSearch(ctx, g, parsed, q.Text, candidates)
	if err != nil {
		return nil, err
	}
	widened := c.episodicLogs(candidates, logByID)
	bundle.AttachLogs(widened)
	j, err = c.judge.Judge(ctx, q.Text, parsed, bundle)
	if err != nil {
		return nil, err
	}
	j = c.policy.Vet(parsed, bundle, j, true)
	if j.Action == ActionAnswer {
		log.Info("answered at episodic tier", "confidence", j.Confidence)
		return c.result(q, j, entity.StateAnswered, nil, nil), nil
	}

	candidates = c.candidates(j, bundle, available, log)

	// SEGMENT_WATCH：第三层，升序逐片段重看
	metrics.TierReachedTotal.WithLabelValues(string(entity.StateSegmentWatch)).Inc()
	return c.segmentWatch(ctx, parsed, q, candidates, log)
}

// graphSearch 图检索：关系三元组匹配加对话匹配
//
// anchors 非空时对锚点片段附近的候选施加时间邻近加成。
func (c *Controller) graphSearch(ctx context.Context, g *graph.EvidenceGraph, parsed *ParsedQuery, question string, anchors []int) (*evidence.Bundle, error) {
	topK := parsed.ResultAllocation
	if topK <= 0 {
		topK = c.cfg.TopK
	}
	opts := match.Options{TopK: topK, Scene: parsed.Scene, MinScore: c.cfg.MatchThreshold, AnchorSegments: anchors}

	perTriple, err := c.matcher.MatchBatch(ctx, parsed.Triples, g.Relationships(), opts)
	if err != nil {
		return nil, err
	}
	var relMatches []match.Match
	seen := make(map[string]struct{})
	for _, ms := range perTriple {
		for _, m := range ms {
			if _, ok := seen[m.Rel.ID]; ok {
				continue
			}
			seen[m.Rel.ID] = struct{}{}
			relMatches = append(relMatches, m)
		}
	}

	var diaMatches []match.DialogueMatch
	if len(parsed.Speakers) > 0 || question != "" {
		diaMatches, err = c.matcher.MatchDialogue(ctx, match.DialogueQuery{
			Speakers:      parsed.Speakers,
			Content:       question,
			SpeakerStrict: parsed.SpeakerStrict,
		}, g.Utterances(), topK)
		if err != nil {
			return nil, err
		}
	}

	return evidence.Assemble(relMatches, diaMatches), nil
}

// episodicLogs 取候选片段及其 ±NeighborWindow 邻居的日志
//
// 邻居用于跨片段的对话连续性。
func (c *Controller) episodicLogs(candidates []int, logByID map[int]*entity.SegmentLog) []*entity.SegmentLog {
	want := make(map[int]struct{})
	for _, id := range candidates {
		for d := -c.cfg.NeighborWindow; d <= c.cfg.NeighborWindow; d++ {
			want[id+d] = struct{}{}
		}
	}
	ids := make([]int, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []*entity.SegmentLog
	for _, id := range ids {
		if l, ok := logByID[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// segmentWatch 第三层：升序逐片段重看，受预算约束
//
// 累积摘要是只追加的发现日志，顺序贯穿整个重看过程。计数
// 问题的提前作答会被丢弃并继续遍历剩余片段；最后一个片段
// 强制作答。
func (c *Controller) segmentWatch(ctx context.Context, parsed *ParsedQuery, q *entity.Question, candidates []int, log *slog.Logger) (*entity.QAResult, error) {
	order := ascendingBudgeted(candidates, c.cfg.SegmentBudget)
	counting := parsed.Kind == entity.KindCounting

	var findings []entity.Finding
	var inspected []int
	var extracted []*entity.Relationship

	for i, segID := range order {
		last := i == len(order)-1
		j, err := c.inspector.Inspect(ctx, InspectRequest{
			Question:    q.Text,
			VideoID:     q.VideoID,
			SegmentID:   segID,
			Accumulated: findings,
			Last:        last,
		})
		if err != nil {
			if isSegmentUnavailable(err) {
				log.Warn("segment media unavailable, skipping", "segment_id", segID)
				if last {
					// 最后一个片段不可用：落回已累积的摘要
					c.flushWriteback(ctx, q.VideoID, extracted, log)
					return c.exhausted(q, findings, inspected), nil
				}
				continue
			}
			return nil, err
		}
		inspected = append(inspected, segID)
		extracted = append(extracted, j.Extracted...)

		if j.Action == ActionAnswer {
			if counting && !last {
				// 计数问题不许提前退出：丢弃该回答但保留发现
				findings = append(findings, entity.Finding{SegmentID: segID, Note: j.Answer})
				log.Info("discarding early answer on counting question", "segment_id", segID)
				continue
			}
			if counting {
				findings = append(findings, entity.Finding{SegmentID: segID, Note: j.Answer})
			}
			c.flushWriteback(ctx, q.VideoID, extracted, log)
			return c.result(q, j, entity.StateAnswered, findings, inspected), nil
		}

		// 非终结片段：把发现追加进累积摘要
		findings = append(findings, entity.Finding{SegmentID: segID, Note: findingNote(j)})
		if last {
			// 最后一个片段必须作答；仍然升级视为预算耗尽
			log.Warn("inspector escalated on last segment", "segment_id", segID)
		}
	}

	c.flushWriteback(ctx, q.VideoID, extracted, log)
	return c.exhausted(q, findings, inspected), nil
}

// flushWriteback 把重看新抽取的关系回写进图存储
//
// 回写失败只记日志，不影响问题结果。
func (c *Controller) flushWriteback(ctx context.Context, videoID string, extracted []*entity.Relationship, log *slog.Logger) {
	if c.writeback == nil || len(extracted) == 0 {
		return
	}
	if err := c.writeback.AppendRelationships(ctx, videoID, extracted); err != nil {
		log.Warn("failed to write back extracted relationships", "error", err.Error())
	}
}

// candidates 确定下一轮调查的片段，处理畸形升级
//
// 升级请求没有点名任何片段时不让问题失败，用最小编号的可用
// 片段兜底，数量受预算约束。
func (c *Controller) candidates(j *Judgment, bundle *evidence.Bundle, available []int, log *slog.Logger) []int {
	ids := j.Segments
	if len(ids) == 0 {
		ids = bundle.CandidateSegments()
	}
	if len(ids) == 0 {
		log.Warn("escalation named no segments, using fallback candidates")
		ids = available
	}
	return ascendingBudgeted(ids, c.cfg.SegmentBudget)
}

// ascendingBudgeted 去重、升序并截断到预算
func ascendingBudgeted(ids []int, budget int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	if budget > 0 && len(out) > budget {
		out = out[:budget]
	}
	return out
}

// exhausted 预算耗尽的兜底结果，带上累积摘要
func (c *Controller) exhausted(q *entity.Question, findings []entity.Finding, inspected []int) *entity.QAResult {
	answer := "The available evidence was insufficient to answer with certainty."
	if len(findings) > 0 {
		lines := make([]string, 0, len(findings))
		for _, f := range findings {
			lines = append(lines, f.String())
		}
		answer = fmt.Sprintf("%s Partial findings: %s", answer, strings.Join(lines, "; "))
	}
	return c.result(q, &Judgment{
		Action:     ActionAnswer,
		Answer:     answer,
		Confidence: exhaustedConfidence,
	}, entity.StateExhausted, findings, inspected)
}

// result 组装最终结果
func (c *Controller) result(q *entity.Question, j *Judgment, state entity.QuestionState, findings []entity.Finding, inspected []int) *entity.QAResult {
	metrics.QuestionsTotal.WithLabelValues(string(state)).Inc()
	metrics.SegmentsInspected.WithLabelValues(string(state)).Observe(float64(len(inspected)))
	return &entity.QAResult{
		QuestionID:        q.ID,
		VideoID:           q.VideoID,
		Question:          q.Text,
		Answer:            j.Answer,
		Confidence:        j.Confidence,
		Citations:         j.Citations,
		State:             state,
		Findings:          findings,
		SegmentsInspected: inspected,
		AnsweredAt:        time.Now(),
	}
}

// findingNote 从升级判定里提取可读的发现描述
func findingNote(j *Judgment) string {
	if strings.TrimSpace(j.Rationale) != "" {
		return strings.TrimSpace(j.Rationale)
	}
	if strings.TrimSpace(j.Answer) != "" {
		return strings.TrimSpace(j.Answer)
	}
	return "no conclusive finding"
}

// isSegmentUnavailable 片段媒体缺失判定
func isSegmentUnavailable(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == apperrors.CodeSegmentUnavailable
	}
	return false
}
