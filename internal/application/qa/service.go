// Package qa 负责问答批次的编排：按视频调度工作池、懒加载并
// 缓存证据图与片段日志、把结果安全合并进结果存储。
package qa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"video-memory-qa/internal/application/graph"
	"video-memory-qa/internal/application/reasoning"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/domain/repository"
	apperrors "video-memory-qa/pkg/errors"
	"video-memory-qa/pkg/logger"
	"video-memory-qa/pkg/metrics"
)

// Config 编排参数
type Config struct {
	// VideoConcurrency 同时处理的视频数
	VideoConcurrency int
	// QuestionConcurrency 单个视频内并发处理的问题数
	QuestionConcurrency int
}

// Service 问答编排服务
//
// 图与日志每视频加载一次后进程内缓存，所有问题只读共享同一
// 快照；结果写入走 ResultsStore 的锁定读-合并-写。
type Service struct {
	graphs     repository.GraphStore
	logs       repository.SegmentLogStore
	results    repository.ResultsStore
	controller *reasoning.Controller
	cfg        Config

	graphCache sync.Map // videoID -> *graph.EvidenceGraph
	logCache   sync.Map // videoID -> []*entity.SegmentLog
	loading    singleflight.Group
}

// NewService 创建编排服务
func NewService(graphs repository.GraphStore, logs repository.SegmentLogStore, results repository.ResultsStore, controller *reasoning.Controller, cfg Config) *Service {
	if cfg.VideoConcurrency <= 0 {
		cfg.VideoConcurrency = 2
	}
	if cfg.QuestionConcurrency <= 0 {
		cfg.QuestionConcurrency = 2
	}
	return &Service{
		graphs:     graphs,
		logs:       logs,
		results:    results,
		controller: controller,
		cfg:        cfg,
	}
}

// AnswerBatch 处理多视频问答批次
//
// 视频间由有界工作池并行；一个视频的失败不会中断其他视频，
// 失败体现在该视频问题的结果状态里。
func (s *Service) AnswerBatch(ctx context.Context, batch map[string][]*entity.Question) error {
	eg := &errgroup.Group{}
	eg.SetLimit(s.cfg.VideoConcurrency)
	for videoID, questions := range batch {
		videoID, questions := videoID, questions
		eg.Go(func() error {
			// 单视频的错误在 AnswerVideo 内部吸收
			return s.AnswerVideo(ctx, videoID, questions)
		})
	}
	return eg.Wait()
}

// AnswerVideo 处理单个视频的全部问题
//
// 视频图制品缺失时所有问题标记为失败；其余情况下每个问题
// 独立结算，互不阻塞。
func (s *Service) AnswerVideo(ctx context.Context, videoID string, questions []*entity.Question) error {
	ctx = logger.WithContext(ctx, logger.VideoIDKey, videoID)
	log := logger.FromContext(ctx)
	metrics.ActiveVideos.Inc()
	defer metrics.ActiveVideos.Dec()

	g, segLogs, err := s.load(ctx, videoID)
	if err != nil {
		log.Error("failed to load video artifacts", "error", err.Error())
		results := make(map[string]*entity.QAResult, len(questions))
		for _, q := range questions {
			results[q.ID] = failedResult(q, err)
		}
		return s.merge(ctx, videoID, results)
	}

	var mu sync.Mutex
	results := make(map[string]*entity.QAResult, len(questions))

	eg := &errgroup.Group{}
	eg.SetLimit(s.cfg.QuestionConcurrency)
	for _, q := range questions {
		q := q
		eg.Go(func() error {
			res := s.answerOne(ctx, g, segLogs, q)
			mu.Lock()
			results[q.ID] = res
			mu.Unlock()
			return nil
		})
	}
	// 每个问题都自行结算，组内不产生错误
	_ = eg.Wait()

	return s.merge(ctx, videoID, results)
}

// answerOne 处理单个问题，把所有异常折算成结果状态
func (s *Service) answerOne(ctx context.Context, g *graph.EvidenceGraph, segLogs []*entity.SegmentLog, q *entity.Question) *entity.QAResult {
	ctx = logger.WithContext(ctx, logger.QuestionIDKey, q.ID)
	log := logger.FromContext(ctx)
	start := time.Now()

	res, err := s.controller.Answer(ctx, g, segLogs, q)
	if err != nil {
		if isParseError(err) {
			log.Error("question could not be parsed", "error", err.Error())
			return failedResult(q, err)
		}
		// 其余异常降级为低置信度结果，不得阻塞批次
		log.Error("cascade failed, emitting degraded result", "error", err.Error())
		return &entity.QAResult{
			QuestionID: q.ID,
			VideoID:    q.VideoID,
			Question:   q.Text,
			Answer:     "The question could not be fully processed.",
			Confidence: 0,
			State:      entity.StateExhausted,
			AnsweredAt: time.Now(),
		}
	}

	metrics.QuestionDuration.WithLabelValues(string(res.State)).Observe(time.Since(start).Seconds())
	return res
}

// load 懒加载视频的图与日志，进程内缓存，并发请求合并
func (s *Service) load(ctx context.Context, videoID string) (*graph.EvidenceGraph, []*entity.SegmentLog, error) {
	if g, ok := s.graphCache.Load(videoID); ok {
		if l, ok := s.logCache.Load(videoID); ok {
			return g.(*graph.EvidenceGraph), l.([]*entity.SegmentLog), nil
		}
	}

	type loaded struct {
		g    *graph.EvidenceGraph
		logs []*entity.SegmentLog
	}
	v, err, _ := s.loading.Do(videoID, func() (any, error) {
		exists, err := s.graphs.Exists(ctx, videoID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.ErrVideoNotFound.WithDetail(fmt.Sprintf("video %s has no ingested graph", videoID))
		}

		rels, err := s.graphs.ListRelationships(ctx, videoID)
		if err != nil {
			return nil, err
		}
		utts, err := s.graphs.ListUtterances(ctx, videoID)
		if err != nil {
			return nil, err
		}
		segLogs, err := s.logs.ListLogs(ctx, videoID)
		if err != nil {
			return nil, err
		}

		g := graph.Build(videoID, rels, utts)
		s.graphCache.Store(videoID, g)
		s.logCache.Store(videoID, segLogs)
		return loaded{g: g, logs: segLogs}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	l := v.(loaded)
	return l.g, l.logs, nil
}

// InvalidateVideo 清除视频的进程内缓存
//
// 重看回写新关系后调用，下一个问题会重新加载图。
func (s *Service) InvalidateVideo(videoID string) {
	s.graphCache.Delete(videoID)
	s.logCache.Delete(videoID)
}

// AppendRelationships 落库重看阶段新抽取的关系并失效图缓存
//
// 回写失败只丢掉增量知识，不影响当前问题的回答。
func (s *Service) AppendRelationships(ctx context.Context, videoID string, rels []*entity.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	if err := s.graphs.SaveRelationships(ctx, rels); err != nil {
		return err
	}
	s.InvalidateVideo(videoID)
	return nil
}

// Results 读取视频的全部结果
func (s *Service) Results(ctx context.Context, videoID string) (map[string]*entity.QAResult, error) {
	return s.results.GetResults(ctx, videoID)
}

// merge 把结果合并进共享结果存储
func (s *Service) merge(ctx context.Context, videoID string, results map[string]*entity.QAResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := s.results.MergeResults(ctx, videoID, results); err != nil {
		logger.FromContext(ctx).Error("failed to merge results", "video_id", videoID, "error", err.Error())
		return err
	}
	return nil
}

// failedResult 问题级失败的结果
func failedResult(q *entity.Question, err error) *entity.QAResult {
	return &entity.QAResult{
		QuestionID: q.ID,
		VideoID:    q.VideoID,
		Question:   q.Text,
		Answer:     apperrors.AsAppError(err).Message,
		State:      entity.StateFailed,
		AnsweredAt: time.Now(),
	}
}

// isParseError 问题解析失败判定
func isParseError(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == apperrors.CodeParseError
	}
	return false
}
