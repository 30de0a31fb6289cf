package qa

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-memory-qa/internal/application/evidence"
	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/application/reasoning"
	"video-memory-qa/internal/domain/entity"
	apperrors "video-memory-qa/pkg/errors"
)

type memGraphStore struct {
	mu        sync.Mutex
	rels      map[string][]*entity.Relationship
	utts      map[string][]*entity.Utterance
	listCalls int
}

func newMemGraphStore() *memGraphStore {
	return &memGraphStore{
		rels: make(map[string][]*entity.Relationship),
		utts: make(map[string][]*entity.Utterance),
	}
}

func (s *memGraphStore) Exists(_ context.Context, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rels[videoID]
	return ok, nil
}

func (s *memGraphStore) SaveRelationships(_ context.Context, rels []*entity.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rels {
		s.rels[r.VideoID] = append(s.rels[r.VideoID], r)
	}
	return nil
}

func (s *memGraphStore) ListRelationships(_ context.Context, videoID string) ([]*entity.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return s.rels[videoID], nil
}

func (s *memGraphStore) ListHighLevel(_ context.Context, videoID string) ([]*entity.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Relationship
	for _, r := range s.rels[videoID] {
		if r.IsHighLevel() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memGraphStore) ListBySegment(_ context.Context, videoID string, segmentID int) ([]*entity.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Relationship
	for _, r := range s.rels[videoID] {
		if r.SegmentID == segmentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memGraphStore) SaveUtterances(_ context.Context, utts []*entity.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range utts {
		s.utts[u.VideoID] = append(s.utts[u.VideoID], u)
	}
	return nil
}

func (s *memGraphStore) ListUtterances(_ context.Context, videoID string) ([]*entity.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utts[videoID], nil
}

type memLogStore struct {
	mu   sync.Mutex
	logs map[string][]*entity.SegmentLog
}

func newMemLogStore() *memLogStore {
	return &memLogStore{logs: make(map[string][]*entity.SegmentLog)}
}

func (s *memLogStore) SaveLogs(_ context.Context, logs []*entity.SegmentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logs {
		s.logs[l.VideoID] = append(s.logs[l.VideoID], l)
	}
	return nil
}

func (s *memLogStore) SaveSegments(context.Context, []*entity.Segment) error { return nil }

func (s *memLogStore) ListLogs(_ context.Context, videoID string) ([]*entity.SegmentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[videoID], nil
}

func (s *memLogStore) GetLog(_ context.Context, videoID string, segmentID int) (*entity.SegmentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs[videoID] {
		if l.SegmentID == segmentID {
			return l, nil
		}
	}
	return nil, apperrors.ErrSegmentNotFound
}

func (s *memLogStore) ListSegments(context.Context, string) ([]*entity.Segment, error) {
	return nil, nil
}

type memResultsStore struct {
	mu   sync.Mutex
	data map[string]map[string]*entity.QAResult
}

func newMemResultsStore() *memResultsStore {
	return &memResultsStore{data: make(map[string]map[string]*entity.QAResult)}
}

func (s *memResultsStore) MergeResults(_ context.Context, videoID string, results map[string]*entity.QAResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, ok := s.data[videoID]
	if !ok {
		merged = make(map[string]*entity.QAResult)
		s.data[videoID] = merged
	}
	for id, r := range results {
		merged[id] = r
	}
	return nil
}

func (s *memResultsStore) GetResults(_ context.Context, videoID string) (map[string]*entity.QAResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*entity.QAResult, len(s.data[videoID]))
	for id, r := range s.data[videoID] {
		out[id] = r
	}
	return out, nil
}

// fixedInterp 所有问题解析为同一个一般类查询
type fixedInterp struct{ err error }

func (f *fixedInterp) Parse(context.Context, string) (*reasoning.ParsedQuery, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &reasoning.ParsedQuery{
		Kind:    entity.KindGeneral,
		Triples: []match.QueryTriple{{Source: "<Alice>", Content: "talks to"}},
	}, nil
}

// fixedJudge 第一层直接作答
type fixedJudge struct{ err error }

func (f *fixedJudge) Judge(context.Context, string, *reasoning.ParsedQuery, *evidence.Bundle) (*reasoning.Judgment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &reasoning.Judgment{Action: reasoning.ActionAnswer, Answer: "Alice talks to Bob", Confidence: 90}, nil
}

type noopInspector struct{}

func (noopInspector) Inspect(context.Context, reasoning.InspectRequest) (*reasoning.Judgment, error) {
	return &reasoning.Judgment{Action: reasoning.ActionAnswer, Answer: "inspected"}, nil
}

type flatEmbedder struct{}

func (flatEmbedder) EmbedStrings(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1}
	}
	return out, nil
}

func newTestService(graphs *memGraphStore, logs *memLogStore, results *memResultsStore, interp reasoning.QueryInterpreter, judge reasoning.EvidenceJudge) *Service {
	matcher := match.NewMatcher(flatEmbedder{}, match.DefaultWeights())
	controller := reasoning.NewController(interp, judge, noopInspector{}, matcher, &reasoning.Policy{}, reasoning.Config{})
	return NewService(graphs, logs, results, controller, Config{})
}

func seedVideo(graphs *memGraphStore, videoID string) {
	graphs.rels[videoID] = []*entity.Relationship{{
		ID:        "r1",
		VideoID:   videoID,
		Source:    entity.Character("Alice"),
		Target:    entity.Character("Bob"),
		Content:   "talks to",
		SegmentID: 1,
	}}
}

func TestAnswerVideoMergesResults(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	seedVideo(graphs, "vid-1")
	svc := newTestService(graphs, logs, results, &fixedInterp{}, &fixedJudge{})

	questions := []*entity.Question{
		{ID: "q1", VideoID: "vid-1", Text: "what does Alice do?"},
		{ID: "q2", VideoID: "vid-1", Text: "who does Alice talk to?"},
	}
	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", questions))

	got, err := svc.Results(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, entity.StateAnswered, r.State)
		assert.Equal(t, "Alice talks to Bob", r.Answer)
	}
}

func TestMissingVideoFailsAllQuestions(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	svc := newTestService(graphs, logs, results, &fixedInterp{}, &fixedJudge{})

	questions := []*entity.Question{
		{ID: "q1", VideoID: "ghost", Text: "anything?"},
		{ID: "q2", VideoID: "ghost", Text: "anything else?"},
	}
	require.NoError(t, svc.AnswerVideo(context.Background(), "ghost", questions))

	got, err := svc.Results(context.Background(), "ghost")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, entity.StateFailed, r.State)
		assert.Equal(t, "video not found", r.Answer)
	}
}

func TestParseErrorFailsOnlyThatQuestion(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	seedVideo(graphs, "vid-1")
	svc := newTestService(graphs, logs, results, &fixedInterp{err: apperrors.ErrParseError}, &fixedJudge{})

	questions := []*entity.Question{{ID: "q1", VideoID: "vid-1", Text: "???"}}
	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", questions))

	got, err := svc.Results(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entity.StateFailed, got["q1"].State)
}

func TestJudgeFailureDegradesResult(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	seedVideo(graphs, "vid-1")
	svc := newTestService(graphs, logs, results, &fixedInterp{}, &fixedJudge{err: apperrors.ErrLLMCallFailed})

	questions := []*entity.Question{{ID: "q1", VideoID: "vid-1", Text: "what happened?"}}
	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", questions))

	got, err := svc.Results(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entity.StateExhausted, got["q1"].State)
	assert.Equal(t, 0, got["q1"].Confidence)
	assert.Equal(t, "The question could not be fully processed.", got["q1"].Answer)
}

func TestAnswerBatchMultipleVideos(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	seedVideo(graphs, "vid-1")
	seedVideo(graphs, "vid-2")
	svc := newTestService(graphs, logs, results, &fixedInterp{}, &fixedJudge{})

	batch := map[string][]*entity.Question{
		"vid-1": {{ID: "q1", VideoID: "vid-1", Text: "a?"}},
		"vid-2": {{ID: "q2", VideoID: "vid-2", Text: "b?"}, {ID: "q3", VideoID: "vid-2", Text: "c?"}},
	}
	require.NoError(t, svc.AnswerBatch(context.Background(), batch))

	one, err := svc.Results(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Len(t, one, 1)
	two, err := svc.Results(context.Background(), "vid-2")
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestGraphCacheAndInvalidation(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	seedVideo(graphs, "vid-1")
	svc := newTestService(graphs, logs, results, &fixedInterp{}, &fixedJudge{})

	q := []*entity.Question{{ID: "q1", VideoID: "vid-1", Text: "a?"}}
	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", q))
	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", q))
	assert.Equal(t, 1, graphs.listCalls)

	svc.InvalidateVideo("vid-1")
	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", q))
	assert.Equal(t, 2, graphs.listCalls)
}

func TestConcurrentWritersBothSurvive(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	seedVideo(graphs, "vid-1")
	svc := newTestService(graphs, logs, results, &fixedInterp{}, &fixedJudge{})

	// 多个写入方并发向同一视频的结果集合执行读-合并-写
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := []*entity.Question{{ID: fmt.Sprintf("q%d", i), VideoID: "vid-1", Text: "what happened?"}}
			assert.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", q))
		}(i)
	}
	wg.Wait()

	got, err := svc.Results(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Len(t, got, writers)
	for i := 0; i < writers; i++ {
		assert.Contains(t, got, fmt.Sprintf("q%d", i))
	}
}

func TestAppendRelationshipsInvalidatesCache(t *testing.T) {
	graphs, logs, results := newMemGraphStore(), newMemLogStore(), newMemResultsStore()
	seedVideo(graphs, "vid-1")
	svc := newTestService(graphs, logs, results, &fixedInterp{}, &fixedJudge{})

	q := []*entity.Question{{ID: "q1", VideoID: "vid-1", Text: "a?"}}
	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", q))

	err := svc.AppendRelationships(context.Background(), "vid-1", []*entity.Relationship{{
		ID:        "r2",
		VideoID:   "vid-1",
		Source:    entity.Character("Bob"),
		Target:    entity.Character("Alice"),
		Content:   "follows",
		SegmentID: 2,
	}})
	require.NoError(t, err)
	assert.Len(t, graphs.rels["vid-1"], 2)

	require.NoError(t, svc.AnswerVideo(context.Background(), "vid-1", q))
	assert.Equal(t, 2, graphs.listCalls)
}
