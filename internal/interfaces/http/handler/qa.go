// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"video-memory-qa/internal/application/qa"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/domain/repository"
	"video-memory-qa/internal/infrastructure/messaging"
	rediscache "video-memory-qa/internal/infrastructure/persistence/redis"
	"video-memory-qa/internal/interfaces/http/dto"
	"video-memory-qa/pkg/errors"
	"video-memory-qa/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// resultsCacheTTL 结果读穿缓存时长，worker 合并结果后会主动失效
const resultsCacheTTL = 30 * time.Second

// QAHandler 视频问答处理器
type QAHandler struct {
	qaService *qa.Service
	graphs    repository.GraphStore
	producer  *messaging.Producer
	cache     *rediscache.Cache
}

// NewQAHandler 创建问答处理器
func NewQAHandler(qaService *qa.Service, graphs repository.GraphStore, producer *messaging.Producer, cache *rediscache.Cache) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		graphs:    graphs,
		producer:  producer,
		cache:     cache,
	}
}

// SubmitQuestions 提交问题批
// @Summary 提交问题批
// @Description 针对已摄取的视频异步提交一批自然语言问题
// @Tags QA
// @Accept json
// @Produce json
// @Param vid path string true "视频 ID"
// @Param request body dto.SubmitQuestionsRequest true "问题批"
// @Success 202 {object} dto.Response[dto.SubmitQuestionsResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "视频未摄取"
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/videos/{vid}/questions [post]
func (h *QAHandler) SubmitQuestions(c *gin.Context) {
	ctx := c.Request.Context()
	videoID := dto.BindVideoID(c)

	var req dto.SubmitQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	exists, err := h.graphs.Exists(ctx, videoID)
	if err != nil {
		logger.Error(ctx, "failed to check video", err, "video_id", videoID)
		dto.InternalError(c, "failed to check video")
		return
	}
	if !exists {
		dto.NotFound(c, "video not found: "+videoID)
		return
	}

	batch := &messaging.QABatchMessage{
		BatchID:        uuid.NewString(),
		VideoID:        videoID,
		Questions:      make([]messaging.QuestionItem, 0, len(req.Questions)),
		IdempotencyKey: req.IdempotencyKey,
	}
	questionIDs := make([]string, 0, len(req.Questions))
	for _, q := range req.Questions {
		qid := q.QuestionID
		if qid == "" {
			qid = uuid.NewString()
		}
		questionIDs = append(questionIDs, qid)
		batch.Questions = append(batch.Questions, messaging.QuestionItem{
			QuestionID: qid,
			Text:       q.Text,
		})
	}

	if _, err := h.producer.PublishQABatch(ctx, batch); err != nil {
		logger.Error(ctx, "failed to publish qa batch", err, "video_id", videoID)
		dto.InternalError(c, "failed to enqueue questions")
		return
	}

	dto.Accepted(c, dto.SubmitQuestionsResponse{
		BatchID:       batch.BatchID,
		VideoID:       videoID,
		QuestionIDs:   questionIDs,
		QuestionCount: len(questionIDs),
	})
}

// GetResults 查询回答
// @Summary 查询回答
// @Description 获取视频已完成问题的全部回答
// @Tags QA
// @Accept json
// @Produce json
// @Param vid path string true "视频 ID"
// @Success 200 {object} dto.Response[dto.QAResultsResponse]
// @Failure 404 {object} dto.ErrorResponse "视频未摄取"
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/videos/{vid}/results [get]
func (h *QAHandler) GetResults(c *gin.Context) {
	ctx := c.Request.Context()
	videoID := dto.BindVideoID(c)

	exists, err := h.graphs.Exists(ctx, videoID)
	if err != nil {
		logger.Error(ctx, "failed to check video", err, "video_id", videoID)
		dto.InternalError(c, "failed to check video")
		return
	}
	if !exists {
		dto.NotFound(c, "video not found: "+videoID)
		return
	}

	results, err := h.loadResults(ctx, videoID)
	if err != nil {
		if errors.IsAppError(err) {
			appErr := errors.AsAppError(err)
			c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
				Code:    appErr.HTTPStatus,
				Message: appErr.Message,
				TraceID: c.GetString("trace_id"),
			})
			return
		}
		logger.Error(ctx, "failed to get results", err, "video_id", videoID)
		dto.InternalError(c, "failed to get results")
		return
	}

	payloads := make([]dto.QAResultPayload, 0, len(results))
	for _, r := range results {
		payloads = append(payloads, dto.ToQAResultPayload(r))
	}
	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].QuestionID < payloads[j].QuestionID
	})

	dto.Success(c, dto.QAResultsResponse{
		VideoID: videoID,
		Results: payloads,
	})
}

// loadResults 读穿缓存加载结果集合，缓存不可用时直读存储
func (h *QAHandler) loadResults(ctx context.Context, videoID string) (map[string]*entity.QAResult, error) {
	if h.cache == nil {
		return h.qaService.Results(ctx, videoID)
	}

	data, err := h.cache.GetOrLoadSafe(ctx, rediscache.BuildResultsKey(videoID), resultsCacheTTL, func() (interface{}, error) {
		return h.qaService.Results(ctx, videoID)
	})
	if err != nil {
		return nil, err
	}

	var results map[string]*entity.QAResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return results, nil
}
