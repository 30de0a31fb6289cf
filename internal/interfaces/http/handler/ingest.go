// Package handler 提供 HTTP 请求处理器
package handler

import (
	"video-memory-qa/internal/application/ingest"
	"video-memory-qa/internal/domain/entity"
	"video-memory-qa/internal/infrastructure/messaging"
	"video-memory-qa/internal/interfaces/http/dto"
	"video-memory-qa/pkg/logger"

	"github.com/gin-gonic/gin"
)

// IngestHandler 图制品摄取处理器
type IngestHandler struct {
	ingestService *ingest.Service
	producer      *messaging.Producer
}

// NewIngestHandler 创建摄取处理器
func NewIngestHandler(ingestService *ingest.Service, producer *messaging.Producer) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		producer:      producer,
	}
}

// IngestArtifacts 摄取图制品
// @Summary 摄取图制品
// @Description 写入视频的关系图、对话、片段日志与片段元数据，并异步构建向量索引
// @Tags Ingest
// @Accept json
// @Produce json
// @Param vid path string true "视频 ID"
// @Param request body dto.IngestArtifactsRequest true "图制品"
// @Success 202 {object} dto.Response[dto.IngestArtifactsResponse]
// @Failure 400 {object} dto.ErrorResponse "节点键非法"
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/videos/{vid}/artifacts [post]
func (h *IngestHandler) IngestArtifacts(c *gin.Context) {
	ctx := c.Request.Context()
	videoID := dto.BindVideoID(c)

	var req dto.IngestArtifactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.Relationships) == 0 && len(req.Utterances) == 0 && len(req.SegmentLogs) == 0 && len(req.Segments) == 0 {
		dto.BadRequest(c, "empty artifact payload")
		return
	}

	rels := make([]*entity.Relationship, 0, len(req.Relationships))
	for _, p := range req.Relationships {
		rel, err := p.ToRelationship(videoID)
		if err != nil {
			dto.BadRequest(c, err.Error())
			return
		}
		rels = append(rels, rel)
	}
	utts := make([]*entity.Utterance, 0, len(req.Utterances))
	for _, p := range req.Utterances {
		utts = append(utts, p.ToUtterance(videoID))
	}
	logs := make([]*entity.SegmentLog, 0, len(req.SegmentLogs))
	for _, p := range req.SegmentLogs {
		logs = append(logs, p.ToSegmentLog(videoID))
	}
	segs := make([]*entity.Segment, 0, len(req.Segments))
	for _, p := range req.Segments {
		segs = append(segs, p.ToSegment(videoID))
	}

	if err := h.ingestService.SaveArtifacts(ctx, videoID, rels, utts, logs, segs); err != nil {
		logger.Error(ctx, "failed to save artifacts", err, "video_id", videoID)
		dto.InternalError(c, "failed to save artifacts")
		return
	}

	indexing := h.ingestService.IndexingEnabled()
	if indexing {
		_, err := h.producer.PublishGraphIngest(ctx, &messaging.GraphIngestMessage{
			VideoID:      videoID,
			SegmentCount: len(segs),
		})
		if err != nil {
			// 索引只是召回加速，发布失败不影响已落库的制品
			logger.Warn(ctx, "failed to publish graph ingest", "video_id", videoID, "error", err)
			indexing = false
		}
	}

	dto.Accepted(c, dto.IngestArtifactsResponse{
		VideoID:       videoID,
		Relationships: len(rels),
		Utterances:    len(utts),
		SegmentLogs:   len(logs),
		Segments:      len(segs),
		Indexing:      indexing,
	})
}
