// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"video-memory-qa/internal/application/match"
	"video-memory-qa/internal/domain/repository"
	"video-memory-qa/internal/interfaces/http/dto"
	"video-memory-qa/pkg/logger"

	"github.com/gin-gonic/gin"
)

// defaultRecallTopK 调试召回的默认候选数
const defaultRecallTopK = 10

// RecallHandler 向量召回调试处理器
type RecallHandler struct {
	graphs   repository.GraphStore
	index    repository.VectorIndex
	embedder match.Embedder
}

// NewRecallHandler 创建召回调试处理器
func NewRecallHandler(graphs repository.GraphStore, index repository.VectorIndex, embedder match.Embedder) *RecallHandler {
	return &RecallHandler{
		graphs:   graphs,
		index:    index,
		embedder: embedder,
	}
}

// Recall 向量召回调试
// @Summary 向量召回调试
// @Description 按查询文本召回视频内最相似的关系与对话候选
// @Tags Recall
// @Accept json
// @Produce json
// @Param vid path string true "视频 ID"
// @Param request body dto.RecallRequest true "召回请求"
// @Success 200 {object} dto.Response[dto.RecallResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse "向量索引不可用"
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/videos/{vid}/recall [post]
func (h *RecallHandler) Recall(c *gin.Context) {
	ctx := c.Request.Context()
	videoID := dto.BindVideoID(c)

	if h.index == nil || !h.index.Enabled() || h.embedder == nil {
		dto.ServiceUnavailable(c, "vector recall is disabled")
		return
	}

	var req dto.RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultRecallTopK
	}

	vectors, err := h.embedder.EmbedStrings(ctx, []string{req.Query})
	if err != nil || len(vectors) == 0 {
		logger.Error(ctx, "failed to embed recall query", err, "video_id", videoID)
		dto.InternalError(c, "failed to embed query")
		return
	}
	vector := make([]float32, len(vectors[0]))
	for i, f := range vectors[0] {
		vector[i] = float32(f)
	}

	relHits, err := h.index.RecallRelationships(ctx, videoID, vector, topK)
	if err != nil {
		logger.Error(ctx, "failed to recall relationships", err, "video_id", videoID)
		dto.InternalError(c, "failed to recall relationships")
		return
	}
	uttHits, err := h.index.RecallUtterances(ctx, videoID, vector, topK)
	if err != nil {
		logger.Error(ctx, "failed to recall utterances", err, "video_id", videoID)
		dto.InternalError(c, "failed to recall utterances")
		return
	}

	relTexts, uttTexts := h.resolveTexts(ctx, videoID)

	dto.Success(c, dto.RecallResponse{
		VideoID:       videoID,
		Relationships: toRecallHits(relHits, relTexts),
		Utterances:    toRecallHits(uttHits, uttTexts),
	})
}

// resolveTexts 把命中 ID 还原为可读文本，失败只降级为无文本
func (h *RecallHandler) resolveTexts(ctx context.Context, videoID string) (map[string]string, map[string]string) {
	relTexts := make(map[string]string)
	if rels, err := h.graphs.ListRelationships(ctx, videoID); err == nil {
		for _, rel := range rels {
			relTexts[rel.ID] = rel.Render()
		}
	}
	uttTexts := make(map[string]string)
	if utts, err := h.graphs.ListUtterances(ctx, videoID); err == nil {
		for _, utt := range utts {
			uttTexts[utt.ID] = utt.Render()
		}
	}
	return relTexts, uttTexts
}

func toRecallHits(hits []repository.VectorHit, texts map[string]string) []dto.RecallHit {
	out := make([]dto.RecallHit, 0, len(hits))
	for _, hit := range hits {
		out = append(out, dto.RecallHit{
			ID:    hit.ID,
			Score: hit.Score,
			Text:  texts[hit.ID],
		})
	}
	return out
}
