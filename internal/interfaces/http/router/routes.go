// Package router 提供 HTTP 路由配置
package router

import (
	"video-memory-qa/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	qaHandler *handler.QAHandler,
	ingestHandler *handler.IngestHandler,
	recallHandler *handler.RecallHandler,
) {
	// 视频管理
	videos := v1.Group("/videos")
	{
		// 图制品摄取
		videos.POST("/:vid/artifacts", ingestHandler.IngestArtifacts)

		// 问答
		videos.POST("/:vid/questions", qaHandler.SubmitQuestions)
		videos.GET("/:vid/results", qaHandler.GetResults)

		// 向量召回调试
		videos.POST("/:vid/recall", recallHandler.Recall)
	}
}
