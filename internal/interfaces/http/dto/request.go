// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"github.com/gin-gonic/gin"
)

// VideoIDRequest 视频 ID 请求
type VideoIDRequest struct {
	VideoID string `uri:"vid" binding:"required"`
}

// BindVideoID 从 URI 绑定视频 ID
func BindVideoID(c *gin.Context) string {
	return c.Param("vid")
}
