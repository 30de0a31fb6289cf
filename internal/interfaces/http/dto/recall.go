// Package dto 提供 HTTP 层数据传输对象
package dto

// RecallRequest 向量召回调试请求
type RecallRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
	TopK  int    `json:"top_k,omitempty" binding:"omitempty,gte=1,lte=100"`
}

// RecallHit 一条召回命中
type RecallHit struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

// RecallResponse 向量召回调试响应
type RecallResponse struct {
	VideoID       string      `json:"video_id"`
	Relationships []RecallHit `json:"relationships"`
	Utterances    []RecallHit `json:"utterances"`
}
