// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"video-memory-qa/internal/domain/entity"
)

// QuestionPayload 单个提问
type QuestionPayload struct {
	QuestionID string `json:"question_id,omitempty"`
	Text       string `json:"text" binding:"required,max=2000"`
}

// SubmitQuestionsRequest 提交问题批请求
type SubmitQuestionsRequest struct {
	Questions      []QuestionPayload `json:"questions" binding:"required,min=1,max=100,dive"`
	IdempotencyKey string            `json:"idempotency_key,omitempty" binding:"max=128"`
}

// SubmitQuestionsResponse 问题批受理响应
type SubmitQuestionsResponse struct {
	BatchID       string   `json:"batch_id"`
	VideoID       string   `json:"video_id"`
	QuestionIDs   []string `json:"question_ids"`
	QuestionCount int      `json:"question_count"`
}

// QAResultPayload 单个问题的回答
type QAResultPayload struct {
	QuestionID        string    `json:"question_id"`
	Question          string    `json:"question"`
	Answer            string    `json:"answer"`
	Confidence        int       `json:"confidence"`
	Citations         []string  `json:"citations,omitempty"`
	State             string    `json:"state"`
	Findings          []string  `json:"findings,omitempty"`
	SegmentsInspected []int     `json:"segments_inspected,omitempty"`
	AnsweredAt        time.Time `json:"answered_at"`
}

// QAResultsResponse 视频的全部回答
type QAResultsResponse struct {
	VideoID string            `json:"video_id"`
	Results []QAResultPayload `json:"results"`
}

// ToQAResultPayload 转换领域结果为响应载荷
func ToQAResultPayload(r *entity.QAResult) QAResultPayload {
	findings := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		findings = append(findings, f.String())
	}
	return QAResultPayload{
		QuestionID:        r.QuestionID,
		Question:          r.Question,
		Answer:            r.Answer,
		Confidence:        r.Confidence,
		Citations:         r.Citations,
		State:             string(r.State),
		Findings:          findings,
		SegmentsInspected: r.SegmentsInspected,
		AnsweredAt:        r.AnsweredAt,
	}
}
