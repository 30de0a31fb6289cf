// Package match 实现结构化查询片段与候选关系、对话之间的相似度
// 匹配：先精确匹配，再按字段嵌入相似度近似匹配。
package match

import (
	"context"
	"math"
)

// Embedder 文本嵌入端口
//
// 实现方负责批量与缓存；同一文本多次嵌入必须返回相同向量，
// 否则批量打分与逐条打分的结果无法保持一致。
type Embedder interface {
	EmbedStrings(ctx context.Context, texts []string) ([][]float64, error)
}

// cosine 余弦相似度，零向量返回 0
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
