package node

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	actionRe  = regexp.MustCompile(`(?i)action\s*:\s*\[?\s*(answer|search)\s*\]?`)
	contentRe = regexp.MustCompile(`(?is)content\s*:\s*(.+)$`)
	segmentRe = regexp.MustCompile(`\d+`)
)

// ParseActionContent 解析 "Action: [Answer|Search]" / "Content: ..."
// 纯文本格式。模型不支持 JSON 输出时的兜底路径。
func ParseActionContent(s string) (action string, content string, ok bool) {
	m := actionRe.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	action = strings.ToLower(m[1])
	if c := contentRe.FindStringSubmatch(s); c != nil {
		content = strings.TrimSpace(c[1])
	}
	return action, content, true
}

// ExtractSegmentIDs 从文本中提取片段编号
//
// 升级请求的 Content 常以自然语言点名片段，这里抽取其中的
// 全部数字并去重，保序。
func ExtractSegmentIDs(s string) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, m := range segmentRe.FindAllString(s, -1) {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
