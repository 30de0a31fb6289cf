// Package entity 定义领域实体
package entity

import (
	"strings"
)

// Utterance 一条对话记录
//
// Speakers 为说话人集合，画外音或无法归属时可以为空。
// Index 是整段视频转写中的全局序号，用于取上下文窗口。
type Utterance struct {
	ID        string   `json:"id"`
	VideoID   string   `json:"video_id"`
	SegmentID int      `json:"segment_id"`
	Index     int      `json:"index"`
	Speakers  []string `json:"speakers,omitempty"`
	Text      string   `json:"text"`
}

// HasSpeaker 说话人集合是否包含指定人物
func (u *Utterance) HasSpeaker(name string) bool {
	for _, s := range u.Speakers {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Render 渲染为 "speaker: text" 形式的转写行
func (u *Utterance) Render() string {
	if len(u.Speakers) == 0 {
		return u.Text
	}
	return strings.Join(u.Speakers, ", ") + ": " + u.Text
}
