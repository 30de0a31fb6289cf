// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
)

// EntityKind 图节点类别
type EntityKind string

const (
	// KindCharacter 人物节点，渲染时用尖括号标记
	KindCharacter EntityKind = "character"
	// KindObject 物体节点，用 (名称, 所属, 属性) 复合键标识
	KindObject EntityKind = "object"
)

// EntityRef 图节点引用
//
// 人物只有 Name；物体由 Name/Owner/Attribute 复合键唯一确定，
// 同名物体在不同所属或不同属性下视为不同节点。
type EntityRef struct {
	Kind      EntityKind `json:"kind"`
	Name      string     `json:"name"`
	Owner     string     `json:"owner,omitempty"`
	Attribute string     `json:"attribute,omitempty"`
}

// Character 构造人物引用
func Character(name string) EntityRef {
	return EntityRef{Kind: KindCharacter, Name: name}
}

// Object 构造物体引用
func Object(name, owner, attribute string) EntityRef {
	return EntityRef{Kind: KindObject, Name: name, Owner: owner, Attribute: attribute}
}

// IsCharacter 是否为人物节点
func (e EntityRef) IsCharacter() bool {
	return e.Kind == KindCharacter
}

// Key 返回节点的唯一键字符串
//
// 人物形如 <name>；物体形如 name@owner#attribute，owner 与
// attribute 为空时省略对应后缀。
func (e EntityRef) Key() string {
	if e.Kind == KindCharacter {
		return "<" + e.Name + ">"
	}
	var b strings.Builder
	b.WriteString(e.Name)
	if e.Owner != "" {
		b.WriteString("@")
		b.WriteString(e.Owner)
	}
	if e.Attribute != "" {
		b.WriteString("#")
		b.WriteString(e.Attribute)
	}
	return b.String()
}

// Display 返回用于自然语言渲染的节点文本
func (e EntityRef) Display() string {
	if e.Kind == KindCharacter {
		return e.Name
	}
	parts := []string{}
	if e.Attribute != "" {
		parts = append(parts, e.Attribute)
	}
	parts = append(parts, e.Name)
	s := strings.Join(parts, " ")
	if e.Owner != "" {
		s = fmt.Sprintf("%s's %s", e.Owner, s)
	}
	return s
}

// ParseEntityRef 解析节点键字符串
//
// <name> 解析为人物；其余按 name[@owner][#attribute] 解析为物体。
// 空串返回零值引用与 false。
func ParseEntityRef(s string) (EntityRef, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EntityRef{}, false
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		name := strings.TrimSpace(s[1 : len(s)-1])
		if name == "" {
			return EntityRef{}, false
		}
		return Character(name), true
	}
	ref := EntityRef{Kind: KindObject}
	if i := strings.Index(s, "#"); i >= 0 {
		ref.Attribute = strings.TrimSpace(s[i+1:])
		s = s[:i]
	}
	if i := strings.Index(s, "@"); i >= 0 {
		ref.Owner = strings.TrimSpace(s[i+1:])
		s = s[:i]
	}
	ref.Name = strings.TrimSpace(s)
	if ref.Name == "" {
		return EntityRef{}, false
	}
	return ref, true
}

// ExtractCharacterNames 从文本中提取所有 <name> 人物标记
func ExtractCharacterNames(text string) []string {
	var names []string
	seen := make(map[string]struct{})
	for {
		i := strings.Index(text, "<")
		if i < 0 {
			break
		}
		j := strings.Index(text[i:], ">")
		if j < 0 {
			break
		}
		name := strings.TrimSpace(text[i+1 : i+j])
		if name != "" {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		text = text[i+j+1:]
	}
	return names
}
