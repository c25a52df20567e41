package lmstudio

import (
	"fmt"
	"regexp"
	"strings"

	"pantry-chef/internal/core/ai/cache"
	"pantry-chef/internal/pkg/common"
)

// 非貪婪、不跨行的大括號片段
var braceFragment = regexp.MustCompile(`\{.*?\}`)

// ParseDishes 盡力從模型輸出取出菜色
//
// 順序：去除 code fence -> 嚴格 JSON（{"dishes": [...]} 或 [...]）
// -> 失敗時逐一解析 {...} 片段並保留含 name 的物件 -> 仍無結果則為空列表。
func ParseDishes(content string) []cache.Dish {
	content = common.StripCodeFences(content)

	var parsed any
	if err := common.ParseJSON(content, &parsed); err == nil {
		switch v := parsed.(type) {
		case map[string]any:
			if list, ok := v["dishes"].([]any); ok {
				return toDishes(list)
			}
		case []any:
			return toDishes(v)
		}
		return []cache.Dish{}
	}

	dishes := []cache.Dish{}
	for _, fragment := range braceFragment.FindAllString(content, -1) {
		var obj map[string]any
		if err := common.ParseJSON(fragment, &obj); err != nil {
			continue
		}
		if _, ok := obj["name"]; ok {
			dishes = append(dishes, cache.Dish(obj))
		}
	}
	return dishes
}

// toDishes 只保留物件元素
func toDishes(items []any) []cache.Dish {
	dishes := make([]cache.Dish, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			dishes = append(dishes, cache.Dish(obj))
		}
	}
	return dishes
}

// ParseDetail 解析詳細作法，嚴格解析失敗時再嘗試還原跳脫字元一次
func ParseDetail(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = common.StripCodeFences(content)
	}

	var detail map[string]any
	if err := common.ParseJSON(content, &detail); err != nil {
		if err2 := common.ParseJSON(common.UnescapeJSON(content), &detail); err2 != nil {
			return nil, &ParseError{Err: err2}
		}
	}
	if detail == nil {
		return nil, &ParseError{Err: fmt.Errorf("model output is not a JSON object")}
	}
	return detail, nil
}
