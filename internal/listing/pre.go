package listing

import (
	"net/url"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parsePre 处理 <pre> 布局：只取 <pre> 的直接子锚点，且链接目标须与可见文本一致，
// 排序链接和上级目录链接因此被过滤。
func parsePre(doc *html.Node) ([]Entry, bool) {
	pre := findFirst(doc, atom.Pre)
	if pre == nil {
		return nil, false
	}

	var entries []Entry
	for _, a := range children(pre, atom.A) {
		href, ok := attr(a, "href")
		if !ok {
			continue
		}
		label := text(a)
		if !sameTarget(href, label) {
			continue
		}
		entries = append(entries, entryFromLabel(label))
	}
	return entries, true
}

// sameTarget 判断 href 与文本是否指向同一名称；也接受百分号编码后的 href。
func sameTarget(href, label string) bool {
	if href == label {
		return true
	}
	decoded, err := url.PathUnescape(href)
	return err == nil && decoded != href && decoded == label
}
