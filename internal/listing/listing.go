// Package listing 解析 Web 服务器自动生成的目录索引页面。
package listing

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ParentDirectoryLabel 是表格布局中指向上级目录的行的显示名。
const ParentDirectoryLabel = "Parent Directory"

// Entry 是索引页中的一个条目，Name 不含路径分隔符。
type Entry struct {
	Name  string
	IsDir bool
}

// layout 是一种已知的索引页结构。parse 在页面不符合该结构时返回 false。
type layout struct {
	name  string
	parse func(doc *html.Node) ([]Entry, bool)
}

// layouts 按探测顺序排列：先预格式化块，再表格。
var layouts = []layout{
	{name: "pre", parse: parsePre},
	{name: "table", parse: parseTable},
}

// Parse 读取完整的索引页并返回有序、去重的条目列表。两种布局都不匹配时返回空列表。
func Parse(r io.Reader) ([]Entry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}
	entries, _ := Detect(doc)
	return entries, nil
}

// Detect 在已解析的文档上依次尝试各布局，返回结果与命中的布局名；未命中时布局名为空。
func Detect(doc *html.Node) ([]Entry, string) {
	for _, l := range layouts {
		raw, ok := l.parse(doc)
		if !ok {
			continue
		}
		return normalize(raw), l.name
	}
	return nil, ""
}

// Names 返回条目名称列表，顺序与 entries 一致。
func Names(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names
}

// entryFromLabel 把显示名转为条目：末尾 "/" 表示目录并被去掉。
func entryFromLabel(label string) Entry {
	if strings.HasSuffix(label, "/") {
		return Entry{Name: strings.TrimSuffix(label, "/"), IsDir: true}
	}
	return Entry{Name: label}
}

// normalize 去掉空名、上级目录、含分隔符的名称以及重复项，保留首次出现的顺序。
func normalize(raw []Entry) []Entry {
	seen := make(map[string]struct{}, len(raw))
	out := make([]Entry, 0, len(raw))
	for _, entry := range raw {
		switch entry.Name {
		case "", ".", "..", ParentDirectoryLabel:
			continue
		}
		if strings.Contains(entry.Name, "/") {
			continue
		}
		if _, dup := seen[entry.Name]; dup {
			continue
		}
		seen[entry.Name] = struct{}{}
		out = append(out, entry)
	}
	return out
}
