package listing

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const nameColumn = "name"

// parseTable 处理 <table> 布局。首行是表头，每个 <th> 按列序映射为其中链接文本的小写形式，
// 没有链接的列不带标签。单元格数与表头相同的行才视为条目。
func parseTable(doc *html.Node) ([]Entry, bool) {
	table := findFirst(doc, atom.Table)
	if table == nil {
		return nil, false
	}
	rows := tableRows(table)
	if len(rows) == 0 {
		return nil, true
	}

	labels := headerLabels(rows[0])
	nameIdx := -1
	for i, label := range labels {
		if label == nameColumn {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		return nil, true
	}

	var entries []Entry
	for _, row := range rows[1:] {
		cells := children(row, atom.Td)
		if len(cells) != len(labels) {
			continue
		}
		cell := cells[nameIdx]
		// 名称列缺少链接的行直接跳过。
		if findFirst(cell, atom.A) == nil {
			continue
		}
		label := text(cell)
		if label == ParentDirectoryLabel {
			continue
		}
		entries = append(entries, entryFromLabel(label))
	}
	return entries, true
}

func headerLabels(row *html.Node) []string {
	cells := findAll(row, atom.Th)
	labels := make([]string, len(cells))
	for i, cell := range cells {
		if a := findFirst(cell, atom.A); a != nil {
			labels[i] = strings.ToLower(text(a))
		}
	}
	return labels
}

func findAll(n *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == tag {
			out = append(out, c)
			continue
		}
		out = append(out, findAll(c, tag)...)
	}
	return out
}
