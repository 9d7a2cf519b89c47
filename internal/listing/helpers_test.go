package listing

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustParseDoc(t *testing.T, page string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("html.Parse failed: %v", err)
	}
	return doc
}
