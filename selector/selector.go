// Package selector resolves an anchor text plus ancestor node type to
// exactly one syntax node.
package selector

import (
	"fmt"
	"strings"

	"github.com/odvcencio/semedit/diag"
)

// Selector identifies an edit target by literal text and the type of the
// node that encloses it.
type Selector struct {
	AnchorText       string `json:"anchor_text"`
	AncestorNodeType string `json:"ancestor_node_type"`
}

func (s Selector) String() string {
	return fmt.Sprintf("%q in %s", s.AnchorText, s.AncestorNodeType)
}

// Validate rejects anchors that cannot be matched literally on one line.
func (s Selector) Validate() error {
	switch {
	case s.AnchorText == "":
		return diag.New(diag.InvalidRequest, "anchor_text is required")
	case strings.TrimSpace(s.AnchorText) == "":
		return diag.New(diag.InvalidRequest, "anchor_text must contain non-whitespace characters")
	case strings.ContainsAny(s.AnchorText, "\r\n"):
		return diag.New(diag.InvalidRequest, "anchor_text must be a single line").
			WithSuggestions("use a distinctive fragment of one line, such as the item's signature")
	case strings.TrimSpace(s.AncestorNodeType) == "":
		return diag.New(diag.InvalidRequest, "ancestor_node_type is required")
	}
	return nil
}

// Occurrences returns the start offsets of non-overlapping, exact matches of
// anchor in source, scanning left to right.
func Occurrences(source []byte, anchor string) []int {
	if anchor == "" {
		return nil
	}
	text := string(source)
	var out []int
	start := 0
	for {
		idx := strings.Index(text[start:], anchor)
		if idx < 0 {
			break
		}
		abs := start + idx
		out = append(out, abs)
		start = abs + len(anchor)
	}
	return out
}
