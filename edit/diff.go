package edit

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type diffLine struct {
	kind      byte // ' ', '-', '+'
	text      string
	noNewline bool
}

// UnifiedDiff renders a unified line diff of oldText against newText with
// context lines around each hunk. Identical inputs produce "".
func UnifiedDiff(path, oldText, newText string, context int) string {
	if oldText == newText {
		return ""
	}
	if context < 0 {
		context = 0
	}

	a, b, lineArray := linesToRunes(oldText, newText)
	diffs := diffmatchpatch.New().DiffMainRunes(a, b, false)
	for i := range diffs {
		diffs[i].Text = runesToLines(diffs[i].Text, lineArray)
	}

	var lines []diffLine
	for _, d := range diffs {
		kind := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = '-'
		case diffmatchpatch.DiffInsert:
			kind = '+'
		}
		for _, l := range splitLines(d.Text) {
			l.kind = kind
			lines = append(lines, l)
		}
	}

	// 1-based line numbers each diff line would occupy in the old and new file.
	oldNo := make([]int, len(lines)+1)
	newNo := make([]int, len(lines)+1)
	oldNo[0], newNo[0] = 1, 1
	var changes []int
	for i, l := range lines {
		oldNo[i+1], newNo[i+1] = oldNo[i], newNo[i]
		if l.kind != '+' {
			oldNo[i+1]++
		}
		if l.kind != '-' {
			newNo[i+1]++
		}
		if l.kind != ' ' {
			changes = append(changes, i)
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- a/%s\n+++ b/%s\n", path, path)
	for i := 0; i < len(changes); {
		j := i
		for j+1 < len(changes) && changes[j+1]-changes[j]-1 <= 2*context {
			j++
		}
		start := max(0, changes[i]-context)
		end := min(len(lines), changes[j]+context+1)

		oldCount, newCount := 0, 0
		for _, l := range lines[start:end] {
			if l.kind != '+' {
				oldCount++
			}
			if l.kind != '-' {
				newCount++
			}
		}
		oldStart, newStart := oldNo[start], newNo[start]
		if oldCount == 0 {
			oldStart--
		}
		if newCount == 0 {
			newStart--
		}
		fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		for _, l := range lines[start:end] {
			out.WriteByte(l.kind)
			out.WriteString(l.text)
			out.WriteByte('\n')
			if l.noNewline {
				out.WriteString("\\ No newline at end of file\n")
			}
		}
		i = j + 1
	}
	return out.String()
}

// linesToRunes encodes each distinct line of both texts as one rune so the
// diff runs line by line. Line terminators stay attached to their lines.
func linesToRunes(oldText, newText string) ([]rune, []rune, []string) {
	var lineArray []string
	index := make(map[string]rune)
	encode := func(text string) []rune {
		var out []rune
		for len(text) > 0 {
			n := strings.IndexByte(text, '\n') + 1
			if n == 0 {
				n = len(text)
			}
			line := text[:n]
			text = text[n:]
			r, ok := index[line]
			if !ok {
				r = lineRune(len(lineArray))
				index[line] = r
				lineArray = append(lineArray, line)
			}
			out = append(out, r)
		}
		return out
	}
	a := encode(oldText)
	b := encode(newText)
	return a, b, lineArray
}

// lineRune maps a line index to a valid rune, skipping the surrogate range
// so the round trip through string conversion is lossless.
func lineRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

func runeLine(r rune) int {
	if r >= 0xE000 {
		r -= 0x800
	}
	return int(r) - 1
}

func runesToLines(text string, lineArray []string) string {
	var b strings.Builder
	for _, r := range text {
		b.WriteString(lineArray[runeLine(r)])
	}
	return b.String()
}

func splitLines(text string) []diffLine {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	last := len(parts) - 1
	var out []diffLine
	for i, p := range parts {
		if i == last {
			if p != "" {
				out = append(out, diffLine{text: p, noNewline: true})
			}
			break
		}
		out = append(out, diffLine{text: p})
	}
	return out
}

// DiffStats counts added and removed lines in a unified diff.
func DiffStats(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
