package mdinc

import "strings"

// Split segments Markdown source into an ordered sequence of block strings.
// It never returns an empty slice: empty input yields a single empty block.
//
// The segmentation is a streaming heuristic, not a full grammar. Fenced code
// regions are never split, and a blank line outside a fence only closes the
// current block when the next non-blank line looks like the start of a new
// block; otherwise the blank line is folded into the current block so that
// visually grouped constructs (blockquotes with embedded paragraphs, loose
// lists) stay together.
func Split(markdown string) []string {
	if markdown == "" {
		return []string{""}
	}
	lines := strings.Split(markdown, "\n")
	blocks := make([]string, 0, 8)
	cur := make([]string, 0, 16)
	inFence := false
	fence := ""
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
	}
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if inFence {
			cur = append(cur, line)
			if closesFence(line, fence) {
				inFence = false
				fence = ""
				flush()
			}
			continue
		}
		if marker := openingFence(line); marker != "" {
			flush()
			cur = append(cur, line)
			inFence = true
			fence = marker
			continue
		}
		if strings.TrimSpace(line) == "" {
			if len(cur) == 0 {
				continue
			}
			j := i + 1
			for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
				j++
			}
			if j >= len(lines) || isBlockStarter(lines[j]) {
				flush()
				i = j - 1
				continue
			}
			// Not a confirmed boundary; keep the blank line inside the block.
			cur = append(cur, line)
			continue
		}
		cur = append(cur, line)
	}
	// An unterminated fence stays open and is emitted as the final block.
	flush()
	if len(blocks) == 0 {
		return []string{""}
	}
	return blocks
}

// openingFence reports the fence delimiter run (three or more backticks or
// tildes) opening a fenced code region, or "" if the line opens none.
func openingFence(line string) string {
	trim := strings.TrimLeft(line, " \t")
	if len(trim) < 3 {
		return ""
	}
	ch := trim[0]
	if ch != '`' && ch != '~' {
		return ""
	}
	n := 0
	for n < len(trim) && trim[n] == ch {
		n++
	}
	if n < 3 {
		return ""
	}
	// A backtick fence's info string cannot itself contain backticks.
	if ch == '`' && strings.IndexByte(trim[n:], '`') >= 0 {
		return ""
	}
	return trim[:n]
}

// closesFence reports whether line closes a fence opened by marker. The
// closing run must be at least as long as the opening run and carry nothing
// but trailing whitespace.
func closesFence(line, marker string) bool {
	trim := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trim, marker) {
		return false
	}
	rest := strings.TrimLeft(trim[len(marker):], string(marker[0]))
	return strings.TrimSpace(rest) == ""
}

// isBlockStarter reports whether line looks like the first line of a new
// block: a heading, blockquote, list item, ordered list item, fence opener,
// or table row.
func isBlockStarter(line string) bool {
	trim := strings.TrimLeft(line, " \t")
	if trim == "" {
		return false
	}
	switch trim[0] {
	case '#':
		level := 0
		for level < len(trim) && trim[level] == '#' {
			level++
		}
		if level > 6 {
			return false
		}
		return level == len(trim) || trim[level] == ' ' || trim[level] == '\t'
	case '>':
		return true
	case '|':
		return true
	case '-', '+', '*':
		if len(trim) == 1 {
			return true
		}
		return trim[1] == ' ' || trim[1] == '\t'
	case '`', '~':
		return openingFence(trim) != ""
	}
	if trim[0] >= '0' && trim[0] <= '9' {
		i := 0
		for i < len(trim) && trim[i] >= '0' && trim[i] <= '9' {
			i++
		}
		if i >= len(trim) || (trim[i] != '.' && trim[i] != ')') {
			return false
		}
		i++
		return i == len(trim) || trim[i] == ' ' || trim[i] == '\t'
	}
	return false
}
