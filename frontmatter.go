package mdinc

import "strings"

// StripFrontMatter removes a leading front matter section delimited by ---,
// +++ or ;;; lines, as commonly found at the top of Markdown files. Input
// without front matter is returned unchanged, including documents that merely
// start with a thematic break.
func StripFrontMatter(src string) string {
	body := trimBOMString(src)
	line, rest, ok := cutLine(body)
	if !ok {
		return src
	}
	delim := strings.TrimSpace(line)
	switch delim {
	case "---", "+++", ";;;":
	default:
		return src
	}
	second, after, ok := cutLine(rest)
	if !ok || !metadataLikely(second) {
		return src
	}
	for {
		line, next, ok := cutLine(after)
		if !ok {
			return src
		}
		if strings.TrimSpace(line) == delim {
			return next
		}
		if next == after {
			return src
		}
		after = next
	}
}

// cutLine splits off the first line, tolerating CRLF and a missing trailing
// newline. ok is false only for empty input.
func cutLine(s string) (line, rest string, ok bool) {
	if s == "" {
		return "", "", false
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSuffix(s[:i], "\r"), s[i+1:], true
	}
	return strings.TrimSuffix(s, "\r"), "", true
}

// metadataLikely reports whether a line plausibly begins front matter
// metadata rather than document content.
func metadataLikely(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return true
	}
	return strings.ContainsAny(trimmed, ":=")
}

func trimBOMString(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
