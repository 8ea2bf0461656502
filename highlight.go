package mdinc

import (
	stdhtml "html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Highlighter applies syntax highlighting to committed code blocks. It runs
// lazily, outside the streaming hot path, and never fails past its boundary:
// any error degrades to escaped plain text and a log line.
type Highlighter struct {
	style  *chroma.Style
	logger logrus.FieldLogger
}

// NewHighlighter builds a highlighter using the named chroma style. An
// unknown or empty name falls back to the chroma default.
func NewHighlighter(styleName string, logger logrus.FieldLogger) *Highlighter {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Highlighter{style: style, logger: logger}
}

// Highlight converts code to highlighted HTML suitable for insertion inside
// an existing <pre><code> element. The language hint may be empty, in which
// case the lexer is guessed from the content.
func (h *Highlighter) Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		h.logger.WithError(err).Warn("highlight: tokenise failed, leaving code unhighlighted")
		return stdhtml.EscapeString(code)
	}
	formatter := chromahtml.New(
		chromahtml.WithClasses(false),
		chromahtml.PreventSurroundingPre(true),
	)
	var sb strings.Builder
	if err := formatter.Format(&sb, h.style, iterator); err != nil {
		h.logger.WithError(err).Warn("highlight: format failed, leaving code unhighlighted")
		return stdhtml.EscapeString(code)
	}
	return sb.String()
}

// highlightFragment rewrites every <pre><code> region of an HTML fragment
// with highlighted markup. The fragment is returned unchanged when it cannot
// be parsed or re-rendered.
func highlightFragment(frag string, h *Highlighter) string {
	if frag == "" || !strings.Contains(frag, "<pre") {
		return frag
	}
	nodes, err := parseFragment(frag)
	if err != nil {
		h.logger.WithError(err).Warn("highlight: fragment parse failed")
		return frag
	}
	for _, n := range nodes {
		walkCodeBlocks(n, func(code *html.Node) {
			lang := languageFromClass(attrValue(code, "class"))
			text := textContent(code)
			highlighted := h.Highlight(text, lang)
			for code.FirstChild != nil {
				code.RemoveChild(code.FirstChild)
			}
			code.AppendChild(&html.Node{Type: html.RawNode, Data: highlighted})
		})
	}
	out, err := renderFragment(nodes)
	if err != nil {
		h.logger.WithError(err).Warn("highlight: fragment render failed")
		return frag
	}
	return out
}

// walkCodeBlocks invokes fn for every <code> that is the direct child of a
// <pre> element under n.
func walkCodeBlocks(n *html.Node, fn func(code *html.Node)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Pre {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode && child.DataAtom == atom.Code {
				fn(child)
			}
		}
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walkCodeBlocks(child, fn)
	}
}

func languageFromClass(class string) string {
	for _, field := range strings.Fields(class) {
		if rest, ok := strings.CutPrefix(field, "language-"); ok {
			return rest
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
