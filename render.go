package mdinc

import (
	"bytes"
	"fmt"
	"regexp"

	mathjax "github.com/litao91/goldmark-mathjax"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Action names routed through Engine.DispatchAction.
const (
	ActionCopy     = "copy"
	ActionDownload = "download"
)

// Callbacks are host-injected capabilities invoked from rendered output via
// event delegation. Nil members mean the capability is absent.
type Callbacks struct {
	OnCopyRequested     func(payload string)
	OnDownloadRequested func(payload string)
}

// Engine converts Markdown fragments to HTML. It is immutable after
// construction and safe for concurrent use; build one per process and pass it
// by reference to every controller.
type Engine struct {
	md        goldmark.Markdown
	policy    *bluemonday.Policy
	callbacks Callbacks
}

// EngineOption configures Engine construction.
type EngineOption func(*engineConfig)

type engineConfig struct {
	sanitize  bool
	hardWraps bool
	callbacks Callbacks
}

// WithSanitizer enables HTML sanitization of rendered fragments.
func WithSanitizer(enabled bool) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sanitize = enabled
	}
}

// WithCallbacks injects host capabilities for copy/download actions.
func WithCallbacks(callbacks Callbacks) EngineOption {
	return func(cfg *engineConfig) {
		cfg.callbacks = callbacks
	}
}

// NewEngine builds a render engine with footnotes, task lists, tables and
// math enabled.
func NewEngine(opts ...EngineOption) *Engine {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	e := &Engine{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
				mathjax.MathJax,
			),
		),
		callbacks: cfg.callbacks,
	}
	if cfg.sanitize {
		e.policy = newSanitizePolicy()
	}
	return e
}

var defaultEngine = NewEngine()

// DefaultEngine returns the process-wide shared engine.
func DefaultEngine() *Engine {
	return defaultEngine
}

// Render converts one Markdown fragment to HTML. Empty input yields an empty
// string. Unterminated fences and math delimiters render best-effort as the
// still-open construct. Render is deterministic for identical input.
func (e *Engine) Render(markdown string) (string, error) {
	if markdown == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	out := buf.String()
	if e.policy != nil {
		out = e.policy.Sanitize(out)
	}
	return out, nil
}

// DispatchAction routes a delegated UI action to the injected capability.
// It reports whether a callback handled the action.
func (e *Engine) DispatchAction(action, payload string) bool {
	switch action {
	case ActionCopy:
		if cb := e.callbacks.OnCopyRequested; cb != nil {
			cb(payload)
			return true
		}
	case ActionDownload:
		if cb := e.callbacks.OnDownloadRequested; cb != nil {
			cb(payload)
			return true
		}
	}
	return false
}

var (
	languageClassRE = regexp.MustCompile(`^language-[\w+-]+$`)
	mathClassRE     = regexp.MustCompile(`^math (inline|display)$`)
)

func newSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(languageClassRE).OnElements("code")
	p.AllowAttrs("class").Matching(mathClassRE).OnElements("span", "div")
	// Task list checkboxes.
	p.AllowElements("input")
	p.AllowAttrs("type", "checked", "disabled").OnElements("input")
	p.AllowAttrs(MarkerRegionStart, MarkerRegionEnd).Globally()
	return p
}
