package mdinc

import "github.com/sirupsen/logrus"

// Option configures a Controller.
type Option func(*config)

type config struct {
	renderer       Renderer
	highlighter    *Highlighter
	highlighterSet bool
	logger         logrus.FieldLogger
	sanitizeInput  bool
}

// WithRenderer sets the render engine. The default is the process-wide
// shared engine.
func WithRenderer(r Renderer) Option {
	return func(cfg *config) {
		cfg.renderer = r
	}
}

// WithHighlighter sets the highlighter used by the deferred highlight pass
// after finalize. A nil highlighter disables the pass.
func WithHighlighter(h *Highlighter) Option {
	return func(cfg *config) {
		cfg.highlighter = h
		cfg.highlighterSet = true
	}
}

// WithLogger sets the logger for locally-recovered failures. The default
// discards all output.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithSanitizeInput enables control-rune stripping of incoming snapshots.
// The filter is applied uniformly to every snapshot, so append/rewind
// classification is unaffected.
func WithSanitizeInput(enabled bool) Option {
	return func(cfg *config) {
		cfg.sanitizeInput = enabled
	}
}
