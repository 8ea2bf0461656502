// Package mdinc renders incrementally-arriving Markdown to HTML.
//
// This package is built for token-streaming chat backends: the host feeds it
// the cumulative Markdown text of a message on every update, and the package
// decides which blocks are complete enough to render once and commit, and
// which tail block must be re-rendered as it grows. Committed output is
// append-only; only the open tail block is ever replaced.
//
// Core properties:
//   - One render per committed block; no re-parsing of finalized content
//   - Append / rewind / fresh-start classification of every update
//   - Authoritative single-shot render on completion (self-healing)
//   - Lazy syntax highlighting outside the streaming hot path
//
// Example:
//
//	ctrl := mdinc.NewController()
//	up, err := ctrl.Update("# Hello\n\nMarkdown in, HTML out.", false)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = up.InFlight // render of the still-open block
//
// The final update carries complete=true and yields output identical to a
// non-streaming render of the full text.
package mdinc
