package mdinc

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// failingRenderer fails a fixed number of calls, then delegates to the shared
// engine. Used to verify that render errors propagate and the controller
// self-heals on retry.
type failingRenderer struct {
	failures int
	calls    int
}

func (r *failingRenderer) Render(markdown string) (string, error) {
	r.calls++
	if r.calls <= r.failures {
		return "", fmt.Errorf("injected failure %d", r.calls)
	}
	return DefaultEngine().Render(markdown)
}

func TestControllerEmptyUpdateIsNoOp(t *testing.T) {
	ctrl := NewController()
	up, err := ctrl.Update("", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Events.Start || up.InFlight != "" || len(up.Committed) != 0 {
		t.Fatalf("empty update produced output: %+v", up)
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("state = %v, want idle", ctrl.State())
	}
}

func TestControllerStartEventExactlyOnce(t *testing.T) {
	ctrl := NewController()
	first, err := ctrl.Update("hello", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !first.Events.Start {
		t.Fatal("first content update missing start event")
	}
	if ctrl.State() != StateStreaming {
		t.Fatalf("state = %v, want streaming", ctrl.State())
	}
	second, err := ctrl.Update("hello world", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if second.Events.Start {
		t.Fatal("start event raised twice")
	}
}

func TestControllerCommitsOnConfirmedBoundary(t *testing.T) {
	ctrl := NewController()
	up, err := ctrl.Update("Intro paragraph.", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(up.Committed) != 0 {
		t.Fatalf("sole open block committed early: %q", up.Committed)
	}
	if !strings.Contains(up.InFlight, "Intro paragraph.") {
		t.Fatalf("in-flight missing content: %q", up.InFlight)
	}

	up, err = ctrl.Update("Intro paragraph.\n\n- one", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(up.Committed) != 1 || !strings.Contains(up.Committed[0], "Intro paragraph.") {
		t.Fatalf("expected intro committed, got %q", up.Committed)
	}
	if !strings.Contains(up.InFlight, "<ul>") {
		t.Fatalf("in-flight should hold the open list: %q", up.InFlight)
	}
	if ctrl.CommittedCount() != 1 {
		t.Fatalf("committed count = %d, want 1", ctrl.CommittedCount())
	}
}

func TestControllerCommittedRegionMonotone(t *testing.T) {
	ctrl := NewController()
	var assembler HTMLAssembler
	snapshots := []string{
		"# Title",
		"# Title\n\npara",
		"# Title\n\nparagraph one",
		"# Title\n\nparagraph one\n\n- alpha",
		"# Title\n\nparagraph one\n\n- alpha\n- beta",
		"# Title\n\nparagraph one\n\n- alpha\n- beta\n\n> quote",
	}
	var committedSoFar string
	for _, snapshot := range snapshots {
		up, err := ctrl.Update(snapshot, false)
		if err != nil {
			t.Fatalf("update %q: %v", snapshot, err)
		}
		if up.Reset {
			t.Fatalf("append-only stream produced a reset at %q", snapshot)
		}
		if err := assembler.Apply(up); err != nil {
			t.Fatalf("apply: %v", err)
		}
		joined := strings.Join(assembler.Committed(), "")
		if !strings.HasPrefix(joined, committedSoFar) {
			t.Fatalf("committed region mutated:\nbefore %q\nafter  %q", committedSoFar, joined)
		}
		committedSoFar = joined
	}
	if ctrl.CommittedCount() == 0 {
		t.Fatal("no blocks committed across the stream")
	}
}

func TestControllerRewindResetsCommitted(t *testing.T) {
	ctrl := NewController()
	if _, err := ctrl.Update("# A\n\n- x", false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ctrl.CommittedCount() != 1 {
		t.Fatalf("setup: committed count = %d, want 1", ctrl.CommittedCount())
	}
	up, err := ctrl.Update("# B", false)
	if err != nil {
		t.Fatalf("rewind update: %v", err)
	}
	if !up.Reset {
		t.Fatal("diverged content did not request a reset")
	}
	if ctrl.CommittedCount() != 0 {
		t.Fatalf("committed count after rewind = %d, want 0", ctrl.CommittedCount())
	}
	if len(ctrl.Fragments()) != 0 {
		t.Fatalf("fragment log not cleared: %q", ctrl.Fragments())
	}
	if !strings.Contains(up.InFlight, "B") {
		t.Fatalf("replayed content missing: %q", up.InFlight)
	}
}

func TestControllerFinalizeIsAuthoritative(t *testing.T) {
	full := "# Title\n\nBody text.\n\n- one\n- two\n"
	want, err := DefaultEngine().Render(full)
	if err != nil {
		t.Fatalf("one-shot render: %v", err)
	}

	ctrl := NewController(WithHighlighter(nil))
	if _, err := ctrl.Update(full[:10], false); err != nil {
		t.Fatalf("partial update: %v", err)
	}
	up, err := ctrl.Update(full, true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !up.Reset {
		t.Fatal("finalize must replace the committed region")
	}
	if !up.Events.Complete {
		t.Fatal("finalize missing complete event")
	}
	if up.InFlight != "" {
		t.Fatalf("finalize left in-flight content: %q", up.InFlight)
	}
	if len(up.Committed) != 1 || up.Committed[0] != want {
		t.Fatalf("final fragment differs from one-shot render:\nwant %q\n got %q", want, up.Committed)
	}
	if ctrl.State() != StateFinalizing {
		t.Fatalf("state = %v, want finalizing", ctrl.State())
	}
}

func TestControllerFinalizeFromIdleRaisesBothEvents(t *testing.T) {
	ctrl := NewController()
	up, err := ctrl.Update("hello", true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !up.Events.Start || !up.Events.Complete {
		t.Fatalf("events = %+v, want start and complete", up.Events)
	}
}

func TestControllerFinalizeEmptyContent(t *testing.T) {
	ctrl := NewController()
	up, err := ctrl.Update("", true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if up.Events.Start {
		t.Fatal("empty session raised a start event")
	}
	if !up.Events.Complete {
		t.Fatal("empty session missing complete event")
	}
	if len(up.Committed) != 0 {
		t.Fatalf("empty session committed content: %q", up.Committed)
	}
	if ctrl.HTML() != "" {
		t.Fatalf("empty session produced HTML: %q", ctrl.HTML())
	}
}

func TestControllerUpdateAfterFinalize(t *testing.T) {
	ctrl := NewController()
	if _, err := ctrl.Update("done", true); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := ctrl.Update("more", false); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
	if _, err := ctrl.Update("more", true); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized for complete update, got %v", err)
	}
}

func TestControllerResetStartsOver(t *testing.T) {
	ctrl := NewController()
	if _, err := ctrl.Update("first message", true); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	ctrl.Reset()
	if ctrl.State() != StateIdle {
		t.Fatalf("state after reset = %v, want idle", ctrl.State())
	}
	if ctrl.HTML() != "" {
		t.Fatalf("reset left committed HTML: %q", ctrl.HTML())
	}
	up, err := ctrl.Update("second message", false)
	if err != nil {
		t.Fatalf("update after reset: %v", err)
	}
	if !up.Events.Start {
		t.Fatal("new session missing start event")
	}
}

func TestControllerRenderErrorPropagatesAndRetries(t *testing.T) {
	renderer := &failingRenderer{failures: 1}
	ctrl := NewController(WithRenderer(renderer))
	if _, err := ctrl.Update("hello", false); err == nil {
		t.Fatal("expected injected render error")
	}
	up, err := ctrl.Update("hello", false)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !strings.Contains(up.InFlight, "hello") {
		t.Fatalf("retry produced no output: %+v", up)
	}
}

func TestControllerFinalRenderErrorKeepsSessionOpen(t *testing.T) {
	renderer := &failingRenderer{failures: 1}
	ctrl := NewController(WithRenderer(renderer))
	if _, err := ctrl.Update("hello", true); err == nil {
		t.Fatal("expected injected final render error")
	}
	if ctrl.State() == StateFinalizing {
		t.Fatal("failed finalize must not enter the terminal state")
	}
	up, err := ctrl.Update("hello", true)
	if err != nil {
		t.Fatalf("finalize retry: %v", err)
	}
	if !up.Events.Complete {
		t.Fatal("retry missing complete event")
	}
}

func TestControllerHTMLCarriesMarkers(t *testing.T) {
	ctrl := NewController()
	if _, err := ctrl.Update("just a paragraph", true); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	html := ctrl.HTML()
	if !strings.Contains(html, MarkerRegionStart) || !strings.Contains(html, MarkerRegionEnd) {
		t.Fatalf("committed region missing layout markers: %q", html)
	}
}

func TestControllerHighlightAppliedAfterFinalize(t *testing.T) {
	ctrl := NewController(WithHighlighter(NewHighlighter("monokai", nil)))
	up, err := ctrl.Update("```go\npackage main\n```\n", true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// The update fragment stays pure render output; only the committed log
	// gets the deferred highlight pass.
	if len(up.Committed) != 1 {
		t.Fatalf("expected one final fragment, got %q", up.Committed)
	}
	if strings.Contains(up.Committed[0], "<span style") {
		t.Fatalf("update fragment was highlighted eagerly: %q", up.Committed[0])
	}
	html := ctrl.HTML()
	if !strings.Contains(html, "<span") {
		t.Fatalf("committed log missing highlight spans: %q", html)
	}
}

func TestControllerHighlightDisabled(t *testing.T) {
	ctrl := NewController(WithHighlighter(nil))
	if _, err := ctrl.Update("```go\npackage main\n```\n", true); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if strings.Contains(ctrl.HTML(), "<span style") {
		t.Fatalf("highlight ran while disabled: %q", ctrl.HTML())
	}
}

func TestControllerSanitizeInput(t *testing.T) {
	ctrl := NewController(WithSanitizeInput(true))
	up, err := ctrl.Update("hel\x07lo", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(up.InFlight, "hello") {
		t.Fatalf("control rune not stripped: %q", up.InFlight)
	}
}

func TestControllerFlushesBeforeNextUpdate(t *testing.T) {
	ctrl := NewController()
	if _, err := ctrl.Update("first para\n\n- item", false); err != nil {
		t.Fatalf("update: %v", err)
	}
	frags := ctrl.Fragments()
	if len(frags) != 1 || !strings.Contains(frags[0], "first para") {
		t.Fatalf("deferred flush not applied: %q", frags)
	}
}

// visibleText normalizes rendered HTML to its whitespace-collapsed text
// content, so streamed and one-shot output can be compared across block
// boundary differences.
func visibleText(t *testing.T, htmlFragment string) string {
	t.Helper()
	nodes, err := parseFragment(htmlFragment)
	if err != nil {
		t.Fatalf("parse fragment %q: %v", htmlFragment, err)
	}
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(textContent(n))
		sb.WriteString(" ")
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func TestControllerRecommitsWhenBoundaryUnconfirms(t *testing.T) {
	// A bare "-" looks like a list start and confirms the boundary before
	// it; once it grows into "--" the blank line folds back and the already
	// committed paragraph must not stay on screen twice.
	ctrl := NewController(WithHighlighter(nil))
	var assembler HTMLAssembler

	up, err := ctrl.Update("Intro para.\n\n-", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := assembler.Apply(up); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ctrl.CommittedCount() != 1 {
		t.Fatalf("setup: committed count = %d, want 1", ctrl.CommittedCount())
	}

	up, err = ctrl.Update("Intro para.\n\n--", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !up.Reset {
		t.Fatal("un-confirmed boundary must reset the committed region")
	}
	if err := assembler.Apply(up); err != nil {
		t.Fatalf("apply: %v", err)
	}
	want, err := DefaultEngine().Render("Intro para.\n\n--")
	if err != nil {
		t.Fatalf("one-shot render: %v", err)
	}
	if got := assembler.HTML(); got != want {
		t.Fatalf("host output diverged from one-shot render:\nwant %q\n got %q", want, got)
	}
	if strings.Count(assembler.HTML(), "Intro para.") != 1 {
		t.Fatalf("committed paragraph duplicated: %q", assembler.HTML())
	}
	if ctrl.CommittedCount() != 0 {
		t.Fatalf("committed count = %d, want 0", ctrl.CommittedCount())
	}

	// Later commits must index correctly after the recommit.
	up, err = ctrl.Update("Intro para.\n\n--\n\n- item\n\n# Next", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := assembler.Apply(up); err != nil {
		t.Fatalf("apply: %v", err)
	}
	want, err = DefaultEngine().Render("Intro para.\n\n--\n\n- item\n\n# Next")
	if err != nil {
		t.Fatalf("one-shot render: %v", err)
	}
	if got, wantText := visibleText(t, assembler.HTML()), visibleText(t, want); got != wantText {
		t.Fatalf("overlapping commit after recommit:\nwant %q\n got %q", wantText, got)
	}
}

func TestControllerStreamMatchesOneShotAtEverySnapshot(t *testing.T) {
	// Committed-so-far plus in-flight must match a one-shot render of the
	// same content after every update, not just after finalize.
	doc := "# Head\n\nIntro para.\n\n- one\n- two\n\n```go\nx := 1\n```\n\n> quote\n\nclosing para\n"
	ctrl := NewController(WithHighlighter(nil))
	var assembler HTMLAssembler
	for end := 1; end <= len(doc); end++ {
		content := doc[:end]
		up, err := ctrl.Update(content, false)
		if err != nil {
			t.Fatalf("update %q: %v", content, err)
		}
		if err := assembler.Apply(up); err != nil {
			t.Fatalf("apply: %v", err)
		}
		want, err := DefaultEngine().Render(content)
		if err != nil {
			t.Fatalf("one-shot render %q: %v", content, err)
		}
		if got, wantText := visibleText(t, assembler.HTML()), visibleText(t, want); got != wantText {
			t.Fatalf("snapshot %q diverged:\nwant %q\n got %q", content, wantText, got)
		}
	}
}

func TestControllerStreamInvariantAcrossMarkerGrowth(t *testing.T) {
	// "-" -> "--" -> "---" walks a line from list marker to thematic break;
	// the host view must track a one-shot render the whole way.
	snapshots := []string{
		"Intro para.",
		"Intro para.\n\n-",
		"Intro para.\n\n--",
		"Intro para.\n\n---",
		"Intro para.\n\n---\n\nAfter break.",
	}
	ctrl := NewController(WithHighlighter(nil))
	var assembler HTMLAssembler
	for _, content := range snapshots {
		up, err := ctrl.Update(content, false)
		if err != nil {
			t.Fatalf("update %q: %v", content, err)
		}
		if err := assembler.Apply(up); err != nil {
			t.Fatalf("apply: %v", err)
		}
		want, err := DefaultEngine().Render(content)
		if err != nil {
			t.Fatalf("one-shot render %q: %v", content, err)
		}
		if got, wantText := visibleText(t, assembler.HTML()), visibleText(t, want); got != wantText {
			t.Fatalf("snapshot %q diverged:\nwant %q\n got %q", content, wantText, got)
		}
	}
}

func TestControllerRewindToEmptyAbandonsSession(t *testing.T) {
	ctrl := NewController()
	if _, err := ctrl.Update("first message", false); err != nil {
		t.Fatalf("update: %v", err)
	}
	up, err := ctrl.Update("", false)
	if err != nil {
		t.Fatalf("rewind to empty: %v", err)
	}
	if !up.Reset {
		t.Fatal("rewind to empty must reset the committed region")
	}
	if up.Events.Start || up.Events.Complete {
		t.Fatalf("abandonment raised events: %+v", up.Events)
	}
	if up.InFlight != "" {
		t.Fatalf("abandoned session left in-flight output: %q", up.InFlight)
	}
	if len(ctrl.Fragments()) != 0 {
		t.Fatalf("fragment log not cleared: %q", ctrl.Fragments())
	}
	next, err := ctrl.Update("second message", false)
	if err != nil {
		t.Fatalf("update after abandonment: %v", err)
	}
	if !next.Events.Start {
		t.Fatal("new content after abandonment must start a new session")
	}
}

func TestControllerStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateStreaming.String() != "streaming" || StateFinalizing.String() != "finalizing" {
		t.Fatal("unexpected state names")
	}
	if State(9).String() != "unknown" {
		t.Fatal("unexpected name for invalid state")
	}
}
