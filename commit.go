package mdinc

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Layout-stability markers stamped on the committed region's boundary
// elements. Structural CSS keyed on :first-child/:last-child breaks when
// nodes move between the in-flight and committed containers; hosts style
// against these attributes instead.
const (
	MarkerRegionStart = "data-region-start"
	MarkerRegionEnd   = "data-region-end"
)

// CommitLog is the committed region: a write-only log of rendered HTML
// fragments in arrival order. Fragments are only ever appended, never
// inserted or reordered, and the log re-stamps its layout markers after
// every mutation.
type CommitLog struct {
	fragments []string
	stamped   []string
}

// Append adds a fragment to the end of the log. Appending an empty fragment
// is a no-op, which keeps flushing an empty in-flight region idempotent.
func (l *CommitLog) Append(fragment string) {
	if fragment == "" {
		return
	}
	l.fragments = append(l.fragments, fragment)
	l.stamp()
}

// Reset discards all committed fragments.
func (l *CommitLog) Reset() {
	l.fragments = l.fragments[:0]
	l.stamped = l.stamped[:0]
}

// Len returns the number of committed fragments.
func (l *CommitLog) Len() int {
	return len(l.fragments)
}

// Fragments returns a copy of the raw fragments in arrival order.
func (l *CommitLog) Fragments() []string {
	out := make([]string, len(l.fragments))
	copy(out, l.fragments)
	return out
}

// HTML returns the committed region as a single marker-stamped string.
func (l *CommitLog) HTML() string {
	return strings.Join(l.stamped, "")
}

// transform rewrites every fragment in place without changing arrival order.
// Used by the deferred highlight pass, which decorates committed code blocks
// but never moves them.
func (l *CommitLog) transform(fn func(string) string) {
	for i, frag := range l.fragments {
		l.fragments[i] = fn(frag)
	}
	l.stampAll()
}

// stamp refreshes markers after an append. Only the first fragment and the
// two most recent ones can change.
func (l *CommitLog) stamp() {
	n := len(l.fragments)
	for len(l.stamped) < n {
		l.stamped = append(l.stamped, "")
	}
	l.stamped = l.stamped[:n]
	for _, i := range [3]int{0, n - 2, n - 1} {
		if i >= 0 && i < n {
			l.stamped[i] = stampFragment(l.fragments[i], i == 0, i == n-1)
		}
	}
}

func (l *CommitLog) stampAll() {
	l.stamped = l.stamped[:0]
	n := len(l.fragments)
	for i, frag := range l.fragments {
		l.stamped = append(l.stamped, stampFragment(frag, i == 0, i == n-1))
	}
}

// stampFragment parses one fragment and sets the region markers on its first
// and last top-level elements as requested, clearing stale markers first.
// Fragments that fail to parse or re-render are passed through untouched.
func stampFragment(frag string, first, last bool) string {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(frag), ctx)
	if err != nil {
		return frag
	}
	var firstEl, lastEl *html.Node
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		removeAttr(n, MarkerRegionStart)
		removeAttr(n, MarkerRegionEnd)
		if firstEl == nil {
			firstEl = n
		}
		lastEl = n
	}
	if first && firstEl != nil {
		setAttr(firstEl, MarkerRegionStart, "")
	}
	if last && lastEl != nil {
		setAttr(lastEl, MarkerRegionEnd, "")
	}
	var sb strings.Builder
	for _, n := range nodes {
		if err := html.Render(&sb, n); err != nil {
			return frag
		}
	}
	return sb.String()
}

func parseFragment(frag string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	return html.ParseFragment(strings.NewReader(frag), ctx)
}

func renderFragment(nodes []*html.Node) (string, error) {
	var sb strings.Builder
	for _, n := range nodes {
		if err := html.Render(&sb, n); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// task is one unit of deferred work: a flush of a committed fragment or the
// post-finalize highlight pass. Tasks run strictly FIFO; tasks scheduled by a
// superseded session are discarded instead of run.
type task struct {
	session uuid.UUID
	run     func()
}

type taskQueue struct {
	tasks []task
}

func (q *taskQueue) schedule(session uuid.UUID, run func()) {
	q.tasks = append(q.tasks, task{session: session, run: run})
}

func (q *taskQueue) drain(current uuid.UUID) {
	for len(q.tasks) > 0 {
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		if t.session != current {
			continue
		}
		t.run()
	}
}

func (q *taskQueue) reset() {
	q.tasks = q.tasks[:0]
}

func (q *taskQueue) pending() int {
	return len(q.tasks)
}
