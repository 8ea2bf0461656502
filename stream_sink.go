package mdinc

import "strings"

// Sink receives updates from a streaming session.
type Sink interface {
	Apply(Update) error
}

// HTMLAssembler is a Sink that materializes the two output regions the way a
// host view layer would: committed fragments are only ever appended (or
// discarded wholesale on Reset), and the in-flight fragment is replaced on
// every update.
type HTMLAssembler struct {
	committed []string
	inFlight  string
	started   bool
	completed bool
}

// Apply folds one update into the assembled regions.
func (a *HTMLAssembler) Apply(up Update) error {
	if up.Reset {
		a.committed = a.committed[:0]
	}
	a.committed = append(a.committed, up.Committed...)
	a.inFlight = up.InFlight
	if up.Events.Start {
		a.started = true
	}
	if up.Events.Complete {
		a.completed = true
		a.inFlight = ""
	}
	return nil
}

// HTML returns the committed region followed by the in-flight fragment.
func (a *HTMLAssembler) HTML() string {
	if a.inFlight == "" {
		return strings.Join(a.committed, "")
	}
	return strings.Join(a.committed, "") + a.inFlight
}

// Committed returns a copy of the committed fragments in arrival order.
func (a *HTMLAssembler) Committed() []string {
	out := make([]string, len(a.committed))
	copy(out, a.committed)
	return out
}

// InFlight returns the current in-flight fragment.
func (a *HTMLAssembler) InFlight() string {
	return a.inFlight
}

// Started reports whether a start event was observed.
func (a *HTMLAssembler) Started() bool {
	return a.started
}

// Completed reports whether a complete event was observed.
func (a *HTMLAssembler) Completed() bool {
	return a.completed
}
