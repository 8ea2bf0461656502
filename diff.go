package mdinc

import "strings"

// DeltaKind classifies a content update relative to the previous snapshot.
type DeltaKind uint8

const (
	// DeltaFreshStart marks the first content of a session (previous empty).
	DeltaFreshStart DeltaKind = iota
	// DeltaAppend marks a strict forward extension of the previous snapshot.
	DeltaAppend
	// DeltaRewind marks an update that is not a forward extension; this
	// includes content that diverged and content that got shorter.
	DeltaRewind
)

// Delta is the result of classifying one content update.
type Delta struct {
	Kind DeltaKind
	// Suffix is the literal appended text for DeltaAppend; it may be empty,
	// which still forces a re-render of the open block.
	Suffix string
}

// Classify relates a new content snapshot to the previous one. It is pure:
// the outcome depends only on the two strings. Every pair of strings maps to
// exactly one of the three kinds.
func Classify(previous, next string) Delta {
	if previous == "" {
		return Delta{Kind: DeltaFreshStart}
	}
	if strings.HasPrefix(next, previous) {
		return Delta{Kind: DeltaAppend, Suffix: next[len(previous):]}
	}
	return Delta{Kind: DeltaRewind}
}

func (k DeltaKind) String() string {
	switch k {
	case DeltaFreshStart:
		return "fresh-start"
	case DeltaAppend:
		return "append"
	case DeltaRewind:
		return "rewind"
	default:
		return "unknown"
	}
}
