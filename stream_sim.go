package mdinc

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// SimulateRequest configures Simulate.
type SimulateRequest struct {
	Reader     io.Reader
	Sink       Sink
	Controller *Controller
	ChunkSize  int
	Delay      time.Duration
	Options    []Option
}

// Simulate replays a Markdown document through a streaming session: the
// reader's content is fed to a controller as cumulative snapshots of
// ChunkSize runes, pausing Delay between chunks, and every resulting update
// is applied to the sink. The final update carries the completion flag.
//
// This mirrors what a token-streaming backend produces and is the harness
// used by the CLI and by equivalence tests.
func Simulate(req SimulateRequest) error {
	if req.Reader == nil {
		return fmt.Errorf("simulate: Reader is nil")
	}
	if req.Sink == nil {
		return fmt.Errorf("simulate: Sink is nil")
	}
	if req.ChunkSize <= 0 {
		return fmt.Errorf("simulate: ChunkSize must be > 0")
	}
	ctrl := req.Controller
	if ctrl == nil {
		ctrl = NewController(req.Options...)
	}
	reader := bufio.NewReader(req.Reader)
	var content strings.Builder
	deliver := func(complete bool) error {
		up, err := ctrl.Update(content.String(), complete)
		if err != nil {
			return err
		}
		return req.Sink.Apply(up)
	}
	pending := 0
	for {
		r, size, err := reader.ReadRune()
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("simulate: read: %w", err)
		}
		if r == utf8.RuneError && size == 1 {
			continue
		}
		content.WriteRune(r)
		pending++
		if pending >= req.ChunkSize {
			if req.Delay > 0 {
				time.Sleep(req.Delay)
			}
			if err := deliver(false); err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			pending = 0
		}
	}
	if err := deliver(true); err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	return nil
}
