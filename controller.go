package mdinc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrFinalized reports an update delivered after the session completed.
// Call Reset to start a new session.
var ErrFinalized = errors.New("session already finalized")

// Renderer converts one Markdown fragment to HTML. Implementations must be
// deterministic for identical input, must tolerate unterminated fences and
// math delimiters, and must render empty input to an empty string.
type Renderer interface {
	Render(markdown string) (string, error)
}

// State is the controller lifecycle state.
type State uint8

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StateStreaming means content is arriving incrementally.
	StateStreaming
	// StateFinalizing means the session completed; it is terminal until Reset.
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Events carries the session signals raised by one update.
//
// Start is raised on the first non-empty content of a session. A rewind to
// empty content abandons the session without a complete event; the next
// non-empty content begins a new session and raises Start again.
type Events struct {
	Start    bool
	Complete bool
}

// Update is the value object returned for every accepted content update. The
// host owns two regions of rendered output: a committed region it only ever
// appends to, and an in-flight region it replaces wholesale.
type Update struct {
	// Reset, when true, tells the host to discard its committed region
	// before applying the rest of this update (rewind and finalize paths).
	Reset bool
	// Committed holds fragments to append to the committed region, in order.
	Committed []string
	// InFlight replaces the in-flight region wholesale. Empty means clear.
	InFlight string
	Events   Events
}

// Controller drives incremental rendering for one message at a time. It owns
// the tail buffer, the committed-block count and the committed fragment log,
// and calls the render engine only for blocks that need it.
//
// The controller is synchronous and single-goroutine by design: each call to
// Update runs to completion, and deferred work (flushes, the post-finalize
// highlight pass) runs in FIFO order at the start of the next call or via
// Drain.
type Controller struct {
	renderer    Renderer
	highlighter *Highlighter
	logger      logrus.FieldLogger

	sanitizeInput bool

	state     State
	session   uuid.UUID
	snapshot  string
	tail      []byte
	committed int
	log       CommitLog
	queue     taskQueue
}

// NewController builds a controller in the Idle state.
func NewController(opts ...Option) *Controller {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.renderer == nil {
		cfg.renderer = DefaultEngine()
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}
	if !cfg.highlighterSet {
		cfg.highlighter = NewHighlighter("", cfg.logger)
	}
	return &Controller{
		renderer:      cfg.renderer,
		highlighter:   cfg.highlighter,
		logger:        cfg.logger,
		sanitizeInput: cfg.sanitizeInput,
		state:         StateIdle,
		session:       uuid.New(),
	}
}

// Update accepts the cumulative message content so far plus the completion
// flag, and returns what the host must apply to its regions. Render errors
// propagate unhandled: the controller cannot degrade partial HTML safely, and
// rendering is idempotent, so the next update simply tries again.
func (c *Controller) Update(content string, complete bool) (Update, error) {
	if c.state == StateFinalizing {
		return Update{}, ErrFinalized
	}
	// Deferred work scheduled by the previous update runs first, in order.
	c.queue.drain(c.session)
	if c.sanitizeInput {
		content = sanitizeContent(content)
	}
	if complete {
		return c.finalize(content)
	}
	var up Update
	delta := Classify(c.snapshot, content)
	c.snapshot = content
	switch delta.Kind {
	case DeltaFreshStart:
		if content == "" {
			return Update{}, nil
		}
		c.begin(&up)
		c.tail = append(c.tail[:0], content...)
	case DeltaAppend:
		c.tail = append(c.tail, delta.Suffix...)
	case DeltaRewind:
		c.rewind(&up)
		c.tail = append(c.tail[:0], content...)
	}
	if err := c.advance(&up); err != nil {
		return Update{}, err
	}
	return up, nil
}

// begin opens a new session: Idle -> Streaming, start event exactly once.
func (c *Controller) begin(up *Update) {
	c.state = StateStreaming
	c.session = uuid.New()
	c.committed = 0
	c.log.Reset()
	up.Events.Start = true
}

// rewind discards all committed state. There is no reliable backward diff,
// so correctness trumps incremental efficiency on this rare path; the caller
// replays the full new content immediately afterwards.
func (c *Controller) rewind(up *Update) {
	c.session = uuid.New()
	c.committed = 0
	c.log.Reset()
	up.Reset = true
}

// advance re-splits the tail buffer and renders what changed: every locally
// complete block past the committed count is rendered once and scheduled for
// flush, and the open tail block is re-rendered unconditionally.
func (c *Controller) advance(up *Update) error {
	blocks := Split(string(c.tail))
	locallyComplete := len(blocks) - 1
	if locallyComplete < c.committed {
		// A boundary confirmed by the tail's final line can un-confirm as
		// that line grows (a bare "-" starts a list until it becomes "--").
		// The committed region no longer matches the split, so recommit
		// from scratch rather than show the folded-back block twice.
		c.rewind(up)
	}
	if locallyComplete > c.committed {
		var sb strings.Builder
		for _, block := range blocks[c.committed:locallyComplete] {
			frag, err := c.renderer.Render(block)
			if err != nil {
				return fmt.Errorf("render block: %w", err)
			}
			sb.WriteString(frag)
		}
		fragment := sb.String()
		up.Committed = append(up.Committed, fragment)
		c.scheduleFlush(fragment)
		c.committed = locallyComplete
	}
	open, err := c.renderer.Render(blocks[len(blocks)-1])
	if err != nil {
		return fmt.Errorf("render open block: %w", err)
	}
	up.InFlight = open
	return nil
}

// finalize performs the one authoritative full render. Whatever heuristic
// drift accumulated during streaming, the final output is identical to a
// non-streaming render of the same text.
func (c *Controller) finalize(content string) (Update, error) {
	var up Update
	if c.state == StateIdle && content != "" {
		up.Events.Start = true
	}
	full, err := c.renderer.Render(content)
	if err != nil {
		return Update{}, fmt.Errorf("final render: %w", err)
	}
	c.state = StateFinalizing
	c.log.Reset()
	c.queue.reset()
	up.Reset = true
	if full != "" {
		up.Committed = append(up.Committed, full)
	}
	up.Events.Complete = true
	session := c.session
	c.queue.schedule(session, func() { c.log.Append(full) })
	c.queue.schedule(session, func() { c.applyHighlight() })
	c.queue.drain(c.session)
	c.snapshot = ""
	c.tail = c.tail[:0]
	c.committed = 0
	return up, nil
}

// applyHighlight is the deferred pass decorating committed code blocks. It
// always runs after the final flush, never during streaming.
func (c *Controller) applyHighlight() {
	if c.highlighter == nil {
		return
	}
	c.log.transform(func(frag string) string {
		return highlightFragment(frag, c.highlighter)
	})
}

func (c *Controller) scheduleFlush(fragment string) {
	c.queue.schedule(c.session, func() {
		c.log.Append(fragment)
	})
}

// Reset returns the controller to Idle and clears all state without emitting
// a completion event. Deferred work scheduled before the reset is discarded:
// it belongs to a superseded session.
func (c *Controller) Reset() {
	c.state = StateIdle
	c.session = uuid.New()
	c.snapshot = ""
	c.tail = c.tail[:0]
	c.committed = 0
	c.log.Reset()
	c.queue.reset()
}

// Drain runs all pending deferred work for the current session.
func (c *Controller) Drain() {
	c.queue.drain(c.session)
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// CommittedCount returns how many blocks have been committed this session.
func (c *Controller) CommittedCount() int {
	return c.committed
}

// HTML drains pending flushes and returns the committed region as a single
// marker-stamped string.
func (c *Controller) HTML() string {
	c.queue.drain(c.session)
	return c.log.HTML()
}

// Fragments drains pending flushes and returns the committed fragments in
// arrival order.
func (c *Controller) Fragments() []string {
	c.queue.drain(c.session)
	return c.log.Fragments()
}
