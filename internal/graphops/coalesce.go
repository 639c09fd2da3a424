package graphops

import (
	"math"
	"sync"
	"time"

	"agora-backend/internal/document"
)

// Frame is the minimum interval between broadcast position updates for one
// anchor (one animation frame).
const Frame = 16 * time.Millisecond

// MoveThreshold is the displacement in pixels below which intermediate
// position updates are not worth broadcasting.
const MoveThreshold = 1.0

// Coalescer throttles anchor position broadcasts: at most one delta per
// frame, and only when the position moved more than the threshold since the
// last broadcast. Intermediate frames may be dropped for remote peers, but
// the final value always ships: a sub-threshold tail is emitted one trailing
// frame later, and Flush ships it immediately.
type Coalescer struct {
	mu       sync.Mutex
	emit     func(document.Delta)
	last     document.Position
	hasLast  bool
	pending  *document.Delta
	pos      document.Position
	armed    bool
	trailing bool
}

// NewCoalescer builds a coalescer emitting through fn.
func NewCoalescer(fn func(document.Delta)) *Coalescer {
	return &Coalescer{emit: fn}
}

// Offer records the latest position delta and arms the frame timer if it is
// not already running. Later offers within the same frame replace earlier
// ones.
func (c *Coalescer) Offer(pos document.Position, d document.Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &d
	c.pos = pos
	if !c.armed {
		c.armed = true
		time.AfterFunc(Frame, c.tick)
	}
}

func (c *Coalescer) tick() {
	c.mu.Lock()
	c.armed = false
	d := c.pending
	pos := c.pos
	if d == nil {
		c.trailing = false
		c.mu.Unlock()
		return
	}
	if c.hasLast && distance(c.last, pos) <= MoveThreshold && !c.trailing {
		// Below threshold: hold for one trailing frame, then ship the final
		// value even if it never clears the threshold.
		c.trailing = true
		c.armed = true
		time.AfterFunc(Frame, c.tick)
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.trailing = false
	c.last = pos
	c.hasLast = true
	c.mu.Unlock()
	c.emit(*d)
}

// Flush broadcasts the pending position unconditionally.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	d := c.pending
	c.pending = nil
	c.trailing = false
	if d != nil {
		c.last = c.pos
		c.hasLast = true
	}
	c.mu.Unlock()
	if d != nil {
		c.emit(*d)
	}
}

func distance(a, b document.Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
