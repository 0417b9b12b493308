// Package marker moves map markers smoothly between reported positions.
package marker

import (
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"route-tracker/internal/geo"
	"route-tracker/internal/metrics"
	"route-tracker/internal/render"
)

const (
	DefaultDuration      = 1000 * time.Millisecond
	DefaultFrameInterval = 16 * time.Millisecond
)

// Interpolate returns the position elapsed into a linear move from -> to
// lasting duration. Longitude and latitude are interpolated independently.
func Interpolate(from, to orb.Point, elapsed, duration time.Duration) orb.Point {
	if duration <= 0 {
		return to
	}
	return geo.Lerp(from, to, float64(elapsed)/float64(duration))
}

// State is a snapshot of one marker.
type State struct {
	Position  orb.Point // last rendered position
	From      orb.Point
	To        orb.Point
	Animating bool
}

// controller owns the transition of one entity. A transition's frame loop
// exits as soon as gen moves on. Lock order is Animator.mu, then
// controller.mu.
type controller struct {
	id     string
	source string // feed that last reported the entity; guarded by Animator.mu

	mu        sync.Mutex
	rendered  orb.Point
	from, to  orb.Point
	start     time.Time
	animating bool
	gen       uint64
	stop      chan struct{}
}

type Options struct {
	Duration      time.Duration
	FrameInterval time.Duration
	Clock         Clock
}

// Animator keeps one controller per entity. Entities never wait on each
// other: every transition runs its own frame loop.
type Animator struct {
	sink     render.MarkerSurface
	clock    Clock
	duration time.Duration
	frame    time.Duration
	logger   *zap.Logger
	metrics  *metrics.Collector

	mu       sync.Mutex
	entities map[string]*controller
	closed   bool
	wg       sync.WaitGroup
}

func NewAnimator(sink render.MarkerSurface, opts Options, logger *zap.Logger, m *metrics.Collector) *Animator {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if sink == nil {
		sink = render.Fanout(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Animator{
		sink:     sink,
		clock:    opts.Clock,
		duration: opts.Duration,
		frame:    opts.FrameInterval,
		logger:   logger.Named("marker"),
		metrics:  m,
		entities: make(map[string]*controller),
	}
}

// Update moves entity id towards to. An unknown entity is placed at once;
// a known one starts a transition from where it is drawn now, aborting any
// transition in flight.
func (a *Animator) Update(id string, to orb.Point) {
	a.UpdateFrom("", id, to)
}

// UpdateFrom is Update on behalf of a named feed, which becomes the
// entity's owner for SyncFrom.
func (a *Animator) UpdateFrom(source, id string, to orb.Point) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	c, ok := a.entities[id]
	if !ok {
		a.entities[id] = &controller{id: id, source: source, rendered: to, from: to, to: to}
		a.trackedChanged()
		a.sink.MoveMarker(id, to)
		return
	}
	c.source = source

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.animating && c.to == to {
		return
	}
	if !c.animating && c.rendered == to {
		return
	}

	if c.animating {
		close(c.stop)
		a.logger.Debug("transition restarted", zap.String("entity", id))
	} else if a.metrics != nil {
		a.metrics.ActiveAnimations.Inc()
	}
	c.gen++
	c.from = c.rendered
	c.to = to
	c.start = a.clock.Now()
	c.animating = true
	c.stop = make(chan struct{})

	ticker := a.clock.NewTicker(a.frame)
	a.wg.Add(1)
	go a.run(c, c.gen, c.stop, ticker)
}

func (a *Animator) run(c *controller, gen uint64, stop <-chan struct{}, ticker Ticker) {
	defer a.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !a.step(c, gen) {
				return
			}
		}
	}
}

// step renders one frame and reports whether the transition goes on.
func (a *Animator) step(c *controller, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || !c.animating {
		return false
	}
	elapsed := a.clock.Now().Sub(c.start)
	c.rendered = Interpolate(c.from, c.to, elapsed, a.duration)
	a.sink.MoveMarker(c.id, c.rendered)
	if a.metrics != nil {
		a.metrics.MarkerFrames.Inc()
	}
	if elapsed < a.duration {
		return true
	}
	c.rendered = c.to
	c.from = c.to
	c.animating = false
	c.start = time.Time{}
	if a.metrics != nil {
		a.metrics.ActiveAnimations.Dec()
	}
	return false
}

// Remove cancels the entity's transition and takes its marker off the map.
func (a *Animator) Remove(id string) {
	a.mu.Lock()
	c, ok := a.entities[id]
	if ok {
		delete(a.entities, id)
		a.trackedChanged()
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	a.cancel(c)
	c.mu.Unlock()
	a.sink.RemoveMarker(id)
}

// cancel must be called with c.mu held.
func (a *Animator) cancel(c *controller) {
	if !c.animating {
		return
	}
	close(c.stop)
	c.gen++
	c.animating = false
	if a.metrics != nil {
		a.metrics.ActiveAnimations.Dec()
	}
}

// Sync makes the markers match positions: entities missing from it are
// removed, the others updated.
func (a *Animator) Sync(positions map[string]orb.Point) {
	a.sync("", positions, func(*controller) bool { return true })
}

// SyncFrom is Sync scoped to one feed: only entities that source owns are
// removed when missing, so feeds sharing the animator leave each other's
// markers alone.
func (a *Animator) SyncFrom(source string, positions map[string]orb.Point) {
	a.sync(source, positions, func(c *controller) bool { return c.source == source })
}

func (a *Animator) sync(source string, positions map[string]orb.Point, owned func(*controller) bool) {
	a.mu.Lock()
	var gone []string
	for id, c := range a.entities {
		if _, ok := positions[id]; !ok && owned(c) {
			gone = append(gone, id)
		}
	}
	a.mu.Unlock()

	for _, id := range gone {
		a.Remove(id)
	}
	for id, p := range positions {
		a.UpdateFrom(source, id, p)
	}
}

func (a *Animator) State(id string) (State, bool) {
	a.mu.Lock()
	c, ok := a.entities[id]
	a.mu.Unlock()
	if !ok {
		return State{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Position: c.rendered, From: c.from, To: c.to, Animating: c.animating}, true
}

// Positions returns the rendered position of every entity.
func (a *Animator) Positions() map[string]orb.Point {
	a.mu.Lock()
	cs := make([]*controller, 0, len(a.entities))
	for _, c := range a.entities {
		cs = append(cs, c)
	}
	a.mu.Unlock()

	out := make(map[string]orb.Point, len(cs))
	for _, c := range cs {
		c.mu.Lock()
		out[c.id] = c.rendered
		c.mu.Unlock()
	}
	return out
}

// Close stops every frame loop and waits for them. Markers stay where they
// are; later updates are ignored.
func (a *Animator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	cs := make([]*controller, 0, len(a.entities))
	for _, c := range a.entities {
		cs = append(cs, c)
	}
	a.mu.Unlock()

	for _, c := range cs {
		c.mu.Lock()
		a.cancel(c)
		c.mu.Unlock()
	}
	a.wg.Wait()
}

// trackedChanged must be called with a.mu held.
func (a *Animator) trackedChanged() {
	if a.metrics != nil {
		a.metrics.TrackedEntities.Set(float64(len(a.entities)))
	}
}
