// Package location provides device position sources for a tracking session:
// a one-shot fix, a continuous watch, and a way to clear that watch.
package location

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

var (
	ErrPermissionDenied    = errors.New("location: permission denied")
	ErrPositionUnavailable = errors.New("location: position unavailable")
	ErrTimeout             = errors.New("location: timeout")
)

// Fix is one position report from the device.
type Fix struct {
	Point    orb.Point // [lon, lat]
	Accuracy float64   // meters, 0 when unknown
	Speed    float64   // meters per second
	Course   float64   // degrees
	Time     time.Time
}

// Options mirror what a caller may ask of the platform. HighAccuracy is a
// request; sources that cannot honour it ignore it.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
}

type WatchID int64

// Provider is a position source.
type Provider interface {
	// CurrentPosition blocks until the next fix, the timeout, or ctx.
	CurrentPosition(ctx context.Context, opts Options) (Fix, error)
	// WatchPosition registers handlers invoked for every subsequent fix, in
	// the order the source produces them.
	WatchPosition(ctx context.Context, opts Options, onFix func(Fix), onErr func(error)) (WatchID, error)
	// ClearWatch releases a watch. Unknown ids are ignored.
	ClearWatch(id WatchID)
}

type watch struct {
	onFix func(Fix)
	onErr func(error)
}

// dispatcher fans fixes out to watches and one-shot waiters. Sources embed
// it and call deliver/fail from their single reader goroutine.
type dispatcher struct {
	mu      sync.Mutex
	nextID  WatchID
	watches map[WatchID]watch
	waiters []chan Fix
	err     error // terminal source error, if any
}

func (d *dispatcher) WatchPosition(ctx context.Context, _ Options, onFix func(Fix), onErr func(error)) (WatchID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	if d.watches == nil {
		d.watches = make(map[WatchID]watch)
	}
	d.nextID++
	id := d.nextID
	d.watches[id] = watch{onFix: onFix, onErr: onErr}
	return id, nil
}

func (d *dispatcher) ClearWatch(id WatchID) {
	d.mu.Lock()
	delete(d.watches, id)
	d.mu.Unlock()
}

func (d *dispatcher) CurrentPosition(ctx context.Context, opts Options) (Fix, error) {
	ch := make(chan Fix, 1)
	d.mu.Lock()
	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		return Fix{}, err
	}
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case f, ok := <-ch:
		if !ok {
			return Fix{}, d.terminalErr()
		}
		return f, nil
	case <-timeout:
		d.dropWaiter(ch)
		return Fix{}, ErrTimeout
	case <-ctx.Done():
		d.dropWaiter(ch)
		return Fix{}, ctx.Err()
	}
}

// Watching reports the number of active watches.
func (d *dispatcher) Watching() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watches)
}

func (d *dispatcher) dropWaiter(ch chan Fix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.waiters {
		if w == ch {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}

func (d *dispatcher) terminalErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	return ErrPositionUnavailable
}

// snapshot returns the watches in registration order.
func (d *dispatcher) snapshot() []watch {
	ids := make([]WatchID, 0, len(d.watches))
	for id := range d.watches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]watch, len(ids))
	for i, id := range ids {
		out[i] = d.watches[id]
	}
	return out
}

func (d *dispatcher) deliver(f Fix) {
	d.mu.Lock()
	ws := d.snapshot()
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	for _, ch := range waiters {
		ch <- f
	}
	for _, w := range ws {
		if w.onFix != nil {
			w.onFix(f)
		}
	}
}

// fail reports err to every watch. A terminal error also ends pending and
// future one-shot requests.
func (d *dispatcher) fail(err error, terminal bool) {
	d.mu.Lock()
	ws := d.snapshot()
	var waiters []chan Fix
	if terminal {
		d.err = err
		waiters = d.waiters
		d.waiters = nil
	}
	d.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, w := range ws {
		if w.onErr != nil {
			w.onErr(err)
		}
	}
}
