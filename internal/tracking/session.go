package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"route-tracker/internal/location"
	"route-tracker/internal/metrics"
	"route-tracker/internal/render"
	"route-tracker/internal/route"
)

const (
	DefaultZoom = 15.0
	DefaultEase = time.Second
)

var ErrSessionStarted = errors.New("tracking: session already started")

type SessionConfig struct {
	ID             string
	Route          *route.Canonical // nil tracks without a route
	Threshold      float64
	AlertMode      AlertMode
	TrailMaxPoints int
	CameraZoom     float64
	CameraEase     time.Duration
	Timeout        time.Duration // one-shot fix timeout, 0 waits for ctx
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.CameraZoom <= 0 {
		c.CameraZoom = DefaultZoom
	}
	if c.CameraEase <= 0 {
		c.CameraEase = DefaultEase
	}
	if c.TrailMaxPoints < 0 {
		c.TrailMaxPoints = 0
	}
	return c
}

// Session tracks one device. Fixes are handled one at a time, so the trail
// is always in delivery order.
type Session struct {
	cfg        SessionConfig
	provider   location.Provider
	surface    render.Surface
	onOffRoute func(Alert)
	logger     *zap.Logger
	metrics    *metrics.Collector
	now        func() time.Time
	observe    func(location.Fix, SnapResult)

	mu       sync.Mutex
	detector *Detector
	trail    *Trail
	last     *SnapResult
	first    *location.Fix // one-shot fix processed ahead of the watch
	running  bool
}

// NewSession wires a session. surface and onOffRoute may be nil.
func NewSession(cfg SessionConfig, provider location.Provider, surface render.Surface, onOffRoute func(Alert), logger *zap.Logger, m *metrics.Collector) *Session {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if surface == nil {
		surface = render.Fanout(nil)
	}
	return &Session{
		cfg:        cfg,
		provider:   provider,
		surface:    surface,
		onOffRoute: onOffRoute,
		logger:     logger.Named("session").With(zap.String("session", cfg.ID)),
		metrics:    m,
		now:        time.Now,
		detector:   NewDetector(cfg.Threshold, cfg.AlertMode),
		trail:      NewTrail(cfg.TrailMaxPoints),
	}
}

func (s *Session) ID() string { return s.cfg.ID }

// Observe registers fn to run after every processed fix. Call it before
// Start.
func (s *Session) Observe(fn func(location.Fix, SnapResult)) {
	s.mu.Lock()
	s.observe = fn
	s.mu.Unlock()
}

func (s *Session) Route() *route.Canonical { return s.cfg.Route }

// Start draws the route, asks the provider for one immediate fix and then
// watches it. The returned stop clears the watch and discards the trail; it
// may be called more than once. Provider failures are logged and counted,
// they do not fail Start.
func (s *Session) Start(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrSessionStarted
	}
	s.running = true
	s.trail = NewTrail(s.cfg.TrailMaxPoints)
	s.detector = NewDetector(s.cfg.Threshold, s.cfg.AlertMode)
	s.last = nil
	s.first = nil
	if s.cfg.Route != nil && s.cfg.Route.Len() > 0 {
		s.surface.ShowRoute(s.cfg.Route.LineString())
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}

	ctx, cancel := context.WithCancel(ctx)
	opts := location.Options{HighAccuracy: true, Timeout: s.cfg.Timeout}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fix, err := s.provider.CurrentPosition(ctx, opts)
		if err != nil {
			if ctx.Err() == nil {
				s.providerError(err)
			}
			return
		}
		s.handleFirst(ctx, fix)
	}()

	id, err := s.provider.WatchPosition(ctx, opts,
		func(f location.Fix) { s.handleWatched(ctx, f) },
		func(err error) {
			if ctx.Err() == nil {
				s.providerError(err)
			}
		})
	watching := err == nil
	if err != nil {
		s.providerError(err)
	}
	s.logger.Info("tracking started", zap.Bool("route", s.cfg.Route != nil), zap.Bool("watching", watching))

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if watching {
				s.provider.ClearWatch(id)
			}
			wg.Wait()
			s.mu.Lock()
			s.running = false
			s.trail = NewTrail(s.cfg.TrailMaxPoints)
			s.last = nil
			s.first = nil
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.ActiveSessions.Dec()
			}
			s.logger.Info("tracking stopped")
		})
	}
	return stop, nil
}

// HandleFix runs one fix through the pipeline. It is what the provider
// callbacks use and may be called directly to replay recorded fixes.
func (s *Session) HandleFix(f location.Fix) SnapResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process(f)
}

// handleFirst processes the one-shot fix unless a watched fix got there
// first; a late one-shot fix would break trail order.
func (s *Session) handleFirst(ctx context.Context, f location.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || s.last != nil {
		return
	}
	s.process(f)
	s.first = &f
}

// handleWatched processes a watched fix. The watch also sees the fix that
// answered the one-shot request; it is dropped when already processed.
func (s *Session) handleWatched(ctx context.Context, f location.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	first := s.first
	s.first = nil
	if first != nil && *first == f {
		return
	}
	s.process(f)
}

// process must be called with s.mu held.
func (s *Session) process(f location.Fix) SnapResult {
	res := Snap(s.cfg.Route, f.Point)
	if s.metrics != nil {
		s.metrics.Fixes.Inc()
		if res.HasDistance {
			s.metrics.SnapDistance.Observe(res.Distance)
		}
	}

	if s.detector.Check(res) {
		alert := Alert{
			Session:   s.cfg.ID,
			Raw:       f.Point,
			Snapped:   res.Point,
			Distance:  res.Distance,
			Threshold: s.detector.Threshold,
			At:        s.fixTime(f),
		}
		s.logger.Warn("off route",
			zap.Float64("distance_m", res.Distance),
			zap.Float64("threshold_m", s.detector.Threshold),
			zap.Float64("lat", f.Point.Lat()),
			zap.Float64("lon", f.Point.Lon()))
		if s.metrics != nil {
			s.metrics.OffRouteAlerts.Inc()
		}
		if s.onOffRoute != nil {
			s.onOffRoute(alert)
		}
	}

	if res.HasDistance {
		s.trail.Append(res.Point)
		if s.metrics != nil {
			s.metrics.TrailPoints.Set(float64(s.trail.Len()))
		}
	}

	s.surface.ShowPosition(res.Point)
	if res.HasDistance {
		s.surface.ShowTrail(s.trail.LineString())
	}
	s.surface.EaseTo(render.NewCamera(res.Point, s.cfg.CameraZoom, s.cfg.CameraEase))

	s.last = &res
	if s.observe != nil {
		s.observe(f, res)
	}
	return res
}

func (s *Session) providerError(err error) {
	if s.metrics != nil {
		s.metrics.LocationErrors.Inc()
	}
	s.logger.Error("location provider error", zap.Error(err))
}

func (s *Session) fixTime(f location.Fix) time.Time {
	if f.Time.IsZero() {
		return s.now()
	}
	return f.Time
}

// Trail returns a copy of the trail so far.
func (s *Session) Trail() []orb.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trail.Points()
}

// Last returns the most recent snap result.
func (s *Session) Last() (SnapResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return SnapResult{}, false
	}
	return *s.last, true
}
