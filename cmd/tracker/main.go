package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"route-tracker/internal/config"
	"route-tracker/internal/db"
	"route-tracker/internal/feed"
	"route-tracker/internal/location"
	"route-tracker/internal/logging"
	"route-tracker/internal/marker"
	"route-tracker/internal/metrics"
	"route-tracker/internal/publisher"
	"route-tracker/internal/render"
	"route-tracker/internal/route"
	"route-tracker/internal/tracking"
	"route-tracker/internal/web"
)

func main() {
	// Load configuration from .env, CONFIG_FILE and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.NewNamed(cfg.AppEnv, "route-tracker")
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.Tracking.Threshold, cfg.Marker.Duration)
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(srv)
	}

	rt, err := loadRoute(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("load route", zap.Error(err))
	}

	sessionID := uuid.NewString()
	recorder := render.NewRecorder()
	hub := web.NewHub(sessionID, logger)
	defer hub.Close()

	surfaces := render.Fanout{recorder, hub}
	alerts := []func(tracking.Alert){hub.Alert}

	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			logger.Fatal("nats error", zap.Error(err))
		}
		defer pub.Close()
		ns := publisher.NewNATSSurface(pub, sessionID)
		surfaces = append(surfaces, ns)
		alerts = append(alerts, ns.Alert)
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink := publisher.NewKafkaAlertSink(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("kafka close", zap.Error(err))
			}
		}()
		alerts = append(alerts, sink.Alert)
	}

	provider, closeProvider, err := openProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("location provider unavailable", zap.String("source", cfg.GPS.Source), zap.Error(err))
		mcol.LocationErrors.Inc()
	}
	defer closeProvider()

	mode, err := tracking.ParseAlertMode(cfg.Tracking.AlertMode)
	if err != nil {
		logger.Fatal("alert mode", zap.Error(err))
	}
	session := tracking.NewSession(tracking.SessionConfig{
		ID:             sessionID,
		Route:          rt,
		Threshold:      cfg.Tracking.Threshold,
		AlertMode:      mode,
		TrailMaxPoints: cfg.Tracking.TrailMaxPoints,
		CameraZoom:     cfg.Tracking.CameraZoom,
		CameraEase:     cfg.Tracking.CameraEase,
		Timeout:        cfg.Tracking.PositionTimeout,
	}, provider, surfaces, func(a tracking.Alert) {
		for _, fn := range alerts {
			fn(a)
		}
	}, logger, mcol)

	if pub != nil {
		routeID := firstNonEmpty(cfg.RouteID, cfg.RouteShapeID, "user")
		session.Observe(func(f location.Fix, res tracking.SnapResult) {
			msg := publisher.PositionMessage{
				TripID:    sessionID,
				RouteID:   routeID,
				Timestamp: f.Time,
				Lat:       res.Point.Lat(),
				Lon:       res.Point.Lon(),
				Bearing:   f.Course,
				Progress:  res.Progress(rt),
				SpeedMps:  f.Speed,
			}
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}
			if err := pub.PublishPosition(routeID, sessionID, msg); err != nil {
				logger.Warn("publish position", zap.Error(err))
			}
		})
	}

	if provider != nil {
		stop, err := session.Start(ctx)
		if err != nil {
			logger.Fatal("start tracking", zap.Error(err))
		}
		defer stop()
	} else if rt != nil {
		// Fixes arrive over HTTP only
		surfaces.ShowRoute(rt.LineString())
	}

	// Bus markers
	markerSurfaces := render.Fanout{recorder, hub}
	if pub != nil {
		markerSurfaces = append(markerSurfaces, publisher.NewNATSSurface(pub, sessionID))
	}
	animator := marker.NewAnimator(markerSurfaces, marker.Options{
		Duration:      cfg.Marker.Duration,
		FrameInterval: cfg.Marker.FrameInterval,
	}, logger, mcol)
	defer animator.Close()

	if pub != nil && cfg.VehicleSubject != "" {
		nf := feed.NewNATSFeed(pub.Conn(), cfg.VehicleSubject, animator, logger, mcol)
		// our own positions go out on the same subject space
		nf.Ignore(sessionID)
		if err := nf.Start(); err != nil {
			logger.Error("vehicle feed", zap.Error(err))
		}
		defer nf.Stop()
	}
	if cfg.GTFSRTVehiclesURL != "" {
		poller := feed.NewGTFSRTPoller(cfg.GTFSRTVehiclesURL, cfg.GTFSRTPoll, animator, logger, mcol)
		go poller.Run(ctx)
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: web.NewServer(session, recorder, animator, hub, logger).Router(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()
	logger.Info("tracker running",
		zap.String("session", sessionID),
		zap.String("http", cfg.HTTPAddr),
		zap.Bool("route", rt != nil),
		zap.String("gps", cfg.GPS.Source))

	// Block until context cancelled
	<-ctx.Done()
	shutdown(srv)
	logger.Info("tracker stopped")
}

// loadRoute resolves the route to follow: a GeoJSON file, or a GTFS shape
// from the database. No route is not an error.
func loadRoute(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*route.Canonical, error) {
	var g route.Geometry
	switch {
	case cfg.RouteGeoJSON != "":
		data, err := os.ReadFile(cfg.RouteGeoJSON)
		if err != nil {
			return nil, err
		}
		if g, err = route.Parse(data); err != nil {
			return nil, err
		}
	case cfg.RouteShapeID != "" || cfg.RouteID != "":
		conn, dbName, err := db.OpenCity(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		if dbName != "" {
			logger.Info("using city database", zap.String("db", dbName), zap.String("city", cfg.City))
		}
		shapeID := cfg.RouteShapeID
		if shapeID == "" {
			if shapeID, err = db.ResolveShapeID(ctx, conn, cfg.RouteID); err != nil {
				return nil, err
			}
		}
		if g, err = db.FetchRouteGeometry(ctx, conn, shapeID); err != nil {
			return nil, err
		}
	default:
		logger.Info("no route configured, tracking raw positions")
		return nil, nil
	}
	rt, err := route.Normalize(g)
	if err != nil {
		logger.Warn("route ignored, tracking raw positions", zap.Error(err))
		return nil, nil
	}
	logger.Info("route loaded", zap.Int("points", rt.Len()), zap.Float64("length_m", rt.Length()))
	return rt, nil
}

// openProvider starts the configured GPS source. The returned close func is
// never nil.
func openProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (location.Provider, func(), error) {
	noop := func() {}
	switch cfg.GPS.Source {
	case "serial":
		p, err := location.OpenSerial(cfg.GPS.SerialPort, cfg.GPS.BaudRate, logger)
		if err != nil {
			return nil, noop, err
		}
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("gps reader stopped", zap.Error(err))
			}
		}()
		return p, noop, nil
	case "mqtt":
		clientID := firstNonEmpty(cfg.GPS.MQTTClientID, "route-tracker-"+uuid.NewString()[:8])
		p := location.NewMQTTProvider(cfg.GPS.MQTTBroker, clientID, cfg.GPS.MQTTTopic, logger)
		if err := p.Connect(); err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	default:
		return nil, noop, nil
	}
}

func shutdown(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
