package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Collector struct {
	reg *prometheus.Registry

	Fixes          prometheus.Counter
	LocationErrors prometheus.Counter
	SnapDistance   prometheus.Histogram
	OffRouteAlerts prometheus.Counter
	TrailPoints    prometheus.Gauge
	ActiveSessions prometheus.Gauge

	ActiveAnimations prometheus.Gauge
	MarkerFrames     prometheus.Counter
	TrackedEntities  prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	FeedUpdates *prometheus.CounterVec // source label: nats|gtfsrt

	DeviationThreshold prometheus.Gauge // meters
	MarkerDuration     prometheus.Gauge // seconds
}

func NewCollector(threshold float64, markerDuration time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Fixes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_position_fixes_total",
			Help: "Total position fixes processed by tracking sessions.",
		}),
		LocationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_location_errors_total",
			Help: "Total errors reported by position providers.",
		}),
		SnapDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_snap_distance_meters",
			Help:    "Distance between raw fixes and their snapped route position.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		OffRouteAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_off_route_alerts_total",
			Help: "Total off-route notifications raised.",
		}),
		TrailPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_trail_points",
			Help: "Points in the trail of the most recently updated session.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_sessions",
			Help: "Number of tracking sessions holding a position watch.",
		}),
		ActiveAnimations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_marker_animations_active",
			Help: "Number of markers currently transitioning.",
		}),
		MarkerFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_marker_frames_total",
			Help: "Total interpolated marker frames emitted.",
		}),
		TrackedEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_marker_entities",
			Help: "Number of markers on the map.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		FeedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_feed_updates_total",
			Help: "Vehicle position updates received, by source.",
		}, []string{"source"}),
		DeviationThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_deviation_threshold_meters",
			Help: "Configured off-route threshold in meters.",
		}),
		MarkerDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_marker_duration_seconds",
			Help: "Configured marker transition duration in seconds.",
		}),
	}

	reg.MustRegister(
		c.Fixes, c.LocationErrors, c.SnapDistance, c.OffRouteAlerts, c.TrailPoints, c.ActiveSessions,
		c.ActiveAnimations, c.MarkerFrames, c.TrackedEntities,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.FeedUpdates, c.DeviationThreshold, c.MarkerDuration,
	)

	c.DeviationThreshold.Set(threshold)
	c.MarkerDuration.Set(markerDuration.Seconds())

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return srv
}
