package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"route-tracker/internal/metrics"
	"route-tracker/internal/publisher"
)

// NATSFeed follows vehicle position messages on NATS.
type NATSFeed struct {
	nc      *nats.Conn
	subject string
	target  Target
	logger  *zap.Logger
	metrics *metrics.Collector
	sub     *nats.Subscription
	ignore  map[string]struct{}
}

func NewNATSFeed(nc *nats.Conn, subject string, target Target, logger *zap.Logger, m *metrics.Collector) *NATSFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSFeed{nc: nc, subject: subject, target: target, logger: logger.Named("feed.nats"), metrics: m}
}

// Ignore drops positions of the given trips, such as the tracker's own
// session, which is published on the same subject space. Call it before Start.
func (f *NATSFeed) Ignore(ids ...string) {
	if f.ignore == nil {
		f.ignore = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		f.ignore[id] = struct{}{}
	}
}

func (f *NATSFeed) Start() error {
	sub, err := f.nc.Subscribe(f.subject, f.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.subject, err)
	}
	f.sub = sub
	f.logger.Info("following vehicle positions", zap.String("subject", f.subject))
	return nil
}

func (f *NATSFeed) Stop() {
	if f.sub != nil {
		if err := f.sub.Unsubscribe(); err != nil {
			f.logger.Warn("unsubscribe", zap.Error(err))
		}
		f.sub = nil
	}
}

func (f *NATSFeed) handle(msg *nats.Msg) {
	var pm publisher.PositionMessage
	if err := json.Unmarshal(msg.Data, &pm); err != nil {
		f.logger.Debug("skipping malformed position", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	id := pm.TripID
	if id == "" {
		// subjects are <route>.<trip>
		if i := strings.LastIndexByte(msg.Subject, '.'); i >= 0 {
			id = msg.Subject[i+1:]
		}
	}
	if id == "" {
		return
	}
	if _, skip := f.ignore[id]; skip {
		return
	}
	if f.metrics != nil {
		f.metrics.FeedUpdates.WithLabelValues(SourceNATS).Inc()
	}
	f.target.UpdateFrom(SourceNATS, id, orb.Point{pm.Lon, pm.Lat})
}
