package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"route-tracker/internal/gtfs"
	"route-tracker/internal/metrics"
)

const DefaultPollInterval = 15 * time.Second

// GTFSRTPoller polls a GTFS-Realtime VehiclePositions feed and syncs the
// markers with it on every successful fetch.
type GTFSRTPoller struct {
	url      string
	interval time.Duration
	client   *http.Client
	target   Target
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewGTFSRTPoller(url string, interval time.Duration, target Target, logger *zap.Logger, m *metrics.Collector) *GTFSRTPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GTFSRTPoller{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		target:   target,
		logger:   logger.Named("feed.gtfsrt"),
		metrics:  m,
	}
}

// Run polls until ctx is done. Failed polls are logged and the markers
// keep their last positions.
func (p *GTFSRTPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("vehicle positions poll failed", zap.String("url", p.url), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches the feed once and syncs the target.
func (p *GTFSRTPoller) Poll(ctx context.Context) error {
	fm, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	vehicles := VehiclePositions(fm)
	positions := make(map[string]orb.Point, len(vehicles))
	for _, v := range vehicles {
		positions[v.EntityID()] = orb.Point{v.Lon, v.Lat}
	}
	if p.metrics != nil {
		p.metrics.FeedUpdates.WithLabelValues(SourceGTFSRT).Add(float64(len(positions)))
	}
	p.target.SyncFrom(SourceGTFSRT, positions)
	p.logger.Debug("vehicle positions synced", zap.Int("vehicles", len(positions)))
	return nil
}

func (p *GTFSRTPoller) fetch(ctx context.Context) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", p.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, p.url)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.url, err)
	}
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return &fm, nil
}

// VehiclePositions extracts the positioned vehicles of a feed. Entities
// without a position or any id are skipped.
func VehiclePositions(fm *gtfsrtpb.FeedMessage) []gtfs.VehiclePosition {
	var out []gtfs.VehiclePosition
	for _, e := range fm.GetEntity() {
		vp := e.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}
		v := gtfs.VehiclePosition{
			VehicleID: vp.GetVehicle().GetId(),
			TripID:    vp.GetTrip().GetTripId(),
			RouteID:   vp.GetTrip().GetRouteId(),
			Lat:       float64(vp.GetPosition().GetLatitude()),
			Lon:       float64(vp.GetPosition().GetLongitude()),
			Bearing:   float64(vp.GetPosition().GetBearing()),
		}
		if ts := vp.GetTimestamp(); ts > 0 {
			v.Timestamp = time.Unix(int64(ts), 0).UTC()
		}
		if v.EntityID() == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
