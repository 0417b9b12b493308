package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"route-tracker/internal/render"
	"route-tracker/internal/tracking"
)

const DefaultSubjectPrefix = "tracker"

type NATSPublisher struct {
	nc          *nats.Conn
	conn        natsConn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	logger      *zap.Logger
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *zap.Logger) (*NATSPublisher, error) {
	logger = logger.Named("nats")
	nc, err := nats.Connect(url,
		nats.Name("route-tracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(conn natsConn, prefix string, logSubjects bool, m PublisherMetrics, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: conn, prefix: subjectToken(prefix), logSubjects: logSubjects, metrics: m, logger: logger}
}

// Conn is the underlying connection, nil for publishers built in tests.
func (p *NATSPublisher) Conn() *nats.Conn { return p.nc }

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.logger.Warn("nats drain", zap.Error(err))
		}
		p.nc.Close()
	}
}

// PositionMessage is the vehicle position wire format shared with the feed.
type PositionMessage struct {
	TripID    string    `json:"tripId"`
	RouteID   string    `json:"routeId"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Bearing   float64   `json:"bearing"`
	Progress  float64   `json:"progress"`
	SpeedMps  float64   `json:"speedMps"`
}

func (p *NATSPublisher) PublishPosition(routeID, tripID string, msg PositionMessage) error {
	return p.publishJSON(PositionSubject(routeID, tripID), msg)
}

func (p *NATSPublisher) PublishLayer(session, layer string, payload any) error {
	return p.publishJSON(p.LayerSubject(session, layer), payload)
}

func (p *NATSPublisher) PublishCamera(session string, cam render.Camera) error {
	return p.publishJSON(p.LayerSubject(session, "camera"), cam)
}

func (p *NATSPublisher) PublishAlert(a tracking.Alert) error {
	return p.publishJSON(p.AlertSubject(a.Session), a)
}

func (p *NATSPublisher) PublishMarker(entity string, pt orb.Point) error {
	return p.publishJSON(p.MarkerSubject(entity), render.Message{Type: render.TypeMarker, ID: entity, Data: pt})
}

func (p *NATSPublisher) PublishMarkerRemoved(entity string) error {
	return p.publishJSON(p.MarkerSubject(entity), render.Message{Type: render.TypeMarkerRemove, ID: entity})
}

// PublishMessage routes a render message to its subject.
func (p *NATSPublisher) PublishMessage(m render.Message) error {
	switch m.Type {
	case render.TypeLayer:
		return p.PublishLayer(m.Session, m.Layer, m.Data)
	case render.TypeCamera:
		return p.publishJSON(p.LayerSubject(m.Session, "camera"), m.Data)
	case render.TypeAlert:
		return p.publishJSON(p.AlertSubject(m.Session), m.Data)
	case render.TypeMarker, render.TypeMarkerRemove:
		return p.publishJSON(p.MarkerSubject(m.ID), m)
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
}

func (p *NATSPublisher) LayerSubject(session, layer string) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(session), subjectToken(layer))
}

func (p *NATSPublisher) AlertSubject(session string) string {
	return p.LayerSubject(session, "alert")
}

func (p *NATSPublisher) MarkerSubject(entity string) string {
	return fmt.Sprintf("%s.markers.%s", p.prefix, subjectToken(entity))
}

func PositionSubject(routeID, tripID string) string {
	return fmt.Sprintf("%s.%s", subjectToken(routeID), subjectToken(tripID))
}

func (p *NATSPublisher) publishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", zap.String("subject", subject), zap.Int("bytes", len(b)))
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
