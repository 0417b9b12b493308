package publisher

import (
	"go.uber.org/zap"

	"route-tracker/internal/render"
	"route-tracker/internal/tracking"
)

// NATSSurface draws one session, and the shared markers, onto NATS
// subjects. Publish errors are logged and dropped.
type NATSSurface struct {
	render.Emitter
	pub *NATSPublisher
}

func NewNATSSurface(pub *NATSPublisher, session string) *NATSSurface {
	s := &NATSSurface{pub: pub}
	s.Emitter = render.Emitter{Session: session, Emit: s.emit}
	return s
}

func (s *NATSSurface) emit(m render.Message) {
	if err := s.pub.PublishMessage(m); err != nil {
		s.pub.logger.Warn("publish map update", zap.String("type", m.Type), zap.String("layer", m.Layer), zap.Error(err))
	}
}

// Alert publishes an off-route alert. It matches the session callback.
func (s *NATSSurface) Alert(a tracking.Alert) {
	if err := s.pub.PublishAlert(a); err != nil {
		s.pub.logger.Warn("publish alert", zap.String("session", a.Session), zap.Error(err))
	}
}
