package render

import (
	"github.com/paulmach/orb"
)

// Message types carried to remote map clients.
const (
	TypeLayer        = "layer"
	TypeCamera       = "camera"
	TypeMarker       = "marker"
	TypeMarkerRemove = "marker-remove"
	TypeAlert        = "alert"
)

// Message is one update for a remote map client.
type Message struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Layer   string `json:"layer,omitempty"`
	ID      string `json:"id,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Emitter turns surface calls into Messages and hands them to Emit. It is
// how wire transports (NATS, WebSocket) become surfaces.
type Emitter struct {
	Session string
	Emit    func(Message)
}

func (e Emitter) layer(name string, data any) {
	e.Emit(Message{Type: TypeLayer, Session: e.Session, Layer: name, Data: data})
}

func (e Emitter) ShowRoute(route orb.LineString) {
	layers := RouteLayers(route)
	for _, name := range []string{LayerRoute, LayerRouteStart, LayerRouteEnd} {
		if data, ok := layers[name]; ok {
			e.layer(name, data)
		}
	}
}

func (e Emitter) ShowPosition(p orb.Point) { e.layer(LayerUser, UserCollection(p)) }

func (e Emitter) ShowTrail(trail orb.LineString) { e.layer(LayerTrail, LineFeature(trail)) }

func (e Emitter) EaseTo(cam Camera) {
	e.Emit(Message{Type: TypeCamera, Session: e.Session, Data: cam})
}

func (e Emitter) MoveMarker(id string, p orb.Point) {
	e.Emit(Message{Type: TypeMarker, ID: id, Data: p})
}

func (e Emitter) RemoveMarker(id string) {
	e.Emit(Message{Type: TypeMarkerRemove, ID: id})
}
