// Package web serves the live map state over HTTP and WebSocket.
package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"route-tracker/internal/location"
	"route-tracker/internal/render"
	"route-tracker/internal/tracking"
)

// FixHandler runs a fix through a tracking session.
type FixHandler interface {
	ID() string
	HandleFix(f location.Fix) tracking.SnapResult
}

// MarkerSource lists the rendered markers.
type MarkerSource interface {
	Positions() map[string]orb.Point
}

type Server struct {
	session FixHandler
	state   *render.Recorder
	markers MarkerSource
	hub     *Hub
	logger  *zap.Logger
}

func NewServer(session FixHandler, state *render.Recorder, markers MarkerSource, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{session: session, state: state, markers: markers, hub: hub, logger: logger.Named("http")}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.Health)
	api := r.Group("/api")
	{
		api.GET("/session", s.GetSession)
		api.POST("/session/fix", s.PostFix)
		api.GET("/markers", s.GetMarkers)
	}
	if s.hub != nil {
		r.GET("/ws", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })
	}
	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetSession returns the last drawn layers of the tracking session.
func (s *Server) GetSession(c *gin.Context) {
	snap := s.state.Snapshot()
	layers := render.RouteLayers(snap.Route)
	layers[render.LayerTrail] = render.LineFeature(snap.Trail)
	if snap.Position != nil {
		layers[render.LayerUser] = render.UserCollection(*snap.Position)
	}
	resp := gin.H{"layers": layers}
	if s.session != nil {
		resp["session"] = s.session.ID()
	}
	if snap.Camera != nil {
		resp["camera"] = snap.Camera
	}
	c.JSON(http.StatusOK, resp)
}

type fixRequest struct {
	Lat      *float64   `json:"lat" binding:"required,gte=-90,lte=90"`
	Lon      *float64   `json:"lon" binding:"required,gte=-180,lte=180"`
	Accuracy float64    `json:"accuracy" binding:"gte=0"`
	Time     *time.Time `json:"time"`
}

// PostFix feeds one fix into the session, for replays and manual testing.
func (s *Server) PostFix(c *gin.Context) {
	if s.session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no tracking session"})
		return
	}
	var req fixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fix := location.Fix{Point: orb.Point{*req.Lon, *req.Lat}, Accuracy: req.Accuracy}
	if req.Time != nil {
		fix.Time = *req.Time
	}
	res := s.session.HandleFix(fix)

	out := gin.H{"point": res.Point, "snapped": res.HasDistance}
	if res.HasDistance {
		out["distance_m"] = res.Distance
		out["along_m"] = res.Along
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) GetMarkers(c *gin.Context) {
	var positions map[string]orb.Point
	if s.markers != nil {
		positions = s.markers.Positions()
	} else {
		positions = s.state.Snapshot().Markers
	}
	c.JSON(http.StatusOK, gin.H{"markers": positions})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
