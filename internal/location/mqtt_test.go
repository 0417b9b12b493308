package location

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTProviderPayload(t *testing.T) {
	p := NewMQTTProvider("tcp://localhost:1883", "test", "inertial/gps", zap.NewNop())

	var fixes []Fix
	_, err := p.WatchPosition(context.Background(), Options{}, func(f Fix) { fixes = append(fixes, f) }, nil)
	require.NoError(t, err)

	p.handlePayload([]byte(`{"time":"12:34:56","date":"2025-12-06","lat":-26.2041,"lon":28.0473,"speed_knots":10,"course_deg":45,"validity":"A"}`))
	p.handlePayload([]byte(`{"lat":1,"lon":1,"validity":"V"}`))
	p.handlePayload([]byte(`not json`))
	p.handlePayload([]byte(`{"lat":-26.3,"lon":28.1,"accuracy_m":4}`))

	require.Len(t, fixes, 2)
	assert.Equal(t, -26.2041, fixes[0].Point.Lat())
	assert.Equal(t, 28.0473, fixes[0].Point.Lon())
	assert.InDelta(t, 10*knotsToMps, fixes[0].Speed, 1e-9)
	assert.Equal(t, 45.0, fixes[0].Course)
	assert.Equal(t, time.Date(2025, time.December, 6, 12, 34, 56, 0, time.UTC), fixes[0].Time)
	assert.Equal(t, 4.0, fixes[1].Accuracy)
	assert.False(t, fixes[1].Time.IsZero())
}

func TestMQTTProviderClose(t *testing.T) {
	p := NewMQTTProvider("tcp://localhost:1883", "test", "inertial/gps", zap.NewNop())
	p.Close()
	_, err := p.CurrentPosition(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}
