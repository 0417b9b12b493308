package location

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const nmeaStream = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n" +
	"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W*61\r\n" +
	"garbage line\r\n" +
	"$GPRMC,123520,V,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W*7C\r\n" +
	"$GPRMC,123521,A,4807.100,N,01131.100,E,010.0,090.0,230324,003.1,W*00\r\n" +
	"$GPRMC,123521,A,4807.100,N,01131.100,E,010.0,090.0,230324,003.1,W*65\r\n"

func TestNMEAProviderWatch(t *testing.T) {
	p := NewNMEAProvider(strings.NewReader(nmeaStream), zap.NewNop())

	var fixes []Fix
	var errs []error
	_, err := p.WatchPosition(context.Background(), Options{HighAccuracy: true},
		func(f Fix) { fixes = append(fixes, f) },
		func(err error) { errs = append(errs, err) })
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))

	// void and bad-checksum sentences are skipped
	require.Len(t, fixes, 2)
	assert.InDelta(t, 48.1173, fixes[0].Point.Lat(), 1e-4)
	assert.InDelta(t, 11.51667, fixes[0].Point.Lon(), 1e-4)
	assert.InDelta(t, 22.4*knotsToMps, fixes[0].Speed, 1e-9)
	assert.InDelta(t, 84.4, fixes[0].Course, 1e-9)
	assert.InDelta(t, 0.9*uereMeters, fixes[0].Accuracy, 1e-9)
	assert.Equal(t, time.Date(2024, time.March, 23, 12, 35, 19, 0, time.UTC), fixes[0].Time)
	assert.Equal(t, time.Date(2024, time.March, 23, 12, 35, 21, 0, time.UTC), fixes[1].Time)

	// end of stream is reported once to the watch
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrPositionUnavailable))
}

func TestNMEAProviderClearWatch(t *testing.T) {
	p := NewNMEAProvider(strings.NewReader(nmeaStream), zap.NewNop())

	calls := 0
	id, err := p.WatchPosition(context.Background(), Options{}, func(Fix) { calls++ }, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Watching())

	p.ClearWatch(id)
	p.ClearWatch(id)
	p.ClearWatch(WatchID(42))
	assert.Zero(t, p.Watching())

	require.NoError(t, p.Run(context.Background()))
	assert.Zero(t, calls)
}

func TestNMEAProviderAfterEndOfStream(t *testing.T) {
	p := NewNMEAProvider(strings.NewReader(""), zap.NewNop())
	require.NoError(t, p.Run(context.Background()))

	_, err := p.CurrentPosition(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrPositionUnavailable)

	_, err = p.WatchPosition(context.Background(), Options{}, func(Fix) {}, nil)
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}
