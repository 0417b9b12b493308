//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"route-tracker/internal/render"
)

// startNATS runs a nats server container and returns its client URL.
func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start NATS container")
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("failed to terminate NATS container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "4222")
	require.NoError(t, err)
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestNATSSurfaceRoundTrip(t *testing.T) {
	url := startNATS(t)

	pub, err := NewNATSPublisher(url, "tracker", true, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 16)
	s, err := sub.ChanSubscribe("tracker.it.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	surface := NewNATSSurface(pub, "it")
	surface.ShowTrail(orb.LineString{{0, 0}, {0, 0.1}})
	require.NoError(t, pub.Conn().Flush())

	select {
	case m := <-msgs:
		require.Equal(t, "tracker.it."+render.LayerTrail, m.Subject)
		var f struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		}
		require.NoError(t, json.Unmarshal(m.Data, &f))
		require.Equal(t, "LineString", f.Geometry.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no trail message received")
	}
}
