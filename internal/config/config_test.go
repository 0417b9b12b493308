package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "DATABASE_URL", "PG_DSN", "PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE", "PGSSLMODE",
		"CITY", "CITY_NAME", "ROUTE_GEOJSON", "ROUTE_SHAPE_ID", "ROUTE_ID",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "VEHICLE_SUBJECT", "LOG_NATS_SUBJECTS",
		"GPS_SOURCE", "GPS_SERIAL_PORT", "GPS_BAUD_RATE", "MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_GPS_TOPIC",
		"DEVIATION_THRESHOLD_M", "ALERT_MODE", "TRAIL_MAX_POINTS", "CAMERA_ZOOM", "CAMERA_EASE_MS",
		"POSITION_TIMEOUT_MS", "MARKER_DURATION_MS", "MARKER_FRAME_MS",
		"GTFSRT_VEHICLES_URL", "GTFSRT_POLL_SEC", "KAFKA_BROKERS", "KAFKA_ALERT_TOPIC",
		"HTTP_ADDR", "METRICS_ADDR", "CONFIG_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.Tracking.Threshold)
	assert.Equal(t, "every", cfg.Tracking.AlertMode)
	assert.Equal(t, 0, cfg.Tracking.TrailMaxPoints)
	assert.Equal(t, 15.0, cfg.Tracking.CameraZoom)
	assert.Equal(t, time.Second, cfg.Tracking.CameraEase)
	assert.Equal(t, time.Second, cfg.Marker.Duration)
	assert.Equal(t, "tracker", cfg.NATSSubjectPrefix)
	assert.Equal(t, "serial", cfg.GPS.Source)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("GPS_SOURCE", "mqtt")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("DEVIATION_THRESHOLD_M", "35.5")
	t.Setenv("ALERT_MODE", "enter")
	t.Setenv("TRAIL_MAX_POINTS", "500")
	t.Setenv("CAMERA_EASE_MS", "250")
	t.Setenv("MARKER_DURATION_MS", "800")
	t.Setenv("GTFSRT_POLL_SEC", "30")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LOG_NATS_SUBJECTS", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "tcp://broker:1883", cfg.GPS.MQTTBroker)
	assert.Equal(t, 35.5, cfg.Tracking.Threshold)
	assert.Equal(t, "enter", cfg.Tracking.AlertMode)
	assert.Equal(t, 500, cfg.Tracking.TrailMaxPoints)
	assert.Equal(t, 250*time.Millisecond, cfg.Tracking.CameraEase)
	assert.Equal(t, 800*time.Millisecond, cfg.Marker.Duration)
	assert.Equal(t, 30*time.Second, cfg.GTFSRTPoll)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.LogNATSSubjects)
}

func TestLoadBuildsDSNFromPGEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CITY", "turin")
	t.Setenv("PGUSER", "gtfs")
	t.Setenv("PGPASSWORD", "p@ss")
	t.Setenv("PGHOST", "db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://gtfs:p%40ss@db:5432/postgres?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "turin", cfg.City)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tracker.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_env: staging
route_geojson: routes/line1.geojson
tracking:
  deviation_threshold_m: 25
  camera_ease: 1500ms
marker:
  duration: 2s
gtfsrt_vehicles_url: https://example.org/vehicles.pb
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DEVIATION_THRESHOLD_M", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.AppEnv)
	assert.Equal(t, "routes/line1.geojson", cfg.RouteGeoJSON)
	assert.Equal(t, 30.0, cfg.Tracking.Threshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.Tracking.CameraEase)
	assert.Equal(t, 2*time.Second, cfg.Marker.Duration)
	assert.Equal(t, 15.0, cfg.Tracking.CameraZoom)
	assert.Equal(t, "https://example.org/vehicles.pb", cfg.GTFSRTVehiclesURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad alert mode":      {"ALERT_MODE": "sometimes"},
		"bad threshold":       {"DEVIATION_THRESHOLD_M": "far"},
		"negative threshold":  {"DEVIATION_THRESHOLD_M": "-1"},
		"bad trail cap":       {"TRAIL_MAX_POINTS": "-3"},
		"mqtt without broker": {"GPS_SOURCE": "mqtt"},
		"unknown gps source":  {"GPS_SOURCE": "bluetooth"},
		"shape without db":    {"ROUTE_SHAPE_ID": "s1"},
		"bad feed url":        {"GTFSRT_VEHICLES_URL": "not a url"},
		"bad broker":          {"KAFKA_BROKERS": "kafka"},
		"bad baud":            {"GPS_BAUD_RATE": "fast"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidationErrorsAreRecognised(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALERT_MODE", "sometimes")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	clearEnv(t)
	t.Setenv("TRAIL_MAX_POINTS", "x")
	_, err = Load()
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yml"))
	_, err := Load()
	assert.Error(t, err)
}
