package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GPSConfig struct {
	Source       string `yaml:"source" validate:"oneof=serial mqtt none"`
	SerialPort   string `yaml:"serial_port" validate:"required_if=Source serial"`
	BaudRate     uint   `yaml:"baud_rate" validate:"required_if=Source serial"`
	MQTTBroker   string `yaml:"mqtt_broker" validate:"required_if=Source mqtt"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTTopic    string `yaml:"mqtt_topic" validate:"required_if=Source mqtt"`
}

type TrackingConfig struct {
	Threshold       float64       `yaml:"deviation_threshold_m" validate:"gt=0"`
	AlertMode       string        `yaml:"alert_mode" validate:"oneof=every enter"`
	TrailMaxPoints  int           `yaml:"trail_max_points" validate:"gte=0"`
	CameraZoom      float64       `yaml:"camera_zoom" validate:"gt=0,lte=22"`
	CameraEase      time.Duration `yaml:"camera_ease" validate:"gte=0"`
	PositionTimeout time.Duration `yaml:"position_timeout" validate:"gte=0"`
}

type MarkerConfig struct {
	Duration      time.Duration `yaml:"duration" validate:"gt=0"`
	FrameInterval time.Duration `yaml:"frame_interval" validate:"gt=0"`
}

type Config struct {
	AppEnv string `yaml:"app_env" validate:"required"`

	DatabaseURL  string `yaml:"database_url" validate:"required_with=RouteShapeID RouteID"`
	City         string `yaml:"city"`
	RouteGeoJSON string `yaml:"route_geojson"`
	RouteShapeID string `yaml:"route_shape_id"`
	RouteID      string `yaml:"route_id"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix" validate:"required"`
	VehicleSubject    string `yaml:"vehicle_subject"`
	LogNATSSubjects   bool   `yaml:"log_nats_subjects"`

	GPS      GPSConfig      `yaml:"gps"`
	Tracking TrackingConfig `yaml:"tracking"`
	Marker   MarkerConfig   `yaml:"marker"`

	GTFSRTVehiclesURL string        `yaml:"gtfsrt_vehicles_url" validate:"omitempty,url"`
	GTFSRTPoll        time.Duration `yaml:"gtfsrt_poll" validate:"gte=0"`

	KafkaBrokers    []string `yaml:"kafka_brokers" validate:"dive,hostname_port"`
	KafkaAlertTopic string   `yaml:"kafka_alert_topic" validate:"required_with=KafkaBrokers"`

	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		AppEnv:            "production",
		NATSSubjectPrefix: "tracker",
		VehicleSubject:    "*.*",
		GPS: GPSConfig{
			Source:     "serial",
			SerialPort: "/dev/ttyUSB0",
			BaudRate:   9600,
			MQTTTopic:  "gps/fix",
		},
		Tracking: TrackingConfig{
			Threshold:       20,
			AlertMode:       "every",
			CameraZoom:      15,
			CameraEase:      time.Second,
			PositionTimeout: 10 * time.Second,
		},
		Marker: MarkerConfig{
			Duration:      time.Second,
			FrameInterval: 16 * time.Millisecond,
		},
		GTFSRTPoll:      15 * time.Second,
		KafkaAlertTopic: "tracker.alerts",
		HTTPAddr:        ":8080",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then the environment (.env included).
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.AppEnv, "APP_ENV")

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		cfg.DatabaseURL = dsn
	} else if dsn := dsnFromPGEnv(); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	if city := firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")); city != "" {
		cfg.City = city
	}
	setString(&cfg.RouteGeoJSON, "ROUTE_GEOJSON")
	setString(&cfg.RouteShapeID, "ROUTE_SHAPE_ID")
	setString(&cfg.RouteID, "ROUTE_ID")

	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.NATSSubjectPrefix, "NATS_SUBJECT_PREFIX")
	setString(&cfg.VehicleSubject, "VEHICLE_SUBJECT")
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	setString(&cfg.GPS.Source, "GPS_SOURCE")
	setString(&cfg.GPS.SerialPort, "GPS_SERIAL_PORT")
	setString(&cfg.GPS.MQTTBroker, "MQTT_BROKER")
	setString(&cfg.GPS.MQTTClientID, "MQTT_CLIENT_ID")
	setString(&cfg.GPS.MQTTTopic, "MQTT_GPS_TOPIC")
	if v := os.Getenv("GPS_BAUD_RATE"); v != "" {
		rate, err := strconv.ParseUint(v, 10, 32)
		if err != nil || rate == 0 {
			return fmt.Errorf("invalid GPS_BAUD_RATE: %q", v)
		}
		cfg.GPS.BaudRate = uint(rate)
	}

	if err := setFloat(&cfg.Tracking.Threshold, "DEVIATION_THRESHOLD_M"); err != nil {
		return err
	}
	setString(&cfg.Tracking.AlertMode, "ALERT_MODE")
	if v := os.Getenv("TRAIL_MAX_POINTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid TRAIL_MAX_POINTS: %q", v)
		}
		cfg.Tracking.TrailMaxPoints = n
	}
	if err := setFloat(&cfg.Tracking.CameraZoom, "CAMERA_ZOOM"); err != nil {
		return err
	}
	for _, d := range []struct {
		dst  *time.Duration
		key  string
		unit time.Duration
	}{
		{&cfg.Tracking.CameraEase, "CAMERA_EASE_MS", time.Millisecond},
		{&cfg.Tracking.PositionTimeout, "POSITION_TIMEOUT_MS", time.Millisecond},
		{&cfg.Marker.Duration, "MARKER_DURATION_MS", time.Millisecond},
		{&cfg.Marker.FrameInterval, "MARKER_FRAME_MS", time.Millisecond},
		{&cfg.GTFSRTPoll, "GTFSRT_POLL_SEC", time.Second},
	} {
		if err := setDuration(d.dst, d.key, d.unit); err != nil {
			return err
		}
	}

	setString(&cfg.GTFSRTVehiclesURL, "GTFSRT_VEHICLES_URL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(&cfg.KafkaAlertTopic, "KAFKA_ALERT_TOPIC")

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	setString(&cfg.MetricsAddr, "METRICS_ADDR")
	return nil
}

func dsnFromPGEnv() string {
	db := os.Getenv("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")) != "" {
		db = "postgres"
	}
	if db == "" {
		return ""
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass := os.Getenv("PGPASSWORD"); pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string, unit time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = time.Duration(n) * unit
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

// IsValidationError reports whether err came from struct validation.
func IsValidationError(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}
