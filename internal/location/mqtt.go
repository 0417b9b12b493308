package location

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// MQTTFix is the JSON document GPS producers publish for each fix.
type MQTTFix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "2025-12-06"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void)
	Accuracy   float64 `json:"accuracy_m,omitempty"`
}

// MQTTProvider receives fixes published by a GPS producer on an MQTT topic.
type MQTTProvider struct {
	dispatcher
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

func NewMQTTProvider(broker, clientID, topic string, logger *zap.Logger) *MQTTProvider {
	p := &MQTTProvider{topic: topic, logger: logger}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	p.client = mqtt.NewClient(opts)
	return p
}

// Connect connects to the broker and subscribes to the fix topic.
func (p *MQTTProvider) Connect() error {
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	token := p.client.Subscribe(p.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		p.handlePayload(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", p.topic, token.Error())
	}
	p.logger.Info("subscribed to gps topic", zap.String("topic", p.topic))
	return nil
}

// Close disconnects and ends every pending request.
func (p *MQTTProvider) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.fail(ErrPositionUnavailable, true)
}

func (p *MQTTProvider) handlePayload(payload []byte) {
	var m MQTTFix
	if err := json.Unmarshal(payload, &m); err != nil {
		p.logger.Warn("gps payload unmarshal error", zap.Error(err))
		return
	}
	if m.Validity != "" && m.Validity != "A" {
		return
	}
	p.deliver(Fix{
		Point:    orb.Point{m.Longitude, m.Latitude},
		Accuracy: m.Accuracy,
		Speed:    m.SpeedKnots * knotsToMps,
		Course:   m.CourseDeg,
		Time:     m.timestamp(),
	})
}

func (m MQTTFix) timestamp() time.Time {
	if ts, err := time.Parse("2006-01-02 15:04:05", m.Date+" "+m.Time); err == nil {
		return ts.UTC()
	}
	return time.Now().UTC()
}
