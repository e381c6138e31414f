package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/visiona/neurolink/internal/telemetry"
)

// mqttPublishTimeout bounds how long a record publish may stall the sink.
const mqttPublishTimeout = 2 * time.Second

// MQTT publishes window records as JSON to a broker topic. Delivery uses
// QoS 1 with the paho client's auto-reconnect; publish failures count
// against the sink but do not disable it (the broker may come back).
type MQTT struct {
	client mqtt.Client
	topic  string
}

// mqttRecord is the published payload shape.
type mqttRecord struct {
	Timestamp         float64 `json:"timestamp"`
	WindowIndex       uint64  `json:"window_index"`
	TraceID           string  `json:"trace_id"`
	SampleCount       uint64  `json:"sample_count"`
	LeftAlphaPower    float64 `json:"left_alpha_power"`
	RightAlphaPower   float64 `json:"right_alpha_power"`
	LI                float64 `json:"lateralization_index"`
	Direction         string  `json:"attention_direction"`
	Confidence        float64 `json:"confidence"`
	SmoothedDirection string  `json:"smoothed_direction"`
	QualityScore      float64 `json:"quality_score"`
	LeftSNRdB         float64 `json:"left_snr_db"`
	RightSNRdB        float64 `json:"right_snr_db"`
	LeftArtifact      string  `json:"left_artifact"`
	RightArtifact     string  `json:"right_artifact"`
	Terminal          bool    `json:"terminal,omitempty"`
	Reason            string  `json:"reason,omitempty"`
}

// NewMQTT connects to the broker and returns a sink publishing to topic.
func NewMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("sink: mqtt connection lost", "broker", broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("sink: connecting to mqtt broker %s: %w", broker, token.Error())
	}

	slog.Info("sink: mqtt connected", "broker", broker, "topic", topic)
	return &MQTT{client: client, topic: topic}, nil
}

// WriteRecord publishes one record with QoS 1.
func (m *MQTT) WriteRecord(r Record) error {
	payload, err := json.Marshal(mqttRecord{
		Timestamp:         float64(r.Timestamp.UnixNano()) / 1e9,
		WindowIndex:       r.WindowIndex,
		TraceID:           r.TraceID,
		SampleCount:       r.SampleCount,
		LeftAlphaPower:    r.LeftAlphaPower,
		RightAlphaPower:   r.RightAlphaPower,
		LI:                r.LI,
		Direction:         r.Direction.String(),
		Confidence:        r.Confidence,
		SmoothedDirection: r.SmoothedDirection.String(),
		QualityScore:      r.QualityScore,
		LeftSNRdB:         r.LeftSNRdB,
		RightSNRdB:        r.RightSNRdB,
		LeftArtifact:      r.LeftArtifact.String(),
		RightArtifact:     r.RightArtifact.String(),
		Terminal:          r.Terminal,
		Reason:            r.Reason,
	})
	if err != nil {
		return fmt.Errorf("sink: marshaling record: %w", err)
	}

	token := m.client.Publish(m.topic, 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		telemetry.SinkErrors.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("sink: mqtt publish timed out after %s", mqttPublishTimeout)
	}
	if token.Error() != nil {
		telemetry.SinkErrors.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("sink: mqtt publish: %w", token.Error())
	}
	telemetry.RecordsWritten.WithLabelValues("mqtt").Inc()
	return nil
}

// Flush is a no-op; paho delivers as records are published.
func (m *MQTT) Flush() error { return nil }

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	slog.Info("sink: mqtt disconnected")
	return nil
}
