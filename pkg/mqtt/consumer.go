package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/config"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/services"
)

const (
	TopicHeartRate     = "vitals/heart_rate"
	TopicBloodPressure = "vitals/blood_pressure"
)

// deviceReading is the wire payload published by wearables
type deviceReading struct {
	SubjectID  string `json:"subject_id"`
	HeartRate  int    `json:"heart_rate,omitempty"`
	Systolic   int    `json:"systolic,omitempty"`
	Diastolic  int    `json:"diastolic,omitempty"`
	CapturedAt string `json:"captured_at,omitempty"`
}

// Consumer feeds device readings from the MQTT broker into the
// ingestion pipeline
type Consumer struct {
	client paho.Client
	ingest *services.IngestService
}

// NewConsumer connects to the broker and subscribes to the vitals
// topics. Ingestion over MQTT is optional; callers skip this when no
// broker is configured.
func NewConsumer(cfg *config.MQTTConfig, ingest *services.IngestService) (*Consumer, error) {
	c := &Consumer{ingest: ingest}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(c.handleMessage)
	opts.OnConnect = func(client paho.Client) {
		logrus.Info("Connected to MQTT broker")
		c.subscribe(client)
	}
	opts.OnConnectionLost = func(client paho.Client, err error) {
		logrus.Warnf("MQTT connection lost: %v", err)
	}

	c.client = paho.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

func (c *Consumer) subscribe(client paho.Client) {
	for _, topic := range []string{TopicHeartRate, TopicBloodPressure} {
		token := client.Subscribe(topic, 1, nil)
		token.Wait()
		if token.Error() != nil {
			logrus.Errorf("Failed to subscribe to %s: %v", topic, token.Error())
			continue
		}
		logrus.Infof("Subscribed to topic: %s", topic)
	}
}

func (c *Consumer) handleMessage(client paho.Client, msg paho.Message) {
	var payload deviceReading
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		logrus.Errorf("Dropping malformed payload on %s: %v", msg.Topic(), err)
		return
	}
	if payload.SubjectID == "" {
		logrus.Errorf("Dropping payload on %s without subject_id", msg.Topic())
		return
	}

	reading := models.Reading{
		SubjectID: payload.SubjectID,
		Source:    models.SourceSensor,
	}
	switch msg.Topic() {
	case TopicHeartRate:
		reading.Kind = models.ReadingHeartRate
		reading.HeartRate = payload.HeartRate
	case TopicBloodPressure:
		reading.Kind = models.ReadingBloodPressure
		reading.Systolic = payload.Systolic
		reading.Diastolic = payload.Diastolic
	default:
		logrus.Warnf("Unknown topic: %s", msg.Topic())
		return
	}
	if payload.CapturedAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.CapturedAt); err == nil {
			reading.CapturedAt = t
		}
	}

	if _, err := c.ingest.Ingest(context.Background(), reading); err != nil {
		logrus.Errorf("Failed to ingest %s reading for subject %s: %v", reading.Kind, reading.SubjectID, err)
	}
}

// Close disconnects from the broker
func (c *Consumer) Close() {
	c.client.Disconnect(250)
}
