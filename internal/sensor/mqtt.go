package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
)

const defaultMQTTBuffer = 64

// MQTTSource получает отсчёты датчика, которые устройство публикует в брокер.
// ReadOne отдаёт самый свежий отсчёт из буфера либо ждёт следующий.
type MQTTSource struct {
	client   mqtt.Client
	topic    string
	qos      byte
	timeout  time.Duration
	readings chan models.SensorReading
	logger   *slog.Logger
}

// NewMQTTSource создаёт источник; client может быть nil, если сообщения
// подаются напрямую через HandleMessage
func NewMQTTSource(client mqtt.Client, topic string, qos byte, timeout time.Duration, logger *slog.Logger) *MQTTSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSource{
		client:   client,
		topic:    topic,
		qos:      qos,
		timeout:  timeout,
		readings: make(chan models.SensorReading, defaultMQTTBuffer),
		logger:   logger.With("component", "mqtt_source"),
	}
}

// Subscribe подписывается на топик датчика
func (s *MQTTSource) Subscribe() error {
	if s.client == nil {
		return fmt.Errorf("mqtt client not configured")
	}

	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.HandleMessage(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, token.Error())
	}

	s.logger.Info("подписка на датчик", "topic", s.topic)
	return nil
}

// Unsubscribe снимает подписку
func (s *MQTTSource) Unsubscribe() error {
	if s.client == nil {
		return nil
	}
	token := s.client.Unsubscribe(s.topic)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("unsubscribe %s: %w", s.topic, token.Error())
	}
	return nil
}

// HandleMessage разбирает сообщение датчика.
// Топик: obs/sensor/{deviceID}/proximity
func (s *MQTTSource) HandleMessage(topic string, payload []byte) {
	var reading models.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		s.logger.Warn("ошибка разбора payload", "topic", topic, "error", err)
		return
	}

	if reading.DeviceID == "" {
		if parts := strings.Split(topic, "/"); len(parts) >= 3 {
			reading.DeviceID = parts[2]
		}
	}

	if reading.Value < 0 || reading.Value > MaxProximity {
		s.logger.Warn("отсчёт вне диапазона", "device_id", reading.DeviceID, "value", reading.Value)
		return
	}

	select {
	case s.readings <- reading:
	default:
		s.logger.Warn("буфер датчика переполнен, отсчёт пропущен", "device_id", reading.DeviceID)
	}
}

func (s *MQTTSource) ReadOne(ctx context.Context) (int, error) {
	// Берём самый свежий из накопившихся
	var (
		latest models.SensorReading
		found  bool
	)
	for {
		select {
		case r := <-s.readings:
			latest, found = r, true
			continue
		default:
		}
		break
	}
	if found {
		return latest.Value, nil
	}

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-s.readings:
		return r.Value, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timeout:
		return 0, fmt.Errorf("%w: no message on %s within %s", ErrReadTimeout, s.topic, s.timeout)
	}
}
