package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/calibration"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
)

// LogSink пишет события отображения в журнал
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "display")}
}

func (s *LogSink) ReadingCaptured(index, reading int) {
	s.logger.Debug("отсчёт", "index", index, "reading", reading)
}

func (s *LogSink) CaptureCompleted(index int, result models.CaptureResult) {
	s.logger.Info("точка завершена",
		"index", index,
		"mean", result.Mean,
		"stdev", result.Stdev,
		"valid", result.Valid(),
		"outcome", result.Outcome,
	)
}

func (s *LogSink) ReadinessChanged(canFit bool) {
	s.logger.Info("готовность к аппроксимации", "can_fit", canFit)
}

// MQTTSink публикует события в брокер:
// <prefix>/points/<index>/reading, <prefix>/points/<index>/complete, <prefix>/readiness
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *slog.Logger
}

func NewMQTTSink(client mqtt.Client, prefix string, qos byte, logger *slog.Logger) *MQTTSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSink{
		client: client,
		prefix: prefix,
		qos:    qos,
		logger: logger.With("component", "mqtt_display"),
	}
}

func (s *MQTTSink) ReadingCaptured(index, reading int) {
	s.publish(fmt.Sprintf("%s/points/%d/reading", s.prefix, index), newEvent(models.EventReading, index, reading, nil, false))
}

func (s *MQTTSink) CaptureCompleted(index int, result models.CaptureResult) {
	s.publish(fmt.Sprintf("%s/points/%d/complete", s.prefix, index), newEvent(models.EventComplete, index, 0, &result, false))
}

func (s *MQTTSink) ReadinessChanged(canFit bool) {
	s.publish(s.prefix+"/readiness", newEvent(models.EventReadiness, -1, 0, nil, canFit))
}

// publish не ждёт подтверждения брокера: вызывается из горутины захвата
func (s *MQTTSink) publish(topic string, event models.DisplayEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("ошибка сериализации события", "topic", topic, "error", err)
		return
	}
	token := s.client.Publish(topic, s.qos, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			s.logger.Warn("публикация не удалась", "topic", topic, "error", token.Error())
		}
	}()
}

// MultiSink раздаёт события нескольким получателям по порядку
type MultiSink []calibration.DisplaySink

func (m MultiSink) ReadingCaptured(index, reading int) {
	for _, s := range m {
		s.ReadingCaptured(index, reading)
	}
}

func (m MultiSink) CaptureCompleted(index int, result models.CaptureResult) {
	for _, s := range m {
		s.CaptureCompleted(index, result)
	}
}

func (m MultiSink) ReadinessChanged(canFit bool) {
	for _, s := range m {
		s.ReadinessChanged(canFit)
	}
}

func newEvent(t models.DisplayEventType, index, reading int, result *models.CaptureResult, canFit bool) models.DisplayEvent {
	return models.DisplayEvent{
		Type:       t,
		PointIndex: index,
		Reading:    reading,
		Result:     result,
		CanFit:     canFit,
		Timestamp:  time.Now().UnixMilli(),
	}
}
