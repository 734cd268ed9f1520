package models

// SensorReading сообщение датчика в MQTT
type SensorReading struct {
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"`
	Value     int    `json:"value"`
	Units     string `json:"units"`
}

// DisplayEventType тип события для отображения
type DisplayEventType string

const (
	EventReading   DisplayEventType = "reading"
	EventComplete  DisplayEventType = "complete"
	EventReadiness DisplayEventType = "readiness"
)

// DisplayEvent событие, которое уходит наблюдателям (MQTT, gRPC)
type DisplayEvent struct {
	Type       DisplayEventType `json:"type"`
	PointIndex int              `json:"point_index"`
	Reading    int              `json:"reading"`
	Result     *CaptureResult   `json:"result,omitempty"`
	CanFit     bool             `json:"can_fit"`
	Timestamp  int64            `json:"timestamp"`
}
