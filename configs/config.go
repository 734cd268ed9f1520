// configs/config.go
package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App         AppConfig
	MQTT        MQTTConfig
	Sensor      SensorConfig
	Calibration CalibrationConfig
	Emulator    EmulatorConfig
}

type AppConfig struct {
	Port     string // HTTP_PORT
	GRPCPort string // GRPC_PORT
	LogLevel string
	Env      string
}

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            int
	DisplayPrefix  string // Корень топиков событий отображения
	DisplayEnabled bool
}

type SensorConfig struct {
	Source      string // random | mqtt | serial
	Topic       string
	SerialPort  string
	SerialBaud  int
	Command     string // Запрос перед каждым чтением, \n и \r раскрываются
	ReadTimeout time.Duration
	Seed        int64
}

type CalibrationConfig struct {
	PointCount       int
	References       []float64
	SampleCount      int
	SampleInterval   time.Duration
	Threshold        float64
	FitDegree        int
	UniqueReferences bool
}

type EmulatorConfig struct {
	DeviceID string
	Levels   []float64 // Уровни показаний по эталонам
	Jitter   int
	Rate     time.Duration
	Switch   time.Duration // Через сколько переходить к следующему уровню
	Script   []float64     // Заданная последовательность показаний вместо уровней
}

// Допустимые источники датчика
const (
	SourceRandom = "random"
	SourceMQTT   = "mqtt"
	SourceSerial = "serial"
)

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() *Config {
	return &Config{
		App: AppConfig{
			Port:     getEnv("HTTP_PORT", "8080"),
			GRPCPort: getEnv("GRPC_PORT", "50051"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
			Env:      getEnv("ENV", "development"),
		},
		MQTT: MQTTConfig{
			Broker:         getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:       getEnv("MQTT_CLIENT_ID", "obs_calibrator"),
			Username:       getEnv("MQTT_USERNAME", ""),
			Password:       getEnv("MQTT_PASSWORD", ""),
			QoS:            getEnvAsInt("MQTT_QOS", 1),
			DisplayPrefix:  getEnv("MQTT_DISPLAY_PREFIX", "obs/calibrator"),
			DisplayEnabled: getEnvAsBool("MQTT_DISPLAY_ENABLED", false),
		},
		Sensor: SensorConfig{
			Source:      getEnv("SENSOR_SOURCE", SourceRandom),
			Topic:       getEnv("SENSOR_TOPIC", "obs/sensor/+/proximity"),
			SerialPort:  getEnv("SENSOR_SERIAL_PORT", "/dev/ttyUSB0"),
			SerialBaud:  getEnvAsInt("SENSOR_SERIAL_BAUD", 115200),
			Command:     unescape(getEnv("SENSOR_SERIAL_COMMAND", "")),
			ReadTimeout: getEnvAsDuration("SENSOR_READ_TIMEOUT", 3*time.Second),
			Seed:        int64(getEnvAsInt("SENSOR_SEED", 0)),
		},
		Calibration: CalibrationConfig{
			PointCount:       getEnvAsInt("CAL_POINT_COUNT", 4),
			References:       getEnvAsFloats("CAL_REFERENCES", []float64{100, 250, 500, 1000}),
			SampleCount:      getEnvAsInt("CAL_SAMPLE_COUNT", 10),
			SampleInterval:   getEnvAsDuration("CAL_SAMPLE_INTERVAL", time.Second),
			Threshold:        getEnvAsFloat("CAL_THRESHOLD", 0.01),
			FitDegree:        getEnvAsInt("CAL_FIT_DEGREE", 1),
			UniqueReferences: getEnvAsBool("CAL_UNIQUE_REFERENCES", true),
		},
		Emulator: EmulatorConfig{
			DeviceID: getEnv("EMULATOR_DEVICE_ID", "OBS-EMU-001"),
			Levels:   getEnvAsFloats("EMULATOR_LEVELS", []float64{1000, 2500, 5000, 10000}),
			Jitter:   getEnvAsInt("EMULATOR_JITTER", 5),
			Rate:     getEnvAsDuration("EMULATOR_RATE", 500*time.Millisecond),
			Switch:   getEnvAsDuration("EMULATOR_SWITCH", 30*time.Second),
			Script:   getEnvAsFloats("EMULATOR_SCRIPT", nil),
		},
	}
}

// Validate проверяет значения до запуска компонентов
func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("MQTT_QOS must be 0..2, got %d", c.MQTT.QoS))
	}

	switch c.Sensor.Source {
	case SourceRandom, SourceMQTT, SourceSerial:
	default:
		errs = append(errs, fmt.Errorf("SENSOR_SOURCE must be random, mqtt or serial, got %q", c.Sensor.Source))
	}
	if c.Sensor.Source == SourceSerial && c.Sensor.SerialBaud <= 0 {
		errs = append(errs, fmt.Errorf("SENSOR_SERIAL_BAUD must be positive, got %d", c.Sensor.SerialBaud))
	}
	if c.Sensor.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("SENSOR_READ_TIMEOUT must not be negative"))
	}

	cal := c.Calibration
	if cal.PointCount < 1 || cal.PointCount > 10 {
		errs = append(errs, fmt.Errorf("CAL_POINT_COUNT must be 1..10, got %d", cal.PointCount))
	}
	if cal.SampleCount < 1 {
		errs = append(errs, fmt.Errorf("CAL_SAMPLE_COUNT must be positive, got %d", cal.SampleCount))
	}
	if cal.SampleInterval < 0 {
		errs = append(errs, fmt.Errorf("CAL_SAMPLE_INTERVAL must not be negative"))
	}
	if cal.Threshold < 0 || cal.Threshold > 1 {
		errs = append(errs, fmt.Errorf("CAL_THRESHOLD must be a fraction 0..1, got %v", cal.Threshold))
	}
	if cal.FitDegree < 1 {
		errs = append(errs, fmt.Errorf("CAL_FIT_DEGREE must be at least 1, got %d", cal.FitDegree))
	}
	if len(cal.References) == 0 {
		errs = append(errs, fmt.Errorf("CAL_REFERENCES must list at least one value"))
	}

	return errors.Join(errs...)
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает переменную окружения как int
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration принимает "1s", "250ms" или число секунд
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvAsFloats список через запятую; при ошибке разбора значение по умолчанию
func getEnvAsFloats(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}

func unescape(s string) string {
	return strings.NewReplacer(`\r`, "\r", `\n`, "\n").Replace(s)
}
