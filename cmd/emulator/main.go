package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SASlabgroup/microSWIFT-programmer/configs"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/mqtt_client"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/sensor"
)

// Эмулятор датчика OBS: публикует показания вокруг текущего уровня и
// периодически переходит к следующему, как при смене эталонного раствора.
func main() {
	cfg := configs.LoadConfig()
	logger := configs.InitLogger(cfg.App)

	if (len(cfg.Emulator.Levels) == 0 && len(cfg.Emulator.Script) == 0) || cfg.Emulator.Rate <= 0 {
		logger.Error("нужны EMULATOR_LEVELS или EMULATOR_SCRIPT и положительный EMULATOR_RATE")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientID := fmt.Sprintf("obs-emulator-%d", time.Now().Unix())
	client, err := mqtt_client.InitClient(cfg.MQTT, clientID, nil, logger)
	if err != nil {
		logger.Error("эмулятор не подключился к брокеру", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(250)

	topic := fmt.Sprintf("obs/sensor/%s/proximity", cfg.Emulator.DeviceID)
	logger.Info("=== OBS EMULATOR ===",
		"topic", topic,
		"levels", cfg.Emulator.Levels,
		"rate", cfg.Emulator.Rate,
		"switch", cfg.Emulator.Switch,
		"script", len(cfg.Emulator.Script),
	)

	run(ctx, client, topic, cfg.Emulator, cfg.Sensor.Seed, byte(cfg.MQTT.QoS), logger)
	logger.Info("эмулятор остановлен")
}

func run(ctx context.Context, client mqtt.Client, topic string, cfg configs.EmulatorConfig, seed int64, qos byte, logger *slog.Logger) {
	level := 0
	var (
		source sensor.Source
		levels *sensor.RandomSource
	)
	if len(cfg.Script) > 0 {
		// Сценарий повторяется по кругу, уровни не переключаются
		script := make([]int, len(cfg.Script))
		for i, v := range cfg.Script {
			script[i] = int(v)
		}
		source = sensor.NewSequenceSource(script, true)
	} else {
		levels = sensor.NewLevelSource(seed, int(cfg.Levels[level]), cfg.Jitter)
		source = levels
	}

	ticker := time.NewTicker(cfg.Rate)
	defer ticker.Stop()

	var switchC <-chan time.Time
	if levels != nil && cfg.Switch > 0 && len(cfg.Levels) > 1 {
		switcher := time.NewTicker(cfg.Switch)
		defer switcher.Stop()
		switchC = switcher.C
	}

	sent := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("отправлено показаний", "count", sent)
			return

		case <-switchC:
			level = (level + 1) % len(cfg.Levels)
			levels.SetLevel(int(cfg.Levels[level]), cfg.Jitter)
			logger.Info("смена уровня", "level", cfg.Levels[level])

		case <-ticker.C:
			value, err := source.ReadOne(ctx)
			if err != nil {
				continue
			}
			reading := models.SensorReading{
				DeviceID:  cfg.DeviceID,
				Timestamp: time.Now().UnixMilli(),
				Value:     value,
				Units:     "counts",
			}
			if err := publish(client, topic, qos, reading); err != nil {
				logger.Warn("показание не отправлено", "error", err)
				continue
			}
			sent++
			logger.Debug("показание отправлено", "value", value)
		}
	}
}

func publish(client mqtt.Client, topic string, qos byte, reading models.SensorReading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}
	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("таймаут отправки MQTT")
	}
	return token.Error()
}
