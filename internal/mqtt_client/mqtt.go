package mqtt_client

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SASlabgroup/microSWIFT-programmer/configs"
)

// NewOptions параметры подключения из конфигурации; onConnect вызывается
// при каждом (пере)подключении, чтобы восстановить подписки
func NewOptions(cfg configs.MQTTConfig, clientID string, onConnect func(mqtt.Client), logger *slog.Logger) *mqtt.ClientOptions {
	if logger == nil {
		logger = slog.Default()
	}
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%d", cfg.ClientID, time.Now().Unix())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)

	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
		logger.Info("MQTT аутентификация", "user", cfg.Username)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("MQTT подключен", "broker", cfg.Broker, "client_id", clientID)
		if onConnect != nil {
			onConnect(c)
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("MQTT соединение потеряно", "error", err)
	}
	return opts
}

// InitClient подключается к брокеру
func InitClient(cfg configs.MQTTConfig, clientID string, onConnect func(mqtt.Client), logger *slog.Logger) (mqtt.Client, error) {
	client := mqtt.NewClient(NewOptions(cfg, clientID, onConnect, logger))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT подключение не удалось: %w", token.Error())
	}
	return client, nil
}
