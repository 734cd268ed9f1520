package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/SASlabgroup/microSWIFT-programmer/configs"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/calibration"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/handlers"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/mqtt_client"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/sampling"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/sensor"
)

func main() {
	// 1. Загрузка конфигурации
	cfg := configs.LoadConfig()
	logger := configs.InitLogger(cfg.App)

	if err := cfg.Validate(); err != nil {
		logger.Error("некорректная конфигурация", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("сервис остановлен с ошибкой", "error", err)
		os.Exit(1)
	}
	logger.Info("сервис полностью остановлен")
}

func run(cfg *configs.Config, logger *slog.Logger) error {
	logger.Info("=== OBS CALIBRATOR ===",
		"sensor", cfg.Sensor.Source,
		"points", cfg.Calibration.PointCount,
		"threshold", cfg.Calibration.Threshold,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. MQTT клиент нужен источнику mqtt и публикации событий
	var (
		mqttClient mqtt.Client
		mqttSource atomic.Pointer[sensor.MQTTSource]
	)
	if cfg.Sensor.Source == configs.SourceMQTT || cfg.MQTT.DisplayEnabled {
		client, err := mqtt_client.InitClient(cfg.MQTT, cfg.MQTT.ClientID, func(mqtt.Client) {
			// После переподключения с чистой сессией подписку надо восстановить
			if src := mqttSource.Load(); src != nil {
				if err := src.Subscribe(); err != nil {
					logger.Error("повторная подписка не удалась", "error", err)
				}
			}
		}, logger)
		if err != nil {
			return err
		}
		mqttClient = client
		defer mqttClient.Disconnect(250)
	}

	// 3. Источник отсчётов датчика
	source, closeSource, err := buildSource(cfg, mqttClient, &mqttSource, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	// 4. Получатели событий отображения
	broadcaster := handlers.NewBroadcaster(logger)
	sinks := handlers.MultiSink{handlers.NewLogSink(logger), broadcaster}
	if cfg.MQTT.DisplayEnabled {
		sinks = append(sinks, handlers.NewMQTTSink(mqttClient, cfg.MQTT.DisplayPrefix, byte(cfg.MQTT.QoS), logger))
	}

	// 5. Сессия калибровки
	worker := sampling.NewWorker(source, logger)
	session, err := calibration.NewSession(calibration.Config{
		Count:            cfg.Calibration.PointCount,
		References:       cfg.Calibration.References,
		SampleCount:      cfg.Calibration.SampleCount,
		Interval:         cfg.Calibration.SampleInterval,
		Threshold:        cfg.Calibration.Threshold,
		FitDegree:        cfg.Calibration.FitDegree,
		UniqueReferences: cfg.Calibration.UniqueReferences,
	}, worker, sinks, logger)
	if err != nil {
		return fmt.Errorf("создание сессии: %w", err)
	}

	// 6. gRPC поток событий
	grpcServer := grpc.NewServer()
	handlers.RegisterDisplayStreamServer(grpcServer, broadcaster)

	lis, err := net.Listen("tcp", ":"+cfg.App.GRPCPort)
	if err != nil {
		return fmt.Errorf("gRPC listener: %w", err)
	}

	// 7. REST API
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	restAPI := handlers.NewRESTAPIServer(session, broadcaster, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           restAPI.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC Stream Server запущен", "port", cfg.App.GRPCPort)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("REST API Server запущен", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP сервер: %w", err)
		}
		return nil
	})

	// 8. Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Graceful shutdown...")

		session.Close()
		broadcaster.Stop()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildSource выбирает источник отсчётов по SENSOR_SOURCE
func buildSource(
	cfg *configs.Config,
	client mqtt.Client,
	mqttSource *atomic.Pointer[sensor.MQTTSource],
	logger *slog.Logger,
) (sensor.Source, func(), error) {
	noop := func() {}

	switch cfg.Sensor.Source {
	case configs.SourceMQTT:
		src := sensor.NewMQTTSource(client, cfg.Sensor.Topic, byte(cfg.MQTT.QoS), cfg.Sensor.ReadTimeout, logger)
		if err := src.Subscribe(); err != nil {
			return nil, noop, err
		}
		mqttSource.Store(src)
		return src, func() { _ = src.Unsubscribe() }, nil

	case configs.SourceSerial:
		src, err := sensor.OpenSerial(cfg.Sensor.SerialPort, cfg.Sensor.SerialBaud,
			[]byte(cfg.Sensor.Command), cfg.Sensor.ReadTimeout, logger)
		if err != nil {
			ports, listErr := sensor.ListSerialPorts()
			logger.Error("порт датчика недоступен", "port", cfg.Sensor.SerialPort, "available", ports, "list_error", listErr)
			return nil, noop, err
		}
		logger.Info("датчик на последовательном порту", "port", cfg.Sensor.SerialPort, "baud", cfg.Sensor.SerialBaud)
		return src, func() { _ = src.Close() }, nil

	default:
		logger.Warn("используется заглушка датчика со случайными отсчётами")
		return sensor.NewRandomSource(cfg.Sensor.Seed), noop, nil
	}
}
