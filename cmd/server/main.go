package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/api"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/broadcast"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/config"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/location"
	vwmqtt "github.com/vitalwatch-io/vw-alert-engine/pkg/mqtt"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/notify"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/services"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/timeplus"
)

// @title VitalWatch Alert Engine API
// @version 1.0
// @description API for vital-sign alerting and emergency escalation
// @BasePath /api

func main() {
	// Configure Log Level from Environment Variable
	logLevelStr := os.Getenv("LOG_LEVEL")
	switch strings.ToLower(logLevelStr) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	// Tee logs to a rotated file alongside the console
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		logrus.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}))
	}
	logrus.Infof("Log level set to: %s", logrus.GetLevel().String())

	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Set up the Timeplus client
	tpClient, err := timeplus.NewClient(&cfg.Timeplus)
	if err != nil {
		logrus.Fatalf("Failed to create Timeplus client: %v", err)
	}

	// Set up required streams with proper schemas
	ctx := context.Background()
	if err := tpClient.SetupStreams(ctx); err != nil {
		logrus.Warnf("Failed to set up streams: %v", err)
	}

	// Redis backs escalation dedupe. The service tolerates an outage at
	// runtime, but a dead address at startup is a config error.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logrus.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Address, err)
	}

	// Initialize services
	hub := broadcast.NewHub(16)
	alertService := services.NewAlertService(tpClient)

	provider := location.NewHTTPProvider(
		cfg.Escalation.LocationEndpoint,
		time.Duration(cfg.Escalation.LocationTimeoutSeconds)*time.Second,
		time.Duration(cfg.Escalation.LocationMaxAgeSeconds)*time.Second,
	)
	notifier := notify.NewWebhookNotifier()

	escalationService := services.NewEscalationService(
		tpClient,
		redisClient,
		hub,
		provider,
		notifier,
		cfg.Contacts,
		services.EscalationOptions{
			Countdown:       time.Duration(cfg.Escalation.CountdownSeconds) * time.Second,
			LocationTimeout: time.Duration(cfg.Escalation.LocationTimeoutSeconds) * time.Second,
			DedupeTTL:       time.Duration(cfg.Escalation.DedupeTTLMinutes) * time.Minute,
		},
	)
	ingestService := services.NewIngestService(alertService, escalationService, hub)

	// Device ingestion over MQTT is optional
	var consumer *vwmqtt.Consumer
	if cfg.MQTT.Broker != "" {
		consumer, err = vwmqtt.NewConsumer(&cfg.MQTT, ingestService)
		if err != nil {
			logrus.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
	}

	// Set up the Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// API routes
	streamHandler := api.NewStreamHandler(hub)
	apiHandler := api.NewAPIHandler(ingestService, alertService, escalationService, streamHandler)
	apiHandler.SetupRoutes(e)

	// Operational surfaces
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echo.WrapHandler(httpSwagger.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Create HTTP server
	// Use PORT environment variable if available, otherwise use config
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logrus.Infof("Starting server on port %s", port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	if consumer != nil {
		consumer.Close()
	}

	// Create a deadline for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	// Shutdown the server
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := redisClient.Close(); err != nil {
		logrus.Warnf("Error closing Redis client: %v", err)
	}
	if err := tpClient.Close(); err != nil {
		logrus.Warnf("Error closing Timeplus client: %v", err)
	}

	logrus.Info("Server exited properly")
}
