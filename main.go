package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetinglight/config"
	"meetinglight/log"
	"meetinglight/services"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			if err := runStatus(); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\nusage: meetinglight [status]\n", os.Args[1])
			os.Exit(2)
		}
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.GetInstance().Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize structured logger
	log.Configure(cfg.LogToFile, cfg.LogFile)
	logger := log.GetInstance()
	defer logger.Sync()

	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	fields := make([]zap.Field, 0, len(cfg.Fields()))
	for key, value := range cfg.Fields() {
		fields = append(fields, zap.String(key, value))
	}
	logger.Info("Configuration loaded", fields...)

	// Only one agent per user session
	ipc, err := services.ListenIPC(cfg.IPCSocket, logger)
	if errors.Is(err, services.ErrAlreadyRunning) {
		logger.Info("Another instance is already running, exiting", zap.String("socket", cfg.IPCSocket))
		return
	}
	if err != nil {
		logger.Fatal("Failed to open status socket", zap.Error(err))
	}
	defer ipc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostname := services.ResolveHostname(ctx, logger)

	monitor := services.NewDeviceActivityMonitor(
		services.NewActivitySource(logger),
		time.Duration(cfg.PollingIntervalSeconds)*time.Second,
		logger,
	)

	transport := services.NewMQTTTransport(services.MQTTOptions{
		Server:   cfg.MQTTServer,
		Port:     cfg.MQTTPort,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		ClientID: services.ClientID(hostname),
	}, logger)
	broker := services.NewBrokerConnectionManager(transport, hostname, logger)

	notifiers, closeNotifiers := buildNotifiers(cfg, hostname, logger)
	defer closeNotifiers()

	coordinator := services.NewCoordinator(monitor, broker, notifiers, logger)
	if err := coordinator.Start(ctx); err != nil {
		logger.Fatal("Failed to start agent", zap.Error(err))
	}
	go ipc.Serve(coordinator)

	logger.Info("HA-MeetingLight agent running",
		zap.String("host", hostname),
		zap.String("broker", services.BrokerURL(cfg.MQTTServer, cfg.MQTTPort)),
		zap.Int("polling_interval_seconds", cfg.PollingIntervalSeconds))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, stopping agent")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	cleanupDone := make(chan struct{})
	go func() {
		coordinator.Shutdown(shutdownCtx)
		close(cleanupDone)
	}()

	select {
	case <-cleanupDone:
		logger.Info("Cleanup completed successfully")
	case <-shutdownCtx.Done():
		logger.Warn("Cleanup timeout, forcing exit")
	}
	cancel()
}

// buildNotifiers creates every configured notification sink. A sink that
// cannot be set up is logged and skipped.
func buildNotifiers(cfg *config.Config, hostname string, logger *zap.Logger) ([]services.Notifier, func()) {
	var (
		notifiers []services.Notifier
		closers   []func() error
	)

	if cfg.DesktopNotifications {
		desktop, err := services.NewDesktopNotifier(logger)
		if err != nil {
			logger.Warn("Desktop notifications unavailable", zap.Error(err))
		} else {
			notifiers = append(notifiers, desktop)
			closers = append(closers, desktop.Close)
		}
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram, err := services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, hostname, logger)
		if err != nil {
			logger.Warn("Telegram notifications unavailable", zap.Error(err))
		} else {
			notifiers = append(notifiers, telegram)
		}
	}

	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, services.NewWebhookNotifier(logger, cfg.WebhookURL, hostname))
		logger.Info("Webhook notifier initialized", zap.String("url", cfg.WebhookURL))
	}

	return notifiers, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Debug("Failed to close notifier", zap.Error(err))
			}
		}
	}
}

func runStatus() error {
	status, err := services.QueryStatus(config.SocketPath())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}
