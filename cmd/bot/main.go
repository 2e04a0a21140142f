package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"vpn-access-bot/internal/config"
	"vpn-access-bot/internal/services"
	"vpn-access-bot/internal/webhook"
	"vpn-access-bot/pkg/panelclient"
	"vpn-access-bot/pkg/telegrambot"
)

func main() {
	// A missing .env is fine, real deployments use environment variables
	_ = godotenv.Load()

	logger := setupLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: ", err)
	}

	store, err := services.NewStorageService(cfg.Storage.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open storage: ", err)
	}
	defer store.Close()

	issuer := services.NewIssuer(cfg, store, func() (services.PanelAPI, error) {
		return panelclient.Shared(cfg.Panel, logger)
	}, logger)
	qrService := services.NewQRService(logger)

	bot, err := telegrambot.NewBot(cfg, store, issuer, qrService, logger)
	if err != nil {
		logger.Fatal("Failed to create bot: ", err)
	}

	scheduler := services.NewReminderScheduler(store, bot, cfg.Reminders.Interval, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start reminder scheduler: ", err)
	}
	defer scheduler.Stop()

	webhookServer := webhook.NewServer(cfg.Webhook, issuer, bot, logger)
	webhookServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	bot.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := webhookServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Webhook server shutdown failed: %v", err)
	}
}

// setupLogger sets up the logger
func setupLogger() *logrus.Logger {
	logger := logrus.New()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", logLevel)
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return logger
}
