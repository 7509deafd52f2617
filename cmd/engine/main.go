package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/api"
	"github.com/dealradar/alert-engine/pkg/channels"
	"github.com/dealradar/alert-engine/pkg/config"
	"github.com/dealradar/alert-engine/pkg/engine"
	"github.com/dealradar/alert-engine/pkg/feedback"
	"github.com/dealradar/alert-engine/pkg/timeplus"
)

func main() {
	// Configure logging
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logLevel := os.Getenv("LOG_LEVEL")
	switch strings.ToLower(logLevel) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	tpClient, err := timeplus.NewClient(timeplus.ConnConfig{
		Address:   cfg.Timeplus.Address,
		Username:  cfg.Timeplus.Username,
		Password:  cfg.Timeplus.Password,
		Workspace: cfg.Timeplus.Workspace,
	})
	if err != nil {
		logrus.Fatalf("Failed to connect to Timeplus: %v", err)
	}
	defer tpClient.Close()

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := timeplus.SetupStreams(setupCtx, tpClient); err != nil {
		cancelSetup()
		logrus.Fatalf("Failed to set up streams: %v", err)
	}
	cancelSetup()

	ruleStore := timeplus.NewRuleStore(tpClient)
	alertStore := timeplus.NewAlertStore(tpClient)
	marketStore := timeplus.NewMarketStore(tpClient)

	var senders []channels.Sender
	if cfg.NATS.Enabled {
		push, err := channels.NewPushSender(cfg.NATS.URL)
		if err != nil {
			logrus.Fatalf("Failed to connect push channel: %v", err)
		}
		defer push.Close()
		senders = append(senders, push)
	}
	if cfg.SMTP.Enabled {
		senders = append(senders, channels.NewEmailSender(channels.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}
	if cfg.SMS.Enabled {
		senders = append(senders, channels.NewSMSSender(channels.SMSConfig{
			GatewayURL: cfg.SMS.GatewayURL,
			APIKey:     cfg.SMS.APIKey,
			Timeout:    time.Duration(cfg.SMS.TimeoutSeconds) * time.Second,
		}))
	}
	if len(senders) == 0 {
		logrus.Warn("No notification channels enabled; triggered alerts will record delivery failures")
	}

	selector := engine.NewSelector(marketStore, cfg.Engine.MaxUnfilteredCatalogSize)
	throttle := engine.NewThrottleController(alertStore)
	dispatcher := engine.NewDispatcher(alertStore, ruleStore, senders, cfg.Engine.ChannelRetryAttempts)
	scheduler := engine.NewScheduler(ruleStore, marketStore, selector, throttle, dispatcher, engine.SchedulerConfig{
		Interval:      cfg.Engine.SweepInterval(),
		SweepDeadline: cfg.Engine.SweepDeadline(),
		Workers:       cfg.Engine.Workers,
		MetricsEvery:  cfg.Engine.MetricsEverySweeps,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Kafka.Enabled {
		consumer, err := feedback.NewConsumer(feedback.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, alertStore)
		if err != nil {
			logrus.Fatalf("Failed to start feedback consumer: %v", err)
		}
		consumer.Start(ctx)
		defer consumer.Stop()
	}

	handler := api.NewHandler(ruleStore, alertStore, scheduler)
	server := api.NewServer(cfg.Server.Port, strings.Split(cfg.Server.AllowedOrigins, ","), handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logrus.Fatalf("Ops server error: %v", err)
		}
	case sig := <-quit:
		logrus.Infof("Received signal %v, shutting down", sig)
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Ops server shutdown: %v", err)
	}
	logrus.Info("Shutdown complete")
}
