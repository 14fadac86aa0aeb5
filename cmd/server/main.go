package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/event"
	"github.com/MrTroxy/cockpit-tools/internal/executor"
	"github.com/MrTroxy/cockpit-tools/internal/history"
	"github.com/MrTroxy/cockpit-tools/internal/model"
	"github.com/MrTroxy/cockpit-tools/internal/monitor"
	"github.com/MrTroxy/cockpit-tools/internal/quota"
	"github.com/MrTroxy/cockpit-tools/internal/registry"
	"github.com/MrTroxy/cockpit-tools/internal/runner"
	"github.com/MrTroxy/cockpit-tools/internal/schedule"
	"github.com/MrTroxy/cockpit-tools/internal/storage"
	"github.com/MrTroxy/cockpit-tools/internal/wake"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("storage.path", "cockpit-tools.db")
	viper.SetDefault("wake.duplicate_window", 8*time.Second)
	viper.SetDefault("monitor.interval", 30*time.Second)
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	// Event publisher: NATS when configured, otherwise local no-op
	var publisher event.Publisher = event.NopPublisher{}
	if viper.GetBool("nats.enabled") {
		nc := connectNATS(logger)
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}
		publisher, err = event.NewNATSPublisher(js, logger)
		if err != nil {
			logger.Fatal("Failed to create event publisher", zap.Error(err))
		}
	}

	// Durable store
	store, err := storage.NewSQLiteStore(logger, viper.GetString("storage.path"))
	if err != nil {
		logger.Fatal("Failed to open durable store", zap.Error(err))
	}
	defer store.Close()

	// Account catalog from configuration
	var accounts []model.Account
	if err := viper.UnmarshalKey("accounts", &accounts); err != nil {
		logger.Fatal("Failed to parse accounts", zap.Error(err))
	}
	catalog := wake.NewStaticCatalog(accounts)
	capabilities := model.DefaultCapabilities()

	// Wake caller with quota refresh
	quotaClient := quota.NewClient(viper.GetString("quota.usage_url"), logger)
	caller := wake.NewCLICaller(wake.Config{
		BinaryPath:      viper.GetString("wake.binary_path"),
		Model:           viper.GetString("wake.model"),
		ReasoningConfig: viper.GetString("wake.reasoning_config"),
		DuplicateWindow: viper.GetDuration("wake.duplicate_window"),
	}, catalog, quotaClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core components
	clock := schedule.SystemClock()
	exec := executor.NewFanOutExecutor(caller, logger)
	reg := registry.NewRegistry(ctx, store, publisher, clock, logger)
	hist := history.NewLog(ctx, store, publisher, logger)

	// Reconcile stored selections against what is actually available
	accountIDs := make([]string, 0, len(accounts))
	for _, account := range catalog.List() {
		accountIDs = append(accountIDs, account.ID)
	}
	capabilityIDs := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		capabilityIDs = append(capabilityIDs, capability.ID)
	}
	reg.RepairSelections(accountIDs, capabilityIDs)

	// Trigger runner
	run := runner.NewRunner(reg, exec, hist, publisher, caller, clock, logger)
	if err := run.Start(ctx); err != nil {
		logger.Fatal("Failed to start trigger runner", zap.Error(err))
	}
	defer run.Stop()

	// Runtime stats sampler
	sampler := monitor.NewStatsSampler(publisher, hist, viper.GetDuration("monitor.interval"), logger)
	sampler.Start(ctx)
	defer sampler.Stop()

	logger.Info("Server started",
		zap.Int("tasks", len(reg.List())),
		zap.Int("accounts", len(accounts)),
		zap.Int("capabilities", len(capabilities)))

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	logger.Info("Server shutting down gracefully")
}

// connectNATS connects with retry and reconnection handlers.
func connectNATS(logger *zap.Logger) *nats.Conn {
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}

	logger.Info("Connected to NATS successfully", zap.String("url", nc.ConnectedUrl()))
	return nc
}
