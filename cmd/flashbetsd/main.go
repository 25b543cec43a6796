package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gary322/flashbets-sub011/internal/config"
	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/gary322/flashbets-sub011/pkg/stats"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	closeLogger := initLogger()
	defer closeLogger()

	appConfig := newAppConfig(prometheus.DefaultRegisterer)
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("unable to start services")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if config.GetBool(config.EnableProfilerKey) {
		dumpPath := filepath.Join(
			config.GetDatadir(), config.ProfilerLocation, "metrics.txt",
		)
		stats.EnableMemoryStatistics(
			ctx, time.Duration(config.GetInt(config.StatsIntervalKey))*time.Second,
			prometheus.DefaultGatherer, dumpPath,
		)
	}

	keeper := appConfig.Keeper()
	keeper.Start()

	log.Info("flashbets daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	<-sigChan

	log.Info("shutting down daemon")

	keeper.Stop()
	log.Debug("stopped keeper")

	cancel()

	if err := appConfig.RepoManager().Close(); err != nil {
		log.WithError(err).Warn("error while closing db")
	} else {
		log.Debug("closed connection with db")
	}

	log.Info("exiting")
}

func newAppConfig(reg prometheus.Registerer) *application.Config {
	return &application.Config{
		DBType:               config.GetString(config.DBTypeKey),
		DBConfig:             filepath.Join(config.GetDatadir(), config.DbLocation),
		FeeSplit:             config.GetFeeSplit(),
		NearExpiryThreshold:  config.GetDuration(config.NearExpiryThresholdKey),
		MaintenanceMarginBps: config.GetUint64(config.MaintenanceMarginBpsKey),
		QueueConfig:          config.GetQueueConfig(),
		BreakerMaxFailures:   uint32(config.GetInt(config.BreakerMaxFailuresKey)),
		KeeperConfig:         config.GetKeeperConfig(),
		PrometheusRegisterer: reg,
	}
}

// initLogger sets the log level and, if a log file is configured, tees the
// output to a rotated file.
func initLogger() func() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	logFile := config.GetLogFile()
	if logFile == "" {
		return func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return func() {
		log.SetOutput(os.Stderr)
		rotator.Close()
	}
}
