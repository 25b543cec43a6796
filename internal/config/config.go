package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/liquidation"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// LogFileKey is the optional path of a rotated log file, relative to the
	// datadir if not absolute
	LogFileKey = "LOG_FILE"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// NearExpiryThresholdKey is the time to expiry under which discrete markets
	// are created with PM-AMM
	NearExpiryThresholdKey = "NEAR_EXPIRY_THRESHOLD"
	// MonitoringThresholdKey is the risk score from which positions are
	// tracked by the liquidation queue
	MonitoringThresholdKey = "MONITORING_THRESHOLD"
	// LiquidationThresholdKey is the risk score from which positions are
	// liquidated
	LiquidationThresholdKey = "LIQUIDATION_THRESHOLD"
	// LiquidationQueueSizeKey is the max number of candidates tracked
	LiquidationQueueSizeKey = "LIQUIDATION_QUEUE_SIZE"
	// StaleCandidateAgeKey is the age after which a candidate not reassessed
	// is dropped from the queue
	StaleCandidateAgeKey = "STALE_CANDIDATE_AGE"
	// MaintenanceMarginBpsKey is the maintenance margin ratio in basis points
	MaintenanceMarginBpsKey = "MAINTENANCE_MARGIN_BPS"
	// KeeperIntervalKey is the time between two keeper ticks
	KeeperIntervalKey = "KEEPER_INTERVAL"
	// KeeperBatchSizeKey is the max number of liquidations per keeper tick
	KeeperBatchSizeKey = "KEEPER_BATCH_SIZE"
	// KeeperRateLimitKey is the max number of liquidations per second
	KeeperRateLimitKey = "KEEPER_RATE_LIMIT"
	// FeeSplitVaultKey is the share of trade fees going to the market vault, in bps
	FeeSplitVaultKey = "FEE_SPLIT_VAULT"
	// FeeSplitRewardsKey is the share of trade fees going to rewards, in bps
	FeeSplitRewardsKey = "FEE_SPLIT_REWARDS"
	// FeeSplitBurnKey is the share of trade fees burnt, in bps
	FeeSplitBurnKey = "FEE_SPLIT_BURN"
	// BreakerMaxFailuresKey is the number of consecutive invariant violations
	// after which a market is halted
	BreakerMaxFailuresKey = "BREAKER_MAX_FAILURES"
	// EnableProfilerKey enables profiler that can be used to investigate performance issues
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines interval for printing basic flashbets statistics
	StatsIntervalKey = "STATS_INTERVAL"

	DbLocation       = "db"
	LogLocation      = "logs"
	ProfilerLocation = "stats"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("flashbets", false)

// InitConfig loads the .env file of the working directory, if any, and reads
// the config from the environment.
func InitConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error while loading .env file: %s", err)
	}

	vip = viper.New()
	vip.SetEnvPrefix("FLASHBETS")
	vip.AutomaticEnv()

	queueCfg := liquidation.DefaultQueueConfig()
	feeSplit := mathutil.DefaultFeeSplit

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(DBTypeKey, application.DBBadger)
	vip.SetDefault(NearExpiryThresholdKey, marketmaking.DefaultNearExpiryThreshold)
	vip.SetDefault(MonitoringThresholdKey, queueCfg.MonitoringThreshold)
	vip.SetDefault(LiquidationThresholdKey, queueCfg.LiquidationThreshold)
	vip.SetDefault(LiquidationQueueSizeKey, queueCfg.MaxSize)
	vip.SetDefault(StaleCandidateAgeKey, queueCfg.StaleAfter)
	vip.SetDefault(MaintenanceMarginBpsKey, application.DefaultMaintenanceMarginBps)
	vip.SetDefault(KeeperIntervalKey, application.DefaultKeeperInterval)
	vip.SetDefault(KeeperBatchSizeKey, application.DefaultKeeperBatchSize)
	vip.SetDefault(KeeperRateLimitKey, application.DefaultKeeperRateLimit)
	vip.SetDefault(FeeSplitVaultKey, feeSplit.VaultBps)
	vip.SetDefault(FeeSplitRewardsKey, feeSplit.RewardsBps)
	vip.SetDefault(FeeSplitBurnKey, feeSplit.BurnBps)
	vip.SetDefault(BreakerMaxFailuresKey, 1)
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetUint64(key string) uint64 {
	return vip.GetUint64(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetLogFile returns the path of the log file, empty if file logging is
// disabled.
func GetLogFile() string {
	logFile := GetString(LogFileKey)
	if logFile == "" || filepath.IsAbs(logFile) {
		return logFile
	}
	return filepath.Join(GetDatadir(), LogLocation, logFile)
}

// GetFeeSplit ...
func GetFeeSplit() mathutil.FeeSplit {
	return mathutil.FeeSplit{
		VaultBps:   GetUint64(FeeSplitVaultKey),
		RewardsBps: GetUint64(FeeSplitRewardsKey),
		BurnBps:    GetUint64(FeeSplitBurnKey),
	}
}

// GetQueueConfig ...
func GetQueueConfig() liquidation.QueueConfig {
	return liquidation.QueueConfig{
		MaxSize:              GetInt(LiquidationQueueSizeKey),
		MonitoringThreshold:  uint8(GetInt(MonitoringThresholdKey)),
		LiquidationThreshold: uint8(GetInt(LiquidationThresholdKey)),
		StaleAfter:           GetDuration(StaleCandidateAgeKey),
	}
}

// GetKeeperConfig ...
func GetKeeperConfig() application.KeeperConfig {
	return application.KeeperConfig{
		Interval:  GetDuration(KeeperIntervalKey),
		BatchSize: GetInt(KeeperBatchSizeKey),
		RateLimit: GetInt(KeeperRateLimitKey),
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	dbType := GetString(DBTypeKey)
	if _, ok := application.SupportedDBType[dbType]; !ok {
		return fmt.Errorf("%s: unsupported db type %q", DBTypeKey, dbType)
	}

	if err := GetFeeSplit().Validate(); err != nil {
		return err
	}

	for _, key := range []string{MonitoringThresholdKey, LiquidationThresholdKey} {
		if v := GetInt(key); v < 0 || v > liquidation.MaxRiskScore {
			return fmt.Errorf("%s must be in range [0, %d]", key, liquidation.MaxRiskScore)
		}
	}
	if GetInt(MonitoringThresholdKey) > GetInt(LiquidationThresholdKey) {
		return fmt.Errorf(
			"%s must not exceed %s", MonitoringThresholdKey, LiquidationThresholdKey,
		)
	}
	if GetInt(LiquidationQueueSizeKey) <= 0 {
		return fmt.Errorf("%s must be positive", LiquidationQueueSizeKey)
	}

	mmr := GetUint64(MaintenanceMarginBpsKey)
	if mmr == 0 || mmr > fixedpoint.MaxBps {
		return fmt.Errorf("%s must be in range (0, %d]", MaintenanceMarginBpsKey, fixedpoint.MaxBps)
	}

	for _, key := range []string{
		NearExpiryThresholdKey, StaleCandidateAgeKey, KeeperIntervalKey,
	} {
		if GetDuration(key) <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}
	if GetInt(KeeperBatchSizeKey) <= 0 || GetInt(KeeperRateLimitKey) <= 0 {
		return fmt.Errorf(
			"%s and %s must be positive", KeeperBatchSizeKey, KeeperRateLimitKey,
		)
	}
	if GetInt(BreakerMaxFailuresKey) <= 0 {
		return fmt.Errorf("%s must be positive", BreakerMaxFailuresKey)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	if GetString(LogFileKey) != "" {
		if err := makeDirectoryIfNotExists(filepath.Dir(GetLogFile())); err != nil {
			return err
		}
	}

	profilerEnabled := GetBool(EnableProfilerKey)
	if profilerEnabled {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
