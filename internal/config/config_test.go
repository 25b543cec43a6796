package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/internal/config"
	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	datadir := t.TempDir()
	t.Setenv("FLASHBETS_DATADIR", datadir)
	t.Setenv("FLASHBETS_LOG_FILE", "flashbetsd.log")
	t.Setenv("FLASHBETS_KEEPER_INTERVAL", "3s")

	err := config.InitConfig()
	require.NoError(t, err)

	require.Equal(t, datadir, config.GetDatadir())
	require.Equal(t, application.DBBadger, config.GetString(config.DBTypeKey))
	require.Equal(t, mathutil.DefaultFeeSplit, config.GetFeeSplit())
	require.Equal(t, 3*time.Second, config.GetKeeperConfig().Interval)
	require.Equal(
		t, filepath.Join(datadir, config.LogLocation, "flashbetsd.log"),
		config.GetLogFile(),
	)

	for _, dir := range []string{config.DbLocation, config.LogLocation} {
		info, err := os.Stat(filepath.Join(datadir, dir))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
	_, err = os.Stat(filepath.Join(datadir, config.ProfilerLocation))
	require.True(t, os.IsNotExist(err))
}

func TestFailingInitConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unsupported db type",
			env:  map[string]string{"FLASHBETS_DB_TYPE": "postgres"},
		},
		{
			name: "fee split not summing to 100%",
			env:  map[string]string{"FLASHBETS_FEE_SPLIT_BURN": "2000"},
		},
		{
			name: "monitoring above liquidation threshold",
			env: map[string]string{
				"FLASHBETS_MONITORING_THRESHOLD":  "95",
				"FLASHBETS_LIQUIDATION_THRESHOLD": "90",
			},
		},
		{
			name: "liquidation threshold out of range",
			env:  map[string]string{"FLASHBETS_LIQUIDATION_THRESHOLD": "101"},
		},
		{
			name: "zero maintenance margin",
			env:  map[string]string{"FLASHBETS_MAINTENANCE_MARGIN_BPS": "0"},
		},
		{
			name: "zero keeper interval",
			env:  map[string]string{"FLASHBETS_KEEPER_INTERVAL": "0s"},
		},
		{
			name: "zero batch size",
			env:  map[string]string{"FLASHBETS_KEEPER_BATCH_SIZE": "0"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FLASHBETS_DATADIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := config.InitConfig()
			require.Error(t, err)
		})
	}
}
