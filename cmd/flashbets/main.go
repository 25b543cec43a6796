package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gary322/flashbets-sub011/internal/config"
	"github.com/gary322/flashbets-sub011/internal/core/application"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var datadirFlag = cli.StringFlag{
	Name:  "datadir",
	Usage: "flashbets data directory, overrides FLASHBETS_DATADIR",
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "flashbets"
	app.Usage = "Command line interface for flashbets operators"
	app.Flags = []cli.Flag{&datadirFlag}
	app.Commands = append(
		app.Commands,
		&marketCmd,
		&positionCmd,
		&verseCmd,
	)
	return app
}

// getServices opens the datadir and returns the application config whose
// services operate on it. The returned cleanup closes the db.
func getServices(ctx *cli.Context) (*application.Config, func(), error) {
	if datadir := ctx.String(datadirFlag.Name); datadir != "" {
		if err := os.Setenv("FLASHBETS_DATADIR", datadir); err != nil {
			return nil, nil, err
		}
	}
	if err := config.InitConfig(); err != nil {
		return nil, nil, err
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	appConfig := &application.Config{
		DBType:               config.GetString(config.DBTypeKey),
		DBConfig:             filepath.Join(config.GetDatadir(), config.DbLocation),
		FeeSplit:             config.GetFeeSplit(),
		NearExpiryThreshold:  config.GetDuration(config.NearExpiryThresholdKey),
		MaintenanceMarginBps: config.GetUint64(config.MaintenanceMarginBpsKey),
		QueueConfig:          config.GetQueueConfig(),
		BreakerMaxFailures:   uint32(config.GetInt(config.BreakerMaxFailuresKey)),
	}
	if err := appConfig.Validate(); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := appConfig.RepoManager().Close(); err != nil {
			log.WithError(err).Warn("error while closing db")
		}
	}
	return appConfig, cleanup, nil
}

func printRespJSON(ctx *cli.Context, resp interface{}) error {
	buf, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return fmt.Errorf("unable to encode response: %w", err)
	}
	_, err = fmt.Fprintln(ctx.App.Writer, string(buf))
	return err
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[flashbets] %v\n", err)
	}
	os.Exit(1)
}
