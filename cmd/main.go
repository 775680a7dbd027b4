package main

import (
	"context"
	"fmt"
	"os"

	"papertrader/cmd/backfill"
	"papertrader/cmd/pricefeed"
	"papertrader/src/database"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Papertrader CMD"
	app.Usage = "The papertrader command line interface"

	app.Commands = []cli.Command{
		pricefeedCMD,
		backfillCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	pricefeedCMD = cli.Command{
		Name:        "pricefeed",
		Usage:       "run the periodic market listing poll loop",
		Action:      pricefeedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Poll the market listing endpoint and append price points`,
	}
	backfillCMD = cli.Command{
		Name:        "backfill",
		Usage:       "seed price history from exchange klines",
		Action:      backfillAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Pull klines for one symbol and ingest their closes`,
	}
)

func pricefeedAction(_ *cli.Context) error {

	logrus.Info("Starting pricefeed CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	loop := &pricefeed.PriceFeed{
		Log: logrus.WithField("cmd", "pricefeed"),
		DB:  database.MainDB,
	}

	if err := loop.Start(context.Background()); err != nil {
		logrus.WithError(err).Error("Starting pricefeed cmd")
		return err
	}

	return nil
}

func backfillAction(_ *cli.Context) error {

	logrus.Info("Starting backfill CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	job := &backfill.Backfill{
		Log: logrus.WithField("cmd", "backfill"),
		DB:  database.MainDB,
	}

	if err := job.Start(context.Background()); err != nil {
		logrus.WithError(err).Error("Starting backfill cmd")
		return err
	}

	return nil
}
