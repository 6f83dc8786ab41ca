package main

import (
	"fmt"
	"os"
	"strings"

	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	backtestcmd "algoengine/cmd/backtest"
	klinescmd "algoengine/cmd/klines"
	productioncmd "algoengine/cmd/production"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "algoengine"
	app.Usage = "The algoengine command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		backtestCMD,
		productionCMD,
		klinesCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	backtestCMD = cli.Command{
		Name:      "backtest",
		Usage:     "replay a portfolio against historical data",
		Action:    backtestAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "portfolio", Usage: "portfolio id to run", Required: true},
			cli.StringFlag{Name: "from-date", Usage: "start date (YYYY-MM-DD)", Required: true},
			cli.StringFlag{Name: "to-date", Usage: "end date (YYYY-MM-DD), defaults to today"},
			cli.BoolFlag{Name: "restore-ticks", Usage: "replay klines from the local tick cache"},
		},
		Description: `Replay every asset of a portfolio over a date range and report the results`,
	}
	productionCMD = cli.Command{
		Name:      "production",
		Usage:     "trade a portfolio live",
		Action:    productionAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "portfolio", Usage: "portfolio id to run", Required: true},
		},
		Description: `Verify, warm up from history and trade a portfolio on live streams`,
	}
	klinesCMD = cli.Command{
		Name:      "klines",
		Usage:     "prefetch OHLCV candles into the tick cache",
		Action:    klinesAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "symbol", Usage: "base asset, e.g. BTC", Required: true},
			cli.StringFlag{Name: "quote", Usage: "quote asset", Value: "USDT"},
			cli.StringFlag{Name: "timeframe", Usage: "candle timeframe (1m, 1h, 1d)", Value: "1m"},
			cli.StringFlag{Name: "from-date", Usage: "start date (YYYY-MM-DD)", Required: true},
			cli.StringFlag{Name: "to-date", Usage: "end date (YYYY-MM-DD), defaults to today"},
		},
		Description: `Download candles through goex and store them for --restore-ticks backtests`,
	}
)

func backtestAction(c *cli.Context) error {
	logger.Info("Starting backtest CMD")

	cmd := &backtestcmd.Backtest{Log: logger.WithField("cmd", "backtest")}

	return cmd.Start(backtestcmd.Args{
		Portfolio:    c.String("portfolio"),
		FromDate:     c.String("from-date"),
		ToDate:       c.String("to-date"),
		RestoreTicks: c.Bool("restore-ticks"),
	})
}

func productionAction(c *cli.Context) error {
	logger.Info("Starting production CMD")

	cmd := &productioncmd.Production{Log: logger.WithField("cmd", "production")}

	return cmd.Start(c.String("portfolio"))
}

func klinesAction(c *cli.Context) error {
	logger.Info("Starting klines CMD")

	cmd := &klinescmd.Klines{Log: logger.WithField("cmd", "klines")}

	return cmd.Start(klinescmd.Args{
		Symbol:    c.String("symbol"),
		Quote:     c.String("quote"),
		Timeframe: c.String("timeframe"),
		FromDate:  c.String("from-date"),
		ToDate:    c.String("to-date"),
	})
}
