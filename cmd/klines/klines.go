package klines

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	logger "github.com/sirupsen/logrus"

	"algoengine/src/database"
	"algoengine/src/model"
	"algoengine/src/repository"
)

const (
	pageLimit = 1000
	pagePause = 250 * time.Millisecond
)

type Args struct {
	Symbol    string
	Quote     string
	Timeframe string
	FromDate  string
	ToDate    string
}

// Klines prefetches OHLCV candles into the tick cache so backtests can
// run with --restore-ticks instead of hitting the exchange.
type Klines struct {
	Log *logger.Entry

	exchange goex.API
	repo     *repository.KlineRepository
}

func (k *Klines) Start(args Args) error {
	from, err := time.Parse(time.DateOnly, args.FromDate)
	if err != nil {
		return fmt.Errorf("klines: invalid from-date %q: %w", args.FromDate, err)
	}

	to := time.Now().UTC()
	if args.ToDate != "" {
		to, err = time.Parse(time.DateOnly, args.ToDate)
		if err != nil {
			return fmt.Errorf("klines: invalid to-date %q: %w", args.ToDate, err)
		}
	}

	period, duration, err := parseTimeframe(args.Timeframe)
	if err != nil {
		return err
	}

	db, err := database.Connect(database.GetConfig())
	if err != nil {
		return err
	}
	k.repo = repository.NewKlineRepository(db)

	if k.exchange == nil {
		k.exchange = newBinanceInstance()
	}

	return k.download(args, period, duration, from, to)
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (k *Klines) download(args Args, period goex.KlinePeriod, duration time.Duration, from, to time.Time) error {
	pair := goex.NewCurrencyPair(goex.Currency{Symbol: args.Symbol}, goex.Currency{Symbol: args.Quote})
	symbol := args.Symbol + args.Quote

	const millis = 1000
	cursor := from
	total := 0

	for cursor.Before(to) {
		series, err := k.exchange.GetKlineRecords(
			pair,
			period,
			pageLimit,
			goex.OptionalParameter{}.
				Optional("startTime", cursor.Unix()*millis).
				Optional("endTime", to.Unix()*millis),
		)
		if err != nil {
			return fmt.Errorf("klines: download page: %w", err)
		}

		if len(series) == 0 {
			break
		}

		batch := make([]model.Kline, 0, len(series))
		for _, candle := range series {
			batch = append(batch, model.Kline{
				Source:    "binance",
				Symbol:    symbol,
				OpenTime:  candle.Timestamp,
				CloseTime: candle.Timestamp + int64(duration.Seconds()) - 1,
				Open:      candle.Open,
				High:      candle.High,
				Low:       candle.Low,
				Close:     candle.Close,
				Volume:    candle.Vol,
			})
		}

		if err := k.repo.SaveBatch(context.Background(), batch); err != nil {
			return fmt.Errorf("klines: save page: %w", err)
		}

		total += len(batch)
		k.Log.WithFields(logger.Fields{
			"symbol": symbol,
			"cursor": cursor.Format(time.DateTime),
			"total":  total,
		}).Info("Kline page cached")

		last := series[len(series)-1].Timestamp
		next := time.Unix(last, 0).UTC().Add(duration)
		if !next.After(cursor) {
			break
		}
		cursor = next

		time.Sleep(pagePause)
	}

	k.Log.WithFields(logger.Fields{
		"symbol": symbol,
		"total":  total,
	}).Info("Kline prefetch completed")

	return nil
}

func parseTimeframe(timeframe string) (goex.KlinePeriod, time.Duration, error) {
	switch timeframe {
	case "1m":
		return goex.KLINE_PERIOD_1MIN, time.Minute, nil
	case "1h":
		return goex.KLINE_PERIOD_1H, time.Hour, nil
	case "1d":
		return goex.KLINE_PERIOD_1DAY, 24 * time.Hour, nil
	default:
		return 0, 0, fmt.Errorf("klines: unsupported timeframe %q, allowed: 1m, 1h, 1d", timeframe)
	}
}
