package ticks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"algoengine/src/gateway"
	"algoengine/src/model"
	"algoengine/src/repository"
)

// TickFunc receives simulated ticks in chronological order.
type TickFunc func(tick model.Tick) error

// Options wires the tick sources. Restore replays from the local cache;
// Persist stores downloaded pages for later restores.
type Options struct {
	Gateway    gateway.Gateway
	Repository *repository.KlineRepository
	Restore    bool
	Persist    bool
}

// Service turns historical klines into the simulated tick stream that
// drives backtests and historical filling.
type Service struct {
	log     *logrus.Entry
	options Options
}

func NewService(options Options) *Service {
	return &Service{
		log:     logrus.WithField("component", "ticks"),
		options: options,
	}
}

// Expand turns one kline into four simulated ticks. The intra-candle
// order is open, low, high, close, so long stop-losses are tested
// before take-profits.
func Expand(kline model.Kline) []model.Tick {
	open := time.Unix(kline.OpenTime, 0).UTC()

	duration := time.Duration(kline.CloseTime-kline.OpenTime) * time.Second
	if duration <= 0 {
		duration = time.Minute
	}
	quarter := duration / 4

	return []model.Tick{
		{IsSimulated: true, Price: kline.Open, Date: open},
		{IsSimulated: true, Price: kline.Low, Date: open.Add(quarter)},
		{IsSimulated: true, Price: kline.High, Date: open.Add(2 * quarter)},
		{IsSimulated: true, Price: kline.Close, Date: open.Add(3 * quarter)},
	}
}

// Replay streams simulated ticks for [from, to) to fn. The cache is
// used when restore is enabled and has data; otherwise klines are
// downloaded through the gateway, optionally persisting each page.
func (s *Service) Replay(ctx context.Context, symbol string, timeframe model.Timeframe, from, to time.Time, fn TickFunc) error {
	if s.options.Restore && s.options.Repository != nil {
		replayed, err := s.replayFromCache(ctx, symbol, from, to, fn)
		if err != nil {
			return err
		}
		if replayed {
			return nil
		}

		s.log.WithField("symbol", symbol).Warn("Tick cache is empty for the requested range, downloading")
	}

	return s.replayFromGateway(ctx, symbol, timeframe, from, to, fn)
}

func (s *Service) replayFromCache(ctx context.Context, symbol string, from, to time.Time, fn TickFunc) (bool, error) {
	source := ""
	if s.options.Gateway != nil {
		source = s.options.Gateway.Name()
	}

	klines, err := s.options.Repository.FindRange(ctx, source, symbol, from.Unix(), to.Unix())
	if err != nil {
		return false, fmt.Errorf("ticks: cache load: %w", err)
	}

	if len(klines) == 0 {
		return false, nil
	}

	s.log.WithFields(logrus.Fields{
		"symbol": symbol,
		"klines": len(klines),
	}).Info("Replaying ticks from cache")

	for _, kline := range klines {
		for _, tick := range Expand(kline) {
			if err := fn(tick); err != nil {
				return true, err
			}
		}
	}

	return true, nil
}

func (s *Service) replayFromGateway(ctx context.Context, symbol string, timeframe model.Timeframe, from, to time.Time, fn TickFunc) error {
	if s.options.Gateway == nil {
		return errors.New("ticks: no gateway configured")
	}

	return s.options.Gateway.Klines(ctx, symbol, timeframe, from, to, func(page []gateway.Kline) error {
		if s.options.Persist && s.options.Repository != nil {
			if err := s.options.Repository.SaveBatch(ctx, adaptKlines(page)); err != nil {
				s.log.WithError(err).Warn("Failed to persist kline page, continuing")
			}
		}

		for _, kline := range page {
			for _, tick := range Expand(adaptKline(kline)) {
				if err := fn(tick); err != nil {
					return err
				}
			}
		}

		return nil
	})
}

func adaptKline(kline gateway.Kline) model.Kline {
	return model.Kline{
		Source:      kline.Source,
		Symbol:      kline.Symbol,
		OpenTime:    kline.OpenTime,
		CloseTime:   kline.CloseTime,
		Open:        kline.Open,
		High:        kline.High,
		Low:         kline.Low,
		Close:       kline.Close,
		Volume:      kline.Volume,
		QuoteVolume: kline.QuoteVolume,
		Trades:      kline.Trades,
	}
}

func adaptKlines(page []gateway.Kline) []model.Kline {
	klines := make([]model.Kline, 0, len(page))
	for _, kline := range page {
		klines = append(klines, adaptKline(kline))
	}
	return klines
}
