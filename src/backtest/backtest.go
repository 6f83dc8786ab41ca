package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"algoengine/src/asset"
	"algoengine/src/commands"
	"algoengine/src/horizon"
	"algoengine/src/model"
	"algoengine/src/portfolio"
	"algoengine/src/queue"
	"algoengine/src/repository"
	"algoengine/src/ticks"
	"algoengine/src/utils"
)

type Options struct {
	Portfolio    portfolio.Portfolio
	FromDate     time.Time
	ToDate       time.Time
	RestoreTicks bool
	Repository   *repository.KlineRepository
	Commands     *queue.Queue
	Events       *queue.Queue
}

// Service replays historical ticks through a portfolio. Each asset runs
// on its own goroutine over a strictly chronological tick stream; after
// the replay is exhausted the run is finalized and the commands worker
// is told to drain.
type Service struct {
	log     *logrus.Entry
	options Options

	backtestID string
}

func New(options Options) (*Service, error) {
	if len(options.Portfolio.Assets) == 0 {
		return nil, fmt.Errorf("backtest: portfolio %q has no assets", options.Portfolio.ID)
	}
	if options.FromDate.IsZero() || options.ToDate.IsZero() {
		return nil, fmt.Errorf("backtest: from and to dates are required")
	}
	if !options.FromDate.Before(options.ToDate) {
		return nil, fmt.Errorf("backtest: from date %s must precede to date %s", options.FromDate, options.ToDate)
	}
	if options.Commands == nil || options.Events == nil {
		return nil, fmt.Errorf("backtest: commands and events queues are required")
	}

	return &Service{
		log:        logrus.WithField("component", "backtest"),
		options:    options,
		backtestID: uuid.NewString(),
	}, nil
}

func (s *Service) BacktestID() string { return s.backtestID }

// Run executes the whole backtest and blocks until every asset has
// replayed its range. The commands queue receives a KILL envelope at
// the end so the worker drains and stops.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"backtest_id": s.backtestID,
		"portfolio":   s.options.Portfolio.ID,
		"from":        s.options.FromDate.Format(time.DateOnly),
		"to":          s.options.ToDate.Format(time.DateOnly),
	}).Info("Starting backtest")

	s.options.Commands.Put(queue.Envelope{
		Command:  queue.CommandExecute,
		Function: commands.FunctionBacktestCreate,
		Args: map[string]any{
			"backtest": horizon.Backtest{
				ID:        s.backtestID,
				Portfolio: utils.Slug(s.options.Portfolio.ID),
				FromDate:  s.options.FromDate,
				ToDate:    s.options.ToDate,
				Status:    "RUNNING",
			},
		},
	})

	assets := s.options.Portfolio.Build()

	setup := asset.SetupOptions{
		Backtest:   true,
		BacktestID: s.backtestID,
		Commands:   s.options.Commands,
		Events:     s.options.Events,
	}

	for _, a := range assets {
		if err := a.Setup(setup); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(assets))

	for _, a := range assets {
		wg.Add(1)

		go func(a *asset.Asset) {
			defer wg.Done()

			if err := s.replayAsset(ctx, a); err != nil {
				errs <- fmt.Errorf("backtest asset %s: %w", a.Name(), err)
			}
		}(a)
	}

	wg.Wait()
	close(errs)

	s.options.Commands.Put(queue.Envelope{Command: queue.CommandKill})

	for err := range errs {
		return err
	}

	return nil
}

// replayAsset streams the asset's simulated ticks and reports progress
// once per simulated day.
func (s *Service) replayAsset(ctx context.Context, a *asset.Asset) error {
	source := ticks.NewService(ticks.Options{
		Gateway:    a.Gateway(),
		Repository: s.options.Repository,
		Restore:    s.options.RestoreTicks,
		Persist:    s.options.Repository != nil,
	})

	var currentDay time.Time

	err := source.Replay(ctx, a.Symbol(), model.TimeframeOneMinute, s.options.FromDate, s.options.ToDate, func(tick model.Tick) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		day := model.TimeframeOneDay.Truncate(tick.Date)
		if day.After(currentDay) {
			if !currentDay.IsZero() {
				s.log.WithFields(logrus.Fields{
					"asset":    a.Name(),
					"date":     day.Format(time.DateOnly),
					"progress": fmt.Sprintf("%.1f%%", utils.ProgressBetweenDates(s.options.FromDate, s.options.ToDate, tick.Date)*100),
				}).Info("Backtest progress")
			}
			currentDay = day
		}

		a.OnTick(tick)
		return nil
	})
	if err != nil {
		return err
	}

	a.OnEnd()
	return nil
}
