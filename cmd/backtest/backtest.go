package backtest

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"algoengine/src/backtest"
	"algoengine/src/commands"
	"algoengine/src/database"
	"algoengine/src/horizon"
	"algoengine/src/portfolio"
	"algoengine/src/queue"
	"algoengine/src/repository"
)

type Args struct {
	Portfolio    string
	FromDate     string
	ToDate       string
	RestoreTicks bool
}

type Backtest struct {
	Log *logger.Entry
}

// Start validates the arguments, wires the run and blocks until the
// replay and the reporting drain are both done. Validation failures
// happen before any goroutine spawns.
func (b *Backtest) Start(args Args) error {
	from, err := time.Parse(time.DateOnly, args.FromDate)
	if err != nil {
		return fmt.Errorf("backtest: invalid from-date %q: %w", args.FromDate, err)
	}

	to := time.Now().UTC().Truncate(24 * time.Hour)
	if args.ToDate != "" {
		to, err = time.Parse(time.DateOnly, args.ToDate)
		if err != nil {
			return fmt.Errorf("backtest: invalid to-date %q: %w", args.ToDate, err)
		}
	}

	p, err := portfolio.ByName(args.Portfolio)
	if err != nil {
		return err
	}

	db, err := database.Connect(database.GetConfig())
	if err != nil {
		return err
	}
	repo := repository.NewKlineRepository(db)

	commandsQueue := queue.New()
	eventsQueue := queue.New()

	worker := commands.NewWorker(commandsQueue, horizon.NewClient(horizon.GetConfig()))
	worker.Start()

	service, err := backtest.New(backtest.Options{
		Portfolio:    p,
		FromDate:     from,
		ToDate:       to,
		RestoreTicks: args.RestoreTicks,
		Repository:   repo,
		Commands:     commandsQueue,
		Events:       eventsQueue,
	})
	if err != nil {
		return err
	}

	b.Log.WithField("backtest_id", service.BacktestID()).Info("Backtest created")

	if err := service.Run(context.Background()); err != nil {
		return err
	}

	// The replay queued a KILL envelope; wait for the reporting drain.
	worker.Wait()

	return nil
}
