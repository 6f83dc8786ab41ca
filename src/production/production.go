package production

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"algoengine/src/asset"
	"algoengine/src/model"
	"algoengine/src/portfolio"
	"algoengine/src/queue"
	"algoengine/src/repository"
	"algoengine/src/server"
	"algoengine/src/ticks"
)

type Options struct {
	Portfolio      portfolio.Portfolio
	Commands       *queue.Queue
	Events         *queue.Queue
	Repository     *repository.KlineRepository
	HistoricalDays int
	StaleAfter     time.Duration
	ServerPort     string
	APIToken       string
}

// Service runs a portfolio against live exchange streams. Startup is
// verify, historical filling, then one websocket stream per asset with
// a supervisor that kicks streams gone silent.
type Service struct {
	log     *logrus.Entry
	options Options

	assets []*asset.Asset

	// streamCancels maps asset name to the cancel func of its current
	// stream connection so the supervisor can force a redial.
	streamCancels sync.Map
}

func New(options Options) (*Service, error) {
	if len(options.Portfolio.Assets) == 0 {
		return nil, fmt.Errorf("production: portfolio %q has no assets", options.Portfolio.ID)
	}
	if options.Commands == nil || options.Events == nil {
		return nil, errors.New("production: commands and events queues are required")
	}

	if options.HistoricalDays <= 0 {
		options.HistoricalDays = 365
	}
	if options.StaleAfter <= 0 {
		options.StaleAfter = 10 * time.Second
	}
	if options.ServerPort == "" {
		options.ServerPort = "9898"
	}

	return &Service{
		log:     logrus.WithField("component", "production"),
		options: options,
	}, nil
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithField("portfolio", s.options.Portfolio.ID).Info("Starting production run")

	s.assets = s.options.Portfolio.Build()

	setup := asset.SetupOptions{
		Backtest: false,
		Commands: s.options.Commands,
		Events:   s.options.Events,
	}

	for _, a := range s.assets {
		if err := a.Setup(setup); err != nil {
			return err
		}
	}

	// Preflight every asset before touching money.
	for _, a := range s.assets {
		if err := a.Verify(ctx); err != nil {
			return err
		}
	}

	for _, a := range s.assets {
		if err := s.fillHistory(ctx, a); err != nil {
			return err
		}
	}

	statusServer := server.New(s.options.ServerPort, s.options.APIToken, s.assets)
	statusServer.Start()
	defer statusServer.Shutdown(context.Background())

	var wg sync.WaitGroup

	for _, a := range s.assets {
		wg.Add(1)
		go func(a *asset.Asset) {
			defer wg.Done()
			s.streamAsset(ctx, a)
		}(a)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.supervise(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	for _, a := range s.assets {
		a.OnEnd()
	}

	s.options.Commands.Put(queue.Envelope{Command: queue.CommandKill})

	return nil
}

// fillHistory replays recent klines so indicators are warm before the
// first live tick. Order placement stays suppressed throughout.
func (s *Service) fillHistory(ctx context.Context, a *asset.Asset) error {
	from := time.Now().UTC().AddDate(0, 0, -s.options.HistoricalDays)
	to := time.Now().UTC()

	s.log.WithFields(logrus.Fields{
		"asset": a.Name(),
		"days":  s.options.HistoricalDays,
	}).Info("Starting historical filling")

	a.StartHistoricalFilling()
	defer a.StopHistoricalFilling()

	source := ticks.NewService(ticks.Options{
		Gateway:    a.Gateway(),
		Repository: s.options.Repository,
		Persist:    s.options.Repository != nil,
	})

	err := source.Replay(ctx, a.Symbol(), model.TimeframeOneHour, from, to, func(tick model.Tick) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.OnTick(tick)
		return nil
	})
	if err != nil {
		return fmt.Errorf("production historical filling %s: %w", a.Name(), err)
	}

	s.log.WithField("asset", a.Name()).Info("Historical filling completed")

	return nil
}

// streamAsset keeps one live stream connected, redialing whenever the
// connection drops or the supervisor cancels it.
func (s *Service) streamAsset(ctx context.Context, a *asset.Asset) {
	streams := []string{strings.ToLower(a.Symbol()) + "@bookTicker"}

	for {
		if ctx.Err() != nil {
			return
		}

		streamCtx, cancel := context.WithCancel(ctx)
		s.streamCancels.Store(a.Name(), cancel)

		err := a.Gateway().Stream(streamCtx, streams, func(tick model.Tick) {
			a.OnTick(tick)
		})
		cancel()

		if ctx.Err() != nil {
			return
		}

		s.log.WithError(err).WithField("asset", a.Name()).Warn("Stream disconnected, redialing")
		time.Sleep(time.Second)
	}
}

// supervise restarts streams that stopped delivering ticks.
func (s *Service) supervise(ctx context.Context) {
	ticker := time.NewTicker(s.options.StaleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range s.assets {
				last := a.LastTickAt()
				if last.IsZero() || time.Since(last) < s.options.StaleAfter {
					continue
				}

				s.log.WithFields(logrus.Fields{
					"asset":    a.Name(),
					"last_at":  last,
					"stale_by": time.Since(last),
				}).Warn("Asset stream is stale, forcing reconnect")

				if cancel, ok := s.streamCancels.Load(a.Name()); ok {
					cancel.(context.CancelFunc)()
				}
			}
		}
	}
}
