package production

import (
	"context"
	"sync"
	"testing"
	"time"

	"algoengine/src/asset"
	"algoengine/src/gateway"
	"algoengine/src/model"
	"algoengine/src/portfolio"
	"algoengine/src/queue"
	"algoengine/src/strategy"
)

type liveGateway struct {
	gateway.Gateway

	mu       sync.Mutex
	verified int
}

func (g *liveGateway) Name() string { return "live" }

func (g *liveGateway) Verify(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified++
	return nil
}

func (g *liveGateway) Setup(context.Context, string) error            { return nil }
func (g *liveGateway) SetLeverage(context.Context, string, int) error { return nil }

func (g *liveGateway) Klines(_ context.Context, symbol string, _ model.Timeframe, from, _ time.Time, fn gateway.KlinesFunc) error {
	open := from.Truncate(time.Hour)
	return fn([]gateway.Kline{
		{Source: "live", Symbol: symbol, OpenTime: open.Unix(), CloseTime: open.Add(time.Hour).Unix() - 1, Open: 100, High: 101, Low: 99, Close: 100},
		{Source: "live", Symbol: symbol, OpenTime: open.Add(time.Hour).Unix(), CloseTime: open.Add(2 * time.Hour).Unix() - 1, Open: 100, High: 102, Low: 98, Close: 101},
	})
}

func (g *liveGateway) Stream(ctx context.Context, _ []string, fn gateway.StreamFunc) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(model.Tick{Price: 100, Date: time.Now().UTC()})
		}
	}
}

func init() {
	gateway.Register("live", func() (gateway.Gateway, error) {
		return sharedGateway, nil
	})
}

var sharedGateway = &liveGateway{}

type observingStrategy struct {
	mu sync.Mutex

	env       strategy.Environment
	simulated int
	live      int
	// filledDuringReplay is false if any simulated tick arrived while
	// the historical filling flag was down.
	filledDuringReplay bool
	ended              bool
}

func (s *observingStrategy) ID() string      { return "observer" }
func (s *observingStrategy) IsEnabled() bool { return true }

func (s *observingStrategy) Setup(env strategy.Environment) error {
	s.env = env
	s.filledDuringReplay = true
	return nil
}

func (s *observingStrategy) OnTick(tick model.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tick.IsSimulated {
		s.simulated++
		if !s.env.Asset.IsHistoricalFilling() {
			s.filledDuringReplay = false
		}
		return
	}
	s.live++
}

func (s *observingStrategy) OnTransaction(*model.Order) {}

func (s *observingStrategy) OnEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

func (s *observingStrategy) counts() (int, int, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simulated, s.live, s.filledDuringReplay, s.ended
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty portfolio")
	}

	p := portfolio.Portfolio{
		ID:     "p",
		Assets: []func() *asset.Asset{func() *asset.Asset { return asset.New("btc", "BTCUSDT", "live") }},
	}

	if _, err := New(Options{Portfolio: p}); err == nil {
		t.Fatal("expected error without queues")
	}
}

func TestRunFillsHistoryThenStreams(t *testing.T) {
	observer := &observingStrategy{}

	p := portfolio.Portfolio{
		ID: "p",
		Assets: []func() *asset.Asset{
			func() *asset.Asset { return asset.New("btc", "BTCUSDT", "live", observer) },
		},
	}

	commandsQueue := queue.NewWithCapacity(1024)

	service, err := New(Options{
		Portfolio:      p,
		Commands:       commandsQueue,
		Events:         queue.NewWithCapacity(16),
		HistoricalDays: 1,
		ServerPort:     "0",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		_, live, _, _ := observer.counts()
		if live >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for live ticks")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	simulated, live, filledDuringReplay, ended := observer.counts()

	// Two historical klines expand to 4 ticks each.
	if simulated != 8 {
		t.Fatalf("expected 8 simulated ticks, got %d", simulated)
	}
	if live < 2 {
		t.Fatalf("expected live ticks after filling, got %d", live)
	}
	if !filledDuringReplay {
		t.Fatal("historical filling flag must be up for every simulated tick")
	}
	if !ended {
		t.Fatal("expected OnEnd on shutdown")
	}

	sharedGateway.mu.Lock()
	verified := sharedGateway.verified
	sharedGateway.mu.Unlock()
	if verified == 0 {
		t.Fatal("expected gateway verification before trading")
	}

	var sawKill bool
	for {
		envelope, ok := commandsQueue.TryGet()
		if !ok {
			break
		}
		if envelope.Command == queue.CommandKill {
			sawKill = true
		}
	}
	if !sawKill {
		t.Fatal("expected KILL envelope on shutdown")
	}
}
