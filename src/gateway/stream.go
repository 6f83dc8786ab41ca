package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"algoengine/src/model"
)

const (
	streamHandshakeTimeout = 15 * time.Second
	streamReadDeadline     = 30 * time.Second
)

type bookTickerEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol  string `json:"s"`
		BidRaw  string `json:"b"`
		AskRaw  string `json:"a"`
		EventMS int64  `json:"E"`
	} `json:"data"`
}

// Stream connects to the combined-stream endpoint and delivers one tick
// per bookTicker event. It returns when ctx is cancelled or the
// connection drops; reconnecting is the caller's job so backoff policy
// stays in one place.
func (b *Binance) Stream(ctx context.Context, streams []string, fn StreamFunc) error {
	endpoint := fmt.Sprintf("%s/stream?streams=%s", b.streamURL, strings.Join(streams, "/"))

	dialer := websocket.Dialer{
		HandshakeTimeout: streamHandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("binance stream dial: %w", err)
	}
	defer conn.Close()

	b.log.WithField("streams", strings.Join(streams, ",")).Info("Connected to gateway stream")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(b.now().Add(streamReadDeadline)); err != nil {
			return fmt.Errorf("binance stream deadline: %w", err)
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance stream read: %w", err)
		}

		var event bookTickerEvent
		if err := json.Unmarshal(message, &event); err != nil {
			b.log.WithError(err).Warn("Dropping unparsable stream message")
			continue
		}

		tick, ok := b.adaptStreamTick(event)
		if !ok {
			continue
		}

		fn(tick)
	}
}

// adaptStreamTick maps a bookTicker payload to a live tick. Price is
// the bid/ask midpoint; events without both sides are dropped.
func (b *Binance) adaptStreamTick(event bookTickerEvent) (model.Tick, bool) {
	bid := ParseOptionalFloat(event.Data.BidRaw)
	ask := ParseOptionalFloat(event.Data.AskRaw)

	if bid == 0 || ask == 0 {
		return model.Tick{}, false
	}

	date := b.now()
	if event.Data.EventMS > 0 {
		date = ParseTimestampMS(event.Data.EventMS)
	}

	return model.Tick{
		IsSimulated: false,
		Price:       (bid + ask) / 2,
		BidPrice:    bid,
		AskPrice:    ask,
		Date:        date,
	}, true
}
