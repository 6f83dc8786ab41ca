package horizon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"algoengine/src/model"
)

// Backtest is the run record the reporting API tracks.
type Backtest struct {
	ID        string    `json:"id"`
	Portfolio string    `json:"portfolio"`
	FromDate  time.Time `json:"from_date"`
	ToDate    time.Time `json:"to_date"`
	Status    string    `json:"status"`
}

// Client talks to the Horizon reporting API. Only the commands worker
// and the backtest bootstrap use it; the engine itself never blocks on
// reporting.
type Client struct {
	log  *logrus.Entry
	http *resty.Client
}

func NewClient(config Config) *Client {
	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(config.RetryWaitTime).
		AddRetryCondition(func(response *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			status := response.StatusCode()
			return status == http.StatusRequestTimeout ||
				status == http.StatusTooManyRequests ||
				status >= http.StatusInternalServerError
		})

	if config.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+config.APIKey)
	}

	return &Client{
		log:  logrus.WithField("component", "horizon"),
		http: client,
	}
}

func (c *Client) CreateOrder(ctx context.Context, strategyID, backtestID string, order *model.Order) error {
	payload := map[string]any{
		"strategy_id": strategyID,
		"backtest_id": backtestID,
		"order":       order,
	}

	return c.post(ctx, "/api/orders", payload)
}

func (c *Client) CreateSnapshot(ctx context.Context, strategyID, backtestID string, snapshot model.Snapshot) error {
	payload := map[string]any{
		"strategy_id": strategyID,
		"backtest_id": backtestID,
		"snapshot":    snapshot,
	}

	return c.post(ctx, "/api/snapshots", payload)
}

func (c *Client) CreateBacktest(ctx context.Context, backtest Backtest) error {
	return c.post(ctx, "/api/backtests", backtest)
}

func (c *Client) UpdateBacktest(ctx context.Context, backtestID, status string) error {
	response, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"status": status}).
		Patch("/api/backtests/" + backtestID)
	if err != nil {
		return fmt.Errorf("horizon update backtest: %w", err)
	}

	if response.IsError() {
		return fmt.Errorf("horizon update backtest: status %d: %s", response.StatusCode(), response.String())
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	response, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(path)
	if err != nil {
		return fmt.Errorf("horizon post %s: %w", path, err)
	}

	if response.IsError() {
		return fmt.Errorf("horizon post %s: status %d: %s", path, response.StatusCode(), response.String())
	}

	return nil
}
