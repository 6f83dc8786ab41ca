package gateway

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BinanceAPIKey    string `envconfig:"BINANCE_API_KEY"`
	BinanceAPISecret string `envconfig:"BINANCE_API_SECRET"`
	BinanceSandbox   bool   `envconfig:"BINANCE_SANDBOX" default:"false"`

	HTTPTimeoutSeconds  int `envconfig:"GATEWAY_HTTP_TIMEOUT_SECONDS" default:"15"`
	RetryCount          int `envconfig:"GATEWAY_RETRY_COUNT" default:"4"`
	RetryWaitMillis     int `envconfig:"GATEWAY_RETRY_WAIT_MILLIS" default:"500"`
	KlinePageLimit      int `envconfig:"GATEWAY_KLINE_PAGE_LIMIT" default:"1500"`
	KlinePagePauseMills int `envconfig:"GATEWAY_KLINE_PAGE_PAUSE_MILLIS" default:"250"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
