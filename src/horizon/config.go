package horizon

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL       string        `envconfig:"HORIZON_BASE_URL" default:"http://localhost:8000"`
	APIKey        string        `envconfig:"HORIZON_API_KEY"`
	Timeout       time.Duration `envconfig:"HORIZON_TIMEOUT" default:"10s"`
	RetryCount    int           `envconfig:"HORIZON_RETRY_COUNT" default:"3"`
	RetryWaitTime time.Duration `envconfig:"HORIZON_RETRY_WAIT_TIME" default:"500ms"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
