package analytic

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RiskFreeRate        float64 `envconfig:"ANALYTIC_RISK_FREE_RATE" default:"0"`
	ShortfallConfidence float64 `envconfig:"ANALYTIC_SHORTFALL_CONFIDENCE" default:"0.95"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
