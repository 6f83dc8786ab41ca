package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"9898"`

	// APIToken protects the status endpoint when set. The healthcheck
	// stays open for load balancers.
	APIToken string `envconfig:"API_TOKEN"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
