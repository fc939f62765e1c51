package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/orderflow/fulfillment-system/fulfillment-service/application"
)

// Config holds the simulated warehouse timings. Values are read from
// the same viper instance the host configures; only the keys below are
// consulted.
type Config struct {
	PickDelayPerItemMs  int `mapstructure:"pick_delay_per_item_ms"`
	QualityCheckDelayMs int `mapstructure:"quality_check_delay_ms"`
	PackingDelayMs      int `mapstructure:"packing_delay_ms"`
	PickupWaitDelayMs   int `mapstructure:"pickup_wait_delay_ms"`
}

func ReadConfig() (*Config, error) {
	viper.SetDefault("fulfillment.pick_delay_per_item_ms", 300)
	viper.SetDefault("fulfillment.quality_check_delay_ms", 500)
	viper.SetDefault("fulfillment.packing_delay_ms", 700)
	viper.SetDefault("fulfillment.pickup_wait_delay_ms", 500)

	var config Config
	if err := viper.UnmarshalKey("fulfillment", &config); err != nil {
		return nil, fmt.Errorf("error unmarshaling fulfillment config: %w", err)
	}
	return &config, nil
}

// Timings converts the configured delays to application timings
func (c *Config) Timings() application.Timings {
	return application.Timings{
		PickDelayPerItem:  time.Duration(c.PickDelayPerItemMs) * time.Millisecond,
		QualityCheckDelay: time.Duration(c.QualityCheckDelayMs) * time.Millisecond,
		PackingDelay:      time.Duration(c.PackingDelayMs) * time.Millisecond,
		PickupWaitDelay:   time.Duration(c.PickupWaitDelayMs) * time.Millisecond,
	}
}
