package stats

import (
	"time"

	"github.com/rrrd/rrr/internal/tomlutil"
)

const (
	DefaultStatsInterval = tomlutil.Duration(10 * time.Second)
	// DefaultCustomer is the broker customer name stats messages are
	// published to when a config doesn't name one explicitly.
	DefaultCustomer = "_stats"
)

type Config struct {
	Enabled       bool             `toml:"enabled"`
	StatsInterval tomlutil.Duration `toml:"stats-interval"`
	Customer      string           `toml:"customer"`
}

func NewConfig() Config {
	return Config{
		Enabled:       true,
		StatsInterval: DefaultStatsInterval,
		Customer:      DefaultCustomer,
	}
}
