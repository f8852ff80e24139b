package sim

import (
	"time"

	"github.com/tphummel/rackops/internal/ledger"
)

// Config holds the game balance constants.
type Config struct {
	StartCash        float64
	StartTime        time.Time
	Ledger           ledger.Params
	PowerPricePerKWh float64
	EventLogCap      int
	// NotificationCap bounds queued toasts and open alerts; the oldest are
	// dropped first.
	NotificationCap int
	InternalSubnet  string
	Speeds          []float64

	EdgeTriggeredDaemons bool
	ReleaseStagedOnAbort bool
}

// DefaultConfig returns the configuration of a new game.
func DefaultConfig() Config {
	return Config{
		StartCash:        75000,
		StartTime:        time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC),
		Ledger:           ledger.DefaultParams(),
		PowerPricePerKWh: 0.14,
		EventLogCap:      500,
		NotificationCap:  100,
		InternalSubnet:   "10.0.0.0/16",
		Speeds:           []float64{1, 2, 5, 10, 60},
	}
}
