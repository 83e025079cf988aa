package outcome

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorecal/domain/core"
)

// Horizon is a fixed look-ahead interval at which a prediction is checked
// against realized outcome, written as "T+<days>"
type Horizon string

const (
	HorizonT1  Horizon = "T+1"
	HorizonT7  Horizon = "T+7"
	HorizonT30 Horizon = "T+30"
)

// DefaultHorizons returns the standard evaluation schedule
func DefaultHorizons() []Horizon {
	return []Horizon{HorizonT1, HorizonT7, HorizonT30}
}

// ParseHorizon validates the "T+<days>" form
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(strings.TrimSpace(s))
	if _, err := h.Days(); err != nil {
		return "", err
	}
	return h, nil
}

// Days returns the look-ahead length in days
func (h Horizon) Days() (int, error) {
	s := string(h)
	if !strings.HasPrefix(s, "T+") {
		return 0, fmt.Errorf("%w: horizon %q is not of the form T+<days>", core.ErrInvalidInterval, s)
	}
	days, err := strconv.Atoi(s[2:])
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("%w: horizon %q has an invalid day count", core.ErrInvalidInterval, s)
	}
	return days, nil
}

// Duration converts the horizon into a wall-clock interval. Invalid horizons
// return zero; construction paths validate via ParseHorizon first.
func (h Horizon) Duration() time.Duration {
	days, err := h.Days()
	if err != nil {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}

// String returns the horizon tag
func (h Horizon) String() string {
	return string(h)
}

// Thresholds maps horizons to the failure distance above which a prediction
// is flagged
type Thresholds map[Horizon]float64

// DefaultFallbackThreshold applies to horizons with no configured entry
const DefaultFallbackThreshold = 0.5

// DefaultThresholds returns the standard per-horizon failure thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		HorizonT1:  0.3,
		HorizonT7:  0.5,
		HorizonT30: 0.7,
	}
}

// For returns the threshold for a horizon, falling back for unconfigured ones
func (t Thresholds) For(h Horizon) float64 {
	if v, ok := t[h]; ok {
		return v
	}
	return DefaultFallbackThreshold
}

// Validate rejects non-positive thresholds synchronously
func (t Thresholds) Validate() error {
	for h, v := range t {
		if v <= 0 {
			return fmt.Errorf("%w: threshold %g for horizon %s", core.ErrInvalidThreshold, v, h)
		}
		if _, err := h.Days(); err != nil {
			return err
		}
	}
	return nil
}
