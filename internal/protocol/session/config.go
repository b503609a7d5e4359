package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultBackoff matches deployed nodes: connect attempts spaced roughly one
// second apart, growing to at most five.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 1 * time.Second,
		Multiplier:   1.5,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}
