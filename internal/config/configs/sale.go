package configs

import "time"

// Sale tunes the flash-sale expiration scheduler. BucketGranularity is the
// rounding applied to campaign end instants: ends are rounded up to the
// next boundary, so campaigns ending within the same granule share one
// timer and are finalized in one batch, never before their stored end.
// Coarser values mean fewer timers; finer values fire closer to the end.
type Sale struct {
	// BucketGranularity rounds expiration instants. Defaults to a minute.
	BucketGranularity time.Duration `env:"BUCKET_GRANULARITY" envDefault:"1m"`
	// FireAttempts bounds retries of a failing expiration batch before it
	// is abandoned and escalated to the error log.
	FireAttempts int `env:"FIRE_ATTEMPTS" envDefault:"5"`
	// FireBackoff is the base delay between batch retries.
	FireBackoff time.Duration `env:"FIRE_BACKOFF" envDefault:"3s"`
	// SweepInterval is the period of the maintenance sweep that promotes
	// scheduled campaigns and reconciles the in-memory schedule.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
}
