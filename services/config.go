package services

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config carries the reconciliation tunables. Defaults are production values;
// every field can be overridden from the environment.
type Config struct {
	// StepDeltaMax is the largest believable step delta for one sync cycle.
	StepDeltaMax int
	// OvershootFactor tolerates sensor overshoot past the race distance.
	OvershootFactor float64
	// CompletionToleranceKm absorbs float and sensor jitter at the finish.
	CompletionToleranceKm float64
	// TieEpsilonKm treats near-identical distances as rank ties.
	TieEpsilonKm float64
	// DedupWindow is how long a snapshot fingerprint blocks replays.
	DedupWindow time.Duration
	// MinSyncInterval is the minimum gap between accepted syncs per user.
	MinSyncInterval time.Duration
	// RankDebounce batches rank recomputation per race.
	RankDebounce time.Duration
	// CommitRetries and CommitBackoff bound transient store error handling.
	CommitRetries int
	CommitBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		StepDeltaMax:          20000,
		OvershootFactor:       1.10,
		CompletionToleranceKm: 0.05,
		TieEpsilonKm:          0.01,
		DedupWindow:           5 * time.Minute,
		MinSyncInterval:       30 * time.Second,
		RankDebounce:          3 * time.Second,
		CommitRetries:         3,
		CommitBackoff:         200 * time.Millisecond,
	}
}

// ConfigFromEnv starts from defaults and applies any overrides present in
// the environment. Unparseable values are logged and ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	overrideInt(&cfg.StepDeltaMax, "STEP_DELTA_MAX")
	overrideFloat(&cfg.OvershootFactor, "OVERSHOOT_FACTOR")
	overrideFloat(&cfg.CompletionToleranceKm, "COMPLETION_TOLERANCE_KM")
	overrideFloat(&cfg.TieEpsilonKm, "TIE_EPSILON_KM")
	overrideDuration(&cfg.DedupWindow, "SYNC_DEDUP_WINDOW")
	overrideDuration(&cfg.MinSyncInterval, "MIN_SYNC_INTERVAL")
	overrideDuration(&cfg.RankDebounce, "RANK_DEBOUNCE")
	overrideInt(&cfg.CommitRetries, "COMMIT_RETRIES")
	overrideDuration(&cfg.CommitBackoff, "COMMIT_BACKOFF")
	return cfg
}

func overrideInt(dst *int, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Config: ignoring invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = v
}

func overrideFloat(dst *float64, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Config: ignoring invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = v
}

func overrideDuration(dst *time.Duration, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Config: ignoring invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = v
}
