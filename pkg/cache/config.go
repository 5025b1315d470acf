package cache

import "time"

// Config holds the freshness windows for each class of cached data. The
// defaults mirror how often each class actually changes: flag definitions
// moderately, application flag lists rarely, evaluation results constantly
// (they depend on the caller's context).
type Config struct {
	FlagTTL       time.Duration `env:"CACHE_FLAG_TTL" envDefault:"5m"`        // FlagTTL bounds staleness of a flag and its rules.
	AppFlagsTTL   time.Duration `env:"CACHE_APP_FLAGS_TTL" envDefault:"30m"`  // AppFlagsTTL bounds staleness of an application's flag list.
	EvaluationTTL time.Duration `env:"CACHE_EVALUATION_TTL" envDefault:"1m"`  // EvaluationTTL bounds staleness of per-context evaluation results.
}

func defaultConfig() Config {
	return Config{
		FlagTTL:       5 * time.Minute,
		AppFlagsTTL:   30 * time.Minute,
		EvaluationTTL: time.Minute,
	}
}
