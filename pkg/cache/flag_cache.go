package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/store"
)

// Key prefixes, shared with the management layer's invalidation logic.
const (
	prefixFlagRules = "flag_rules:"
	prefixAppFlags  = "app_flags:"
	prefixEval      = "eval:"
)

// FlagCache is a read-through Redis cache in front of the rule store. It is
// strictly an accelerator: every backend failure is logged and swallowed,
// reads degrade to a miss, writes to a no-op, and evaluation proceeds
// against the store. It must never be the reason an evaluation fails.
type FlagCache struct {
	client redis.UniversalClient
	cfg    Config
	log    *slog.Logger
}

// Option configures a FlagCache.
type Option func(*FlagCache)

// WithConfig overrides the TTL configuration.
func WithConfig(cfg Config) Option {
	return func(c *FlagCache) {
		if cfg.FlagTTL > 0 {
			c.cfg.FlagTTL = cfg.FlagTTL
		}
		if cfg.AppFlagsTTL > 0 {
			c.cfg.AppFlagsTTL = cfg.AppFlagsTTL
		}
		if cfg.EvaluationTTL > 0 {
			c.cfg.EvaluationTTL = cfg.EvaluationTTL
		}
	}
}

// WithLogger sets the logger for swallowed backend errors.
func WithLogger(log *slog.Logger) Option {
	return func(c *FlagCache) {
		if log != nil {
			c.log = log
		}
	}
}

// NewFlagCache creates a server-side cache over the given Redis client.
func NewFlagCache(client redis.UniversalClient, opts ...Option) *FlagCache {
	c := &FlagCache{
		client: client,
		cfg:    defaultConfig(),
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func flagRulesKey(appID, flagKey string) string { return prefixFlagRules + appID + ":" + flagKey }
func appFlagsKey(appID string) string           { return prefixAppFlags + appID }
func evalKey(flagKey, fingerprint string) string {
	return prefixEval + flagKey + ":" + fingerprint
}

// GetFlagWithRules returns the cached flag and rules for (appID, flagKey),
// or a miss.
func (c *FlagCache) GetFlagWithRules(ctx context.Context, appID, flagKey string) (*store.FlagWithRules, bool) {
	var fwr store.FlagWithRules
	if !c.getJSON(ctx, flagRulesKey(appID, flagKey), &fwr) {
		return nil, false
	}
	return &fwr, true
}

// SetFlagWithRules caches a flag and its rules under the flag TTL.
func (c *FlagCache) SetFlagWithRules(ctx context.Context, appID, flagKey string, fwr *store.FlagWithRules) {
	c.setJSON(ctx, flagRulesKey(appID, flagKey), fwr, c.cfg.FlagTTL)
}

// GetAppFlags returns the cached flag list of an application, or a miss.
func (c *FlagCache) GetAppFlags(ctx context.Context, appID string) ([]evaluation.Flag, bool) {
	var flags []evaluation.Flag
	if !c.getJSON(ctx, appFlagsKey(appID), &flags) {
		return nil, false
	}
	return flags, true
}

// SetAppFlags caches an application's flag list under the list TTL.
func (c *FlagCache) SetAppFlags(ctx context.Context, appID string, flags []evaluation.Flag) {
	c.setJSON(ctx, appFlagsKey(appID), flags, c.cfg.AppFlagsTTL)
}

// GetEvaluation returns a cached evaluation result for a flag and context
// fingerprint, or a miss.
func (c *FlagCache) GetEvaluation(ctx context.Context, flagKey, fingerprint string) (*evaluation.Result, bool) {
	var res evaluation.Result
	if !c.getJSON(ctx, evalKey(flagKey, fingerprint), &res) {
		return nil, false
	}
	return &res, true
}

// SetEvaluation caches an evaluation result under the short evaluation TTL.
func (c *FlagCache) SetEvaluation(ctx context.Context, flagKey, fingerprint string, res *evaluation.Result) {
	c.setJSON(ctx, evalKey(flagKey, fingerprint), res, c.cfg.EvaluationTTL)
}

// InvalidateFlag drops the (appID, flagKey) entry, every evaluation result
// keyed by that flag, and the application's aggregate list so it gets
// rebuilt on the next read.
func (c *FlagCache) InvalidateFlag(ctx context.Context, appID, flagKey string) {
	c.del(ctx, flagRulesKey(appID, flagKey), appFlagsKey(appID))
	c.delPattern(ctx, prefixEval+flagKey+":*")
}

// InvalidateApp drops the application's aggregate list and every per-flag
// entry of the application.
func (c *FlagCache) InvalidateApp(ctx context.Context, appID string) {
	c.del(ctx, appFlagsKey(appID))
	c.delPattern(ctx, prefixFlagRules+appID+":*")
}

func (c *FlagCache) getJSON(ctx context.Context, key string, v any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.log.Warn("cache entry corrupt, dropping", slog.String("key", key), slog.Any("error", err))
		c.del(ctx, key)
		return false
	}
	return true
}

func (c *FlagCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache marshal failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *FlagCache) del(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache delete failed", slog.Any("keys", keys), slog.Any("error", err))
	}
}

// delPattern removes all keys matching the pattern via SCAN; KEYS would
// block the server on large keyspaces.
func (c *FlagCache) delPattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache scan failed", slog.String("pattern", pattern), slog.Any("error", err))
		return
	}
	if len(keys) > 0 {
		c.del(ctx, keys...)
	}
}
