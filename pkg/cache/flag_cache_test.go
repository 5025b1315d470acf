package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/bus"
	"github.com/dmitrymomot/flagkit/pkg/cache"
	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/store"
)

func newTestCache(t *testing.T, cfg cache.Config) (*cache.FlagCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewFlagCache(client, cache.WithConfig(cfg)), mr
}

func sampleFlagWithRules() *store.FlagWithRules {
	target := 50
	return &store.FlagWithRules{
		Flag: evaluation.Flag{
			ID: "f-1", AppID: "app-1", Key: "beta", Name: "Beta", Enabled: true,
		},
		Rules: []evaluation.Rule{{
			ID:               "r-1",
			FlagID:           "f-1",
			Type:             evaluation.RuleTypePercentage,
			Enabled:          true,
			Priority:         1,
			TargetPercentage: &target,
			Conditions:       evaluation.Conditions{"country": evaluation.OneOf("US", "CA")},
		}},
	}
}

func TestFlagCacheRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("FlagWithRules", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, cache.Config{})

		_, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
		require.False(t, ok)

		c.SetFlagWithRules(ctx, "app-1", "beta", sampleFlagWithRules())

		got, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
		require.True(t, ok)
		assert.Equal(t, "f-1", got.Flag.ID)
		require.Len(t, got.Rules, 1)
		require.NotNil(t, got.Rules[0].TargetPercentage)
		assert.Equal(t, 50, *got.Rules[0].TargetPercentage)
		// Conditions survive the JSON trip as typed values.
		assert.True(t, got.Rules[0].Conditions.Match(evaluation.Context{"country": "US"}))
	})

	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		t.Parallel()
		c, mr := newTestCache(t, cache.Config{FlagTTL: 5 * time.Minute})
		c.SetFlagWithRules(ctx, "app-1", "beta", sampleFlagWithRules())

		mr.FastForward(5*time.Minute + time.Second)

		_, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
		assert.False(t, ok)
	})

	t.Run("AppFlags", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, cache.Config{})
		flags := []evaluation.Flag{
			{ID: "f-1", AppID: "app-1", Key: "beta", Enabled: true},
			{ID: "f-2", AppID: "app-1", Key: "dark_mode", Enabled: false},
		}
		c.SetAppFlags(ctx, "app-1", flags)

		got, ok := c.GetAppFlags(ctx, "app-1")
		require.True(t, ok)
		assert.Equal(t, flags, got)
	})

	t.Run("EvaluationResult", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, cache.Config{})
		fp := cache.ContextFingerprint(evaluation.Context{"user_id": "alice"})
		res := &evaluation.Result{Enabled: true, FlagKey: "beta", Reason: evaluation.ReasonPercentageIncluded}

		c.SetEvaluation(ctx, "beta", fp, res)

		got, ok := c.GetEvaluation(ctx, "beta", fp)
		require.True(t, ok)
		assert.Equal(t, res, got)
	})

	t.Run("CorruptEntryIsAMiss", func(t *testing.T) {
		t.Parallel()
		c, mr := newTestCache(t, cache.Config{})
		require.NoError(t, mr.Set("flag_rules:app-1:beta", "{broken"))

		_, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
		assert.False(t, ok)
	})
}

func TestFlagCacheInvalidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	seed := func(t *testing.T, c *cache.FlagCache) {
		t.Helper()
		c.SetFlagWithRules(ctx, "app-1", "beta", sampleFlagWithRules())
		c.SetAppFlags(ctx, "app-1", []evaluation.Flag{{ID: "f-1", Key: "beta"}})
		c.SetEvaluation(ctx, "beta", "fp-1", &evaluation.Result{Enabled: true, FlagKey: "beta"})
		c.SetEvaluation(ctx, "beta", "fp-2", &evaluation.Result{Enabled: false, FlagKey: "beta"})
	}

	t.Run("UpdateEventDropsFlagEvalAndList", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, cache.Config{})
		seed(t, c)

		c.Apply(ctx, bus.NewEvent("app-1", "beta", bus.ActionUpdate))

		_, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
		assert.False(t, ok, "flag entry should be gone")
		_, ok = c.GetAppFlags(ctx, "app-1")
		assert.False(t, ok, "aggregate list should be gone")
		_, ok = c.GetEvaluation(ctx, "beta", "fp-1")
		assert.False(t, ok, "evaluation results should be gone")
		_, ok = c.GetEvaluation(ctx, "beta", "fp-2")
		assert.False(t, ok)
	})

	t.Run("UnrelatedFlagSurvives", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, cache.Config{})
		seed(t, c)
		c.SetFlagWithRules(ctx, "app-1", "other", sampleFlagWithRules())
		c.SetEvaluation(ctx, "other", "fp-1", &evaluation.Result{FlagKey: "other"})

		c.Apply(ctx, bus.NewEvent("app-1", "beta", bus.ActionDelete))

		_, ok := c.GetFlagWithRules(ctx, "app-1", "other")
		assert.True(t, ok)
		_, ok = c.GetEvaluation(ctx, "other", "fp-1")
		assert.True(t, ok)
	})

	t.Run("BulkUpdateClearsApplication", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, cache.Config{})
		seed(t, c)
		c.SetFlagWithRules(ctx, "app-1", "other", sampleFlagWithRules())
		c.SetFlagWithRules(ctx, "app-2", "beta", sampleFlagWithRules())

		c.Apply(ctx, bus.NewEvent("app-1", "", bus.ActionBulkUpdate))

		_, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
		assert.False(t, ok)
		_, ok = c.GetFlagWithRules(ctx, "app-1", "other")
		assert.False(t, ok)
		_, ok = c.GetAppFlags(ctx, "app-1")
		assert.False(t, ok)
		// Another application's entries are untouched.
		_, ok = c.GetFlagWithRules(ctx, "app-2", "beta")
		assert.True(t, ok)
	})

	t.Run("ListenAppliesBusEvents", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCache(t, cache.Config{})
		seed(t, c)

		b := bus.NewMemoryBus(4)
		defer b.Close()

		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.Listen(listenCtx, b)

		// Subscription races with publish; retry until the listener applied
		// the event or the deadline passes.
		require.NoError(t, b.Publish(ctx, bus.NewEvent("app-1", "beta", bus.ActionUpdate)))
		require.Eventually(t, func() bool {
			_ = b.Publish(ctx, bus.NewEvent("app-1", "beta", bus.ActionUpdate))
			_, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
			return !ok
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestFlagCacheFailsSilently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewFlagCache(client)

	// Kill the backend; every operation must degrade, not error.
	mr.Close()

	assert.NotPanics(t, func() {
		c.SetFlagWithRules(ctx, "app-1", "beta", sampleFlagWithRules())
		_, ok := c.GetFlagWithRules(ctx, "app-1", "beta")
		assert.False(t, ok)
		c.InvalidateFlag(ctx, "app-1", "beta")
		c.InvalidateApp(ctx, "app-1")
	})
}

func TestContextFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("OrderIndependent", func(t *testing.T) {
		t.Parallel()
		a := cache.ContextFingerprint(evaluation.Context{"user_id": "alice", "country": "US"})
		b := cache.ContextFingerprint(evaluation.Context{"country": "US", "user_id": "alice"})
		assert.Equal(t, a, b)
	})

	t.Run("IrrelevantAttributesIgnored", func(t *testing.T) {
		t.Parallel()
		a := cache.ContextFingerprint(evaluation.Context{"user_id": "alice"})
		b := cache.ContextFingerprint(evaluation.Context{"user_id": "alice", "request_id": "r-99"})
		assert.Equal(t, a, b)
	})

	t.Run("RelevantAttributesDistinguish", func(t *testing.T) {
		t.Parallel()
		a := cache.ContextFingerprint(evaluation.Context{"user_id": "alice"})
		b := cache.ContextFingerprint(evaluation.Context{"user_id": "bob"})
		assert.NotEqual(t, a, b)
	})
}
