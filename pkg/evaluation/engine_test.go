package evaluation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

func intPtr(v int) *int { return &v }

func testFlag(key string, enabled bool) *evaluation.Flag {
	return &evaluation.Flag{
		ID:      "flag-" + key,
		AppID:   "app-1",
		Key:     key,
		Name:    key,
		Enabled: enabled,
	}
}

func TestEvaluateFlagLevel(t *testing.T) {
	t.Parallel()
	engine := evaluation.NewEngine(nil)

	t.Run("NilFlag", func(t *testing.T) {
		t.Parallel()
		res := engine.Evaluate(nil, nil, evaluation.Context{})
		assert.False(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonFlagNotFound, res.Reason)
	})

	t.Run("DisabledFlagShortCircuits", func(t *testing.T) {
		t.Parallel()
		// A rule that would enable the flag must never be consulted.
		rules := []evaluation.Rule{{
			ID:      "r1",
			Type:    evaluation.RuleTypeToggle,
			Enabled: true,
		}}
		res := engine.Evaluate(testFlag("dark_mode", false), rules, evaluation.Context{})
		assert.False(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonFlagDisabled, res.Reason)
		assert.Empty(t, res.RuleID)
	})

	t.Run("NoRulesDefault", func(t *testing.T) {
		t.Parallel()
		res := engine.Evaluate(testFlag("dark_mode", true), nil, evaluation.Context{})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonNoRulesDefault, res.Reason)
	})

	t.Run("NoRuleMatchDefault", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:         "r1",
			Type:       evaluation.RuleTypeConditional,
			Enabled:    true,
			Conditions: evaluation.Conditions{"tier": evaluation.Equals("premium")},
		}}
		res := engine.Evaluate(testFlag("dark_mode", true), rules,
			evaluation.Context{"tier": "free"})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)
	})

	t.Run("FlagIdentityCarriedThrough", func(t *testing.T) {
		t.Parallel()
		res := engine.Evaluate(testFlag("dark_mode", true), nil, nil)
		assert.Equal(t, "flag-dark_mode", res.FlagID)
		assert.Equal(t, "dark_mode", res.FlagKey)
		assert.Equal(t, "dark_mode", res.FlagName)
	})
}

func TestEvaluateToggleRules(t *testing.T) {
	t.Parallel()
	engine := evaluation.NewEngine(nil)

	t.Run("EnabledToggleMatches", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:      "r1",
			Type:    evaluation.RuleTypeToggle,
			Enabled: true,
		}}
		res := engine.Evaluate(testFlag("beta", true), rules, evaluation.Context{})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonToggleEnabled, res.Reason)
		assert.Equal(t, "r1", res.RuleID)
		assert.Equal(t, evaluation.RuleTypeToggle, res.RuleType)
	})

	t.Run("DisabledRuleSkippedEntirely", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:      "r1",
			Type:    evaluation.RuleTypeToggle,
			Enabled: false,
		}}
		res := engine.Evaluate(testFlag("beta", true), rules, evaluation.Context{})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)
		assert.Empty(t, res.RuleID)
	})
}

func TestEvaluatePriorityOrdering(t *testing.T) {
	t.Parallel()
	engine := evaluation.NewEngine(nil)

	t.Run("HigherPriorityWins", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{
			{ID: "low", Type: evaluation.RuleTypeToggle, Enabled: true, Priority: 5},
			{ID: "high", Type: evaluation.RuleTypeToggle, Enabled: true, Priority: 10},
		}
		res := engine.Evaluate(testFlag("beta", true), rules, evaluation.Context{})
		assert.Equal(t, "high", res.RuleID)
	})

	t.Run("TieBrokenByCreationOrder", func(t *testing.T) {
		t.Parallel()
		earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		later := earlier.Add(time.Hour)
		rules := []evaluation.Rule{
			{ID: "second", Type: evaluation.RuleTypeToggle, Enabled: true, Priority: 10, CreatedAt: later},
			{ID: "first", Type: evaluation.RuleTypeToggle, Enabled: true, Priority: 10, CreatedAt: earlier},
		}
		res := engine.Evaluate(testFlag("beta", true), rules, evaluation.Context{})
		assert.Equal(t, "first", res.RuleID)
	})

	t.Run("FirstMatchStopsEvenWhenOff", func(t *testing.T) {
		t.Parallel()
		// A matching conditional rule whose own decision is "off" ends the
		// evaluation; lower-priority rules never run.
		rules := []evaluation.Rule{
			{
				ID:         "deny",
				Type:       evaluation.RuleTypeConditional,
				Enabled:    true,
				Priority:   10,
				Conditions: evaluation.Conditions{"tier": evaluation.Equals("premium")},
			},
			{ID: "allow", Type: evaluation.RuleTypeToggle, Enabled: true, Priority: 5},
		}
		// The deny rule is enabled so it decides "on" for premium; flip it to
		// a percentage exclusion to observe a first-match "off" decision.
		rules[0].TargetPercentage = intPtr(0)
		res := engine.Evaluate(testFlag("beta", true), rules,
			evaluation.Context{"tier": "premium", "user_id": "alice"})
		assert.False(t, res.Enabled)
		assert.Equal(t, "deny", res.RuleID)
		assert.Equal(t, evaluation.ReasonCondPercentExcluded, res.Reason)
	})
}

func TestEvaluatePercentageRules(t *testing.T) {
	t.Parallel()
	engine := evaluation.NewEngine(nil)

	percentageRule := func(target int) []evaluation.Rule {
		return []evaluation.Rule{{
			ID:               "r1",
			Type:             evaluation.RuleTypePercentage,
			Enabled:          true,
			Priority:         1,
			TargetPercentage: intPtr(target),
		}}
	}

	t.Run("ExcludedAboveTarget", func(t *testing.T) {
		t.Parallel()
		// Bucket("mohit:premium_features") == 78, outside a 50% rollout.
		res := engine.Evaluate(testFlag("premium_features", true), percentageRule(50),
			evaluation.Context{"user_id": "mohit"})
		assert.False(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonPercentageExcluded, res.Reason)
	})

	t.Run("IncludedBelowTarget", func(t *testing.T) {
		t.Parallel()
		// Bucket("alice:premium_features") == 23, inside a 50% rollout.
		res := engine.Evaluate(testFlag("premium_features", true), percentageRule(50),
			evaluation.Context{"user_id": "alice"})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonPercentageIncluded, res.Reason)
	})

	t.Run("DeterministicAcrossCalls", func(t *testing.T) {
		t.Parallel()
		first := engine.Evaluate(testFlag("premium_features", true), percentageRule(50),
			evaluation.Context{"user_id": "mohit"})
		for range 10 {
			again := engine.Evaluate(testFlag("premium_features", true), percentageRule(50),
				evaluation.Context{"user_id": "mohit"})
			assert.Equal(t, first, again)
		}
	})

	t.Run("MissingHashValueNoMatch", func(t *testing.T) {
		t.Parallel()
		res := engine.Evaluate(testFlag("premium_features", true), percentageRule(50),
			evaluation.Context{"country": "US"})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)
	})

	t.Run("CustomHashKey", func(t *testing.T) {
		t.Parallel()
		rules := percentageRule(100)
		rules[0].HashKey = "session_id"
		res := engine.Evaluate(testFlag("premium_features", true), rules,
			evaluation.Context{"session_id": "s-1"})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonPercentageIncluded, res.Reason)
	})

	t.Run("InvalidPercentageNoMatch", func(t *testing.T) {
		t.Parallel()
		res := engine.Evaluate(testFlag("premium_features", true), percentageRule(120),
			evaluation.Context{"user_id": "mohit"})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)
	})

	t.Run("GatedByConditions", func(t *testing.T) {
		t.Parallel()
		rules := percentageRule(100)
		rules[0].Conditions = evaluation.Conditions{"country": evaluation.OneOf("US", "CA")}
		res := engine.Evaluate(testFlag("premium_features", true), rules,
			evaluation.Context{"user_id": "alice", "country": "FR"})
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)

		res = engine.Evaluate(testFlag("premium_features", true), rules,
			evaluation.Context{"user_id": "alice", "country": "CA"})
		assert.True(t, res.Enabled)
	})
}

func TestEvaluateConditionalRules(t *testing.T) {
	t.Parallel()
	engine := evaluation.NewEngine(nil)

	t.Run("ConditionsMet", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:         "r1",
			Type:       evaluation.RuleTypeConditional,
			Enabled:    true,
			Conditions: evaluation.Conditions{"tier": evaluation.Equals("premium")},
		}}
		res := engine.Evaluate(testFlag("beta", true), rules,
			evaluation.Context{"tier": "premium"})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonConditionsMet, res.Reason)
	})

	t.Run("SetMembership", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:         "r1",
			Type:       evaluation.RuleTypeConditional,
			Enabled:    true,
			Conditions: evaluation.Conditions{"country": evaluation.OneOf("US", "CA")},
		}}
		for _, country := range []string{"US", "CA"} {
			res := engine.Evaluate(testFlag("beta", true), rules,
				evaluation.Context{"country": country})
			assert.True(t, res.Enabled, country)
		}
		res := engine.Evaluate(testFlag("beta", true), rules,
			evaluation.Context{"country": "FR"})
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)
	})

	t.Run("MissingContextKeyFails", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:         "r1",
			Type:       evaluation.RuleTypeConditional,
			Enabled:    true,
			Conditions: evaluation.Conditions{"tier": evaluation.Equals("premium")},
		}}
		res := engine.Evaluate(testFlag("beta", true), rules, evaluation.Context{})
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)
	})

	t.Run("EmptyConditionsNoMatch", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:      "r1",
			Type:    evaluation.RuleTypeConditional,
			Enabled: true,
		}}
		res := engine.Evaluate(testFlag("beta", true), rules,
			evaluation.Context{"tier": "premium"})
		assert.Equal(t, evaluation.ReasonNoRuleMatchDefault, res.Reason)
	})

	t.Run("PercentageComponentBucketsAgainstFlagKey", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:               "r1",
			Type:             evaluation.RuleTypeConditional,
			Enabled:          true,
			Conditions:       evaluation.Conditions{"tier": evaluation.Equals("premium")},
			TargetPercentage: intPtr(50),
		}}

		// Same cohorts as a plain percentage rule on the same flag:
		// alice is bucket 23 (in), mohit is bucket 78 (out).
		res := engine.Evaluate(testFlag("premium_features", true), rules,
			evaluation.Context{"tier": "premium", "user_id": "alice"})
		require.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonCondPercentIncluded, res.Reason)

		res = engine.Evaluate(testFlag("premium_features", true), rules,
			evaluation.Context{"tier": "premium", "user_id": "mohit"})
		require.False(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonCondPercentExcluded, res.Reason)
	})

	t.Run("FullPercentageSkipsSubCheck", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{{
			ID:               "r1",
			Type:             evaluation.RuleTypeConditional,
			Enabled:          true,
			Conditions:       evaluation.Conditions{"tier": evaluation.Equals("premium")},
			TargetPercentage: intPtr(100),
		}}
		// No hash value in the context, but at 100% none is needed.
		res := engine.Evaluate(testFlag("beta", true), rules,
			evaluation.Context{"tier": "premium"})
		assert.True(t, res.Enabled)
		assert.Equal(t, evaluation.ReasonConditionsMet, res.Reason)
	})
}

func TestEvaluateRuleIsolation(t *testing.T) {
	t.Parallel()
	engine := evaluation.NewEngine(nil)

	t.Run("UnknownRuleTypeSkipped", func(t *testing.T) {
		t.Parallel()
		rules := []evaluation.Rule{
			{ID: "weird", Type: evaluation.RuleType("gradual"), Enabled: true, Priority: 10},
			{ID: "ok", Type: evaluation.RuleTypeToggle, Enabled: true, Priority: 5},
		}
		res := engine.Evaluate(testFlag("beta", true), rules, evaluation.Context{})
		assert.True(t, res.Enabled)
		assert.Equal(t, "ok", res.RuleID)
	})
}
