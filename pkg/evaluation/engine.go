package evaluation

import (
	"cmp"
	"log/slog"
	"slices"
)

// Engine evaluates flags against contexts. Evaluation is a pure function of
// its inputs and is safe for unbounded concurrent use; the logger is the
// only collaborator and is never written to from the hot path beyond
// emitting records.
type Engine struct {
	log *slog.Logger
}

// NewEngine creates an evaluation engine. A nil logger discards rule-level
// diagnostics.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{log: log}
}

// outcome is the verdict of matching a single rule against a context.
// A non-matched outcome carries the reason the rule was passed over.
type outcome struct {
	matched bool
	enabled bool
	reason  Reason
}

// ruleEvaluator matches one rule variant against a context. The flag key is
// threaded through for percentage bucketing.
type ruleEvaluator func(rule Rule, evalCtx Context, flagKey string) outcome

// ruleEvaluators dispatches on the rule type tag. Unknown types fall out of
// the table and are skipped with ReasonUnknownRuleType.
var ruleEvaluators = map[RuleType]ruleEvaluator{
	RuleTypeToggle:      evalToggle,
	RuleTypePercentage:  evalPercentage,
	RuleTypeConditional: evalConditional,
}

// Evaluate decides whether flag is on for the given context.
//
// The master switch short-circuits everything: a disabled flag is off no
// matter what its rules say. Otherwise enabled rules are tried highest
// priority first (creation order breaks ties) and the first rule that
// matches decides the outcome, even when that decision is "off". With no
// rules, or no matching rule, the flag's own enabled state is returned with
// a distinct reason code for each case.
//
// Evaluate never panics: a failure inside a single rule is logged and
// treated as a non-match for that rule only, and a failure outside rule
// handling fails safe to a disabled result with ReasonEvaluationError.
func (e *Engine) Evaluate(flag *Flag, rules []Rule, evalCtx Context) (res Result) {
	if flag == nil {
		return Result{Enabled: false, Reason: ReasonFlagNotFound}
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("flag evaluation panicked",
				slog.String("flag_key", flag.Key),
				slog.Any("panic", r))
			res = Result{
				Enabled: false,
				FlagKey: flag.Key,
				FlagID:  flag.ID,
				Reason:  ReasonEvaluationError,
			}
		}
	}()

	base := Result{
		FlagKey:  flag.Key,
		FlagID:   flag.ID,
		FlagName: flag.Name,
	}

	if !flag.Enabled {
		base.Enabled = false
		base.Reason = ReasonFlagDisabled
		return base
	}

	if len(rules) == 0 {
		base.Enabled = flag.Enabled
		base.Reason = ReasonNoRulesDefault
		return base
	}

	ordered := orderRules(rules)
	for _, rule := range ordered {
		if !rule.Enabled {
			continue
		}

		out := e.evalRule(rule, evalCtx, flag.Key)
		if !out.matched {
			continue
		}

		base.Enabled = out.enabled
		base.Reason = out.reason
		base.RuleID = rule.ID
		base.RuleType = rule.Type
		return base
	}

	base.Enabled = flag.Enabled
	base.Reason = ReasonNoRuleMatchDefault
	return base
}

// evalRule dispatches a single rule, isolating any panic so one broken rule
// cannot take down the whole evaluation.
func (e *Engine) evalRule(rule Rule, evalCtx Context, flagKey string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("rule evaluation panicked",
				slog.String("rule_id", rule.ID),
				slog.String("rule_type", string(rule.Type)),
				slog.Any("panic", r))
			out = outcome{reason: ReasonRuleEvaluationError}
		}
	}()

	eval, ok := ruleEvaluators[rule.Type]
	if !ok {
		e.log.Warn("unknown rule type",
			slog.String("rule_id", rule.ID),
			slog.String("rule_type", string(rule.Type)))
		return outcome{reason: ReasonUnknownRuleType}
	}
	return eval(rule, evalCtx, flagKey)
}

// orderRules returns a copy sorted by priority descending, then creation
// time ascending. The store contract already promises this order, but the
// engine does not trust callers with a correctness-critical invariant.
func orderRules(rules []Rule) []Rule {
	ordered := slices.Clone(rules)
	slices.SortStableFunc(ordered, func(a, b Rule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return ordered
}

func evalToggle(rule Rule, _ Context, _ string) outcome {
	reason := ReasonToggleDisabled
	if rule.Enabled {
		reason = ReasonToggleEnabled
	}
	return outcome{matched: true, enabled: rule.Enabled, reason: reason}
}

func evalPercentage(rule Rule, evalCtx Context, flagKey string) outcome {
	if len(rule.Conditions) > 0 && !rule.Conditions.Match(evalCtx) {
		return outcome{reason: ReasonConditionsNotMet}
	}
	return percentageCheck(rule, evalCtx, flagKey,
		ReasonPercentageIncluded, ReasonPercentageExcluded)
}

func evalConditional(rule Rule, evalCtx Context, flagKey string) outcome {
	if len(rule.Conditions) == 0 {
		return outcome{reason: ReasonMissingConditions}
	}
	if !rule.Conditions.Match(evalCtx) {
		return outcome{reason: ReasonConditionsNotMet}
	}

	// A conditional rule may carry a percentage component to roll a cohort
	// out gradually. Percentages of 100 and above decide nothing extra.
	if rule.TargetPercentage != nil && *rule.TargetPercentage < 100 {
		return percentageCheck(rule, evalCtx, flagKey,
			ReasonCondPercentIncluded, ReasonCondPercentExcluded)
	}

	return outcome{matched: true, enabled: rule.Enabled, reason: ReasonConditionsMet}
}

// percentageCheck applies the shared percentage sub-check: read the hash
// attribute from the context, validate the target, and compare the
// deterministic bucket against it. Bucketing always hashes against the
// evaluated flag's key so a user's cohort is stable across every rule of
// that flag.
func percentageCheck(rule Rule, evalCtx Context, flagKey string, included, excluded Reason) outcome {
	hashValue, ok := hashableString(evalCtx[rule.hashKey()])
	if !ok {
		return outcome{reason: ReasonMissingHashValue}
	}

	target := 0
	if rule.TargetPercentage != nil {
		target = *rule.TargetPercentage
	}
	if target < 0 || target > 100 {
		return outcome{reason: ReasonInvalidPercentage}
	}

	if Bucket(hashValue, flagKey) < target {
		return outcome{matched: true, enabled: true, reason: included}
	}
	return outcome{matched: true, enabled: false, reason: excluded}
}
