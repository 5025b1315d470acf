package evaluation

import "time"

// RuleType discriminates the rule variants understood by the engine.
type RuleType string

const (
	RuleTypeToggle      RuleType = "toggle"
	RuleTypePercentage  RuleType = "percentage"
	RuleTypeConditional RuleType = "conditional"
)

// Valid reports whether t is one of the known rule types.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeToggle, RuleTypePercentage, RuleTypeConditional:
		return true
	}
	return false
}

// DefaultHashKey is the context attribute used for percentage bucketing
// when a rule does not name one explicitly.
const DefaultHashKey = "user_id"

// Flag is a named, per-application feature switch. The Enabled field is a
// hard master switch: when false, no rule is consulted.
type Flag struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Rule is a prioritized condition attached to a flag. Rules are evaluated
// highest priority first; ties are broken by creation order, earliest first.
type Rule struct {
	ID               string     `json:"id"`
	FlagID           string     `json:"flag_id"`
	Type             RuleType   `json:"type"`
	Enabled          bool       `json:"enabled"`
	Priority         int        `json:"priority"`
	Conditions       Conditions `json:"conditions,omitempty"`
	TargetPercentage *int       `json:"target_percentage,omitempty"`
	HashKey          string     `json:"hash_key,omitempty"`
	Description      string     `json:"description,omitempty"`
	CreatedAt        time.Time  `json:"created_at,omitzero"`
	UpdatedAt        time.Time  `json:"updated_at,omitzero"`
}

// hashKey returns the context attribute seeding percentage bucketing.
func (r Rule) hashKey() string {
	if r.HashKey != "" {
		return r.HashKey
	}
	return DefaultHashKey
}

// Context carries the caller-supplied attributes a flag is evaluated
// against (user id, tier, region, ...). Values are JSON scalars. The core
// never persists a Context.
type Context map[string]any

// Result is the outcome of evaluating a single flag for a context.
type Result struct {
	Enabled  bool     `json:"enabled"`
	FlagKey  string   `json:"flag_key"`
	FlagID   string   `json:"flag_id,omitempty"`
	FlagName string   `json:"flag_name,omitempty"`
	Reason   Reason   `json:"reason"`
	RuleID   string   `json:"rule_id,omitempty"`
	RuleType RuleType `json:"rule_type,omitempty"`
}

// Reason is a machine-readable code explaining why an evaluation produced
// its decision.
type Reason string

const (
	ReasonInvalidInput          Reason = "INVALID_INPUT"
	ReasonFlagNotFound          Reason = "FLAG_NOT_FOUND"
	ReasonFlagDisabled          Reason = "FLAG_DISABLED"
	ReasonNoRulesDefault        Reason = "NO_RULES_DEFAULT"
	ReasonNoRuleMatchDefault    Reason = "NO_RULE_MATCH_DEFAULT"
	ReasonToggleEnabled         Reason = "TOGGLE_ENABLED"
	ReasonToggleDisabled        Reason = "TOGGLE_DISABLED"
	ReasonPercentageIncluded    Reason = "PERCENTAGE_INCLUDED"
	ReasonPercentageExcluded    Reason = "PERCENTAGE_EXCLUDED"
	ReasonConditionsMet         Reason = "CONDITIONS_MET"
	ReasonConditionsNotMet      Reason = "CONDITIONS_NOT_MET"
	ReasonCondPercentIncluded   Reason = "CONDITIONAL_PERCENTAGE_INCLUDED"
	ReasonCondPercentExcluded   Reason = "CONDITIONAL_PERCENTAGE_EXCLUDED"
	ReasonMissingHashValue      Reason = "MISSING_HASH_VALUE"
	ReasonInvalidPercentage     Reason = "INVALID_PERCENTAGE"
	ReasonMissingConditions     Reason = "MISSING_CONDITIONS"
	ReasonUnknownRuleType       Reason = "UNKNOWN_RULE_TYPE"
	ReasonRuleEvaluationError   Reason = "RULE_EVALUATION_ERROR"
	ReasonEvaluationError       Reason = "EVALUATION_ERROR"
)
