// Package evaluation implements the pure decision core of the feature flag
// system: given a flag, its ordered rules, and a caller-supplied context,
// it produces a deterministic evaluation result.
//
// # Model
//
// A Flag carries a master switch; when off, the flag is off for everyone and
// no rule runs. Rules come in three variants discriminated by RuleType:
//
//   - toggle: matches every context, decides the rule's own enabled bit
//   - percentage: buckets a context attribute deterministically into [0,100)
//     and matches when the bucket falls under the target percentage
//   - conditional: matches when every condition holds, optionally narrowed
//     by the same percentage sub-check
//
// Rules run highest priority first and the first match wins, including a
// match whose decision is "off". When nothing matches, the flag's own
// enabled state is returned.
//
// # Determinism
//
// Percentage rollout must be sticky: the same user sees the same decision
// for the same flag on every call, on every server. Bucket derives the
// cohort from MD5("<value>:<flagKey>"), taking the first 32 bits of the
// digest as a big-endian unsigned integer modulo 100. The exact construction
// is part of the contract; see Bucket.
//
// # Failure semantics
//
// Evaluate never panics and never returns an error. A failure inside one
// rule is logged and skips only that rule (ReasonRuleEvaluationError); a
// failure outside rule handling fails safe to a disabled result with
// ReasonEvaluationError. Condition payloads are parsed once at the store
// boundary via ParseConditions; garbage degrades to "no conditions" there
// rather than surfacing mid-evaluation.
package evaluation
