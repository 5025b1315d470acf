// Package cache is the server-side read-through cache in front of the rule
// store, plus the invalidation listener that keeps every instance
// consistent when rules change elsewhere.
//
// Three classes of entries live here, each with its own freshness window:
// a flag with its rules (flag_rules:<app>:<key>, ~5m), an application's
// flag list (app_flags:<app>, ~30m), and per-context evaluation results
// (eval:<key>:<fingerprint>, ~1m). Evaluation-result keys use
// ContextFingerprint, a canonical digest of a fixed whitelist of context
// attributes.
//
// The cache is strictly an accelerator. Backend failures are logged and
// swallowed: a failed read is a miss, a failed write a no-op, and the
// evaluation path falls through to the store. Mutations elsewhere arrive as
// bus events; Listen applies them, dropping the affected entries so the
// next read rebuilds them.
package cache
