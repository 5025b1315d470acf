// Package service wires the evaluation path together: server-side cache,
// rule store fallback, the pure evaluation engine, and fire-and-forget
// usage recording. Single-flag evaluation never returns an error; every
// failure mode maps to a fail-safe result with a reason code.
package service
