// Package httpapi exposes flag evaluation over HTTP.
//
// Endpoints:
//
//	GET  /health               liveness probe, no authentication
//	POST /flags                evaluate every flag of the application
//	POST /flags/batch          evaluate a named set of flags
//	POST /flags/{flagKey}      evaluate a single flag
//
// Evaluation endpoints authenticate with an X-API-Key header resolving to
// the owning application; the request body carries the evaluation context:
//
//	{"context": {"user_id": "user-42", "tier": "premium"}}
//
// Responses share one envelope: {"success": true, "data": ...} on success,
// {"success": false, "error": "..."} otherwise. Evaluation itself is
// fail-safe, so a known flag always yields a 200 with a result and a
// reason code, even when the decision is "disabled".
package httpapi
