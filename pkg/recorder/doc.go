// Package recorder delivers best-effort usage records to an analytics
// sink. Every evaluation produces one Event; delivery is fire-and-forget
// and a failed or dropped record never affects the evaluation response.
package recorder
