// Package client is the application-side SDK for a flagkit evaluation
// server. It fetches whole-context flag snapshots over HTTP, caches them
// locally, and degrades gracefully when the server is unreachable.
//
// # Key Features
//
//   - Bounded local cache: per-context snapshots with TTL freshness and
//     least recently used eviction
//   - Stale fallback: a failed fetch serves the last cached snapshot for
//     the same context instead of an error
//   - GetAllFlags never returns an error; with no prior success it returns
//     an empty snapshot
//   - Optional background refresh of the most recently used context
//   - Canonical context keys, so attribute order never causes duplicate
//     cache entries
//
// # Usage
//
// Create a client and evaluate:
//
//	c, err := client.New(client.Config{
//		BaseURL: "https://flags.example.com",
//		APIKey:  apiKey,
//	})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	flags := c.GetAllFlags(ctx, evaluation.Context{
//		"user_id": "user-42",
//		"tier":    "premium",
//	})
//	if flags.IsEnabled("new_checkout") {
//		// render the new checkout
//	}
//
// Bypass the cache when freshness matters:
//
//	flags := c.GetAllFlags(ctx, evalCtx, client.ForceRefresh())
//
// Keep the last-used context warm:
//
//	if err := c.StartBackgroundRefresh(); err != nil {
//		return err
//	}
//	defer c.StopBackgroundRefresh()
//
// # Error Handling
//
// Construction validates configuration and returns ErrMissingBaseURL or
// ErrMissingAPIKey. Runtime fetch failures are logged through the
// configured slog.Logger and absorbed by the cache fallback.
package client
