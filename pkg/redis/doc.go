// Package redis provides helpers for connecting to the Redis server backing
// the flag cache and the invalidation bus.
//
// The package wraps the go-redis client and adds:
//
//   - A `Connect` function that retries the connection using the supplied
//     configuration before giving up.
//   - A health-check helper to integrate Redis into HTTP liveness /
//     readiness probes.
//
// Configuration is described by the `Config` struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
// Connect with auto-retry:
//
//	ctx := context.Background()
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
// Expose a readiness probe:
//
//	check := redis.Healthcheck(client)
//	if err := check(ctx); err != nil {
//	    // not ready
//	}
package redis
