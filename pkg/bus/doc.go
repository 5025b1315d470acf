// Package bus carries cache invalidation events between server instances.
//
// Flag and rule mutations happen in an external management layer; after a
// write commits, that layer publishes an Event on the bus and every
// subscribed cache instance drops the affected entries. Delivery is
// best-effort: a dropped event only extends staleness up to the cache TTL,
// never past it.
//
// Two implementations ship: MemoryBus for single-process deployments and
// tests, and RedisBus for fleets, using Redis pub/sub on the shared
// flag_updates channel.
package bus
