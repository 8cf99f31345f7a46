// Package cmap provides a sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards by murmur3; each shard
// has its own RWMutex. It backs registries that are read on every request
// and written rarely, such as the identity user table and the per-client
// rate limiters.
//
// Usage:
//
//	users := cmap.New[string, *User]()
//	users.Set("operator", u)
//	u, ok := users.Get("operator")
//
// Range locks one shard at a time, so it does not observe a consistent
// snapshot across shards.
package cmap
