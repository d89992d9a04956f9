// Package cache keeps upstream responses so identical lookups are answered
// without spending budget.
//
// MemoryCache serves a single process; RedisCache (go-redis) lets several
// governor instances share results. RequestKeyer turns a request into a
// stable key with credentials stripped, and Policy bounds TTLs.
package cache
