// Package kv is a small TTL key-value store over the shared database, used
// for budget counters and other expiring bookkeeping.
package kv
