// Package budget meters per-scope, per-period consumption against
// policy-provided caps.
//
// Counters are calendar-month keyed and stored in the TTL KV. The
// read-increment sequence is deliberately not atomic: concurrent callers may
// undercount slightly, which is preferred over rejecting legitimate requests
// or serializing every consumer.
package budget
