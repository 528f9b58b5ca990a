// Package jobqueue carries translation and publish jobs between the issuer
// and the daemon workers.
//
// Delivery is at-least-once with no ordering guarantee; the retry sweeper
// compensates for lost or duplicate deliveries, so handlers must be
// idempotent. The NATS transport is used in production and an in-memory
// queue backs tests.
package jobqueue
