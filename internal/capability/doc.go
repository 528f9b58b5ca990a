// Package capability issues the scoped, time-boxed execution grants that
// authorize translation jobs.
//
// A grant is an HS256-signed token naming the allowed providers and models,
// the token and latency budget, and an auditable trace id. The executor side
// verifies the grant before spending money on a model call.
package capability
