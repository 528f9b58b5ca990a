// Package daemon composes the localization pipeline into a long-running
// process: the shared database, the job queue, translate and publish
// workers, the retry sweeper, and the HTTP API. A flock lock enforces a
// single instance per log directory.
package daemon
