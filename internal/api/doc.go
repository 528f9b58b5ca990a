// Package api holds the transport-neutral view types and services behind
// the daemon's HTTP surface and the CLI. Handlers and commands convert
// domain records into these views; neither imports the other.
package api
