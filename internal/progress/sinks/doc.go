// Package sinks implements progress consumers: structured logging and an
// in-memory run tracker that backs the status endpoint.
package sinks
