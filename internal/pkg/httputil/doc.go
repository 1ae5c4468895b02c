// Package httputil holds the JSON and HTML response helpers shared by the
// API handlers, so error envelopes and logging look the same on every
// endpoint.
package httputil
