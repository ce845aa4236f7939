// Package log provides the cluster's structured logging: a global zerolog
// logger configured once at startup via Init, plus a handful of
// With*-family helpers for attaching node_id/username context to a child
// logger without repeating field names at every call site.
package log
