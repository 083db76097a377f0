// Package server hosts the Fiber HTTP service and its middleware chain:
// panic recovery, CORS, request ids, JSON error rendering and the access log.
// Route handlers live in the routes subpackage and receive their dependencies
// explicitly, so keep exports here narrow.
package server
