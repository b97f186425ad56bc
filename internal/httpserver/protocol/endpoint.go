// Package protocol describes how route groups plug into the HTTP server.
package protocol

import "net/http"

type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named group of routes. Groups that set RateLimited are
// mounted behind the per-client limiter.
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
	RateLimited() bool
}
