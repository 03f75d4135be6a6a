package config

import "errors"

var (
	// ErrGatewayMode is returned for a gateway mode other than "direct" or "http".
	ErrGatewayMode = errors.New("invalid gateway mode")

	// ErrGatewayURL is returned when the http gateway has no relay base URL.
	ErrGatewayURL = errors.New("gateway base_url must be configured for http mode")

	ErrConcurrency = errors.New("max_concurrent_analyses must be positive")

	ErrExplainerProvider = errors.New("explainer provider must be configured")
)
