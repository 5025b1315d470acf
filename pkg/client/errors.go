package client

import "errors"

var (
	ErrMissingBaseURL = errors.New("client: base URL is required")
	ErrMissingAPIKey  = errors.New("client: API key is required")
	ErrClientClosed   = errors.New("client: closed")
	ErrRefreshRunning = errors.New("client: background refresh already running")
)
