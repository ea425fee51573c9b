package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnknownEvent      = errors.New("unknown event type")
	ErrPersistFailed     = errors.New("message could not be stored")
)
