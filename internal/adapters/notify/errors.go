package notify

import "errors"

// Sentinel kinds for notification errors.
var (
	ErrBufferFull = errors.New("notification buffer full")
	ErrClosed     = errors.New("notifier closed")
)
