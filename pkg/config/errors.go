package config

import "errors"

// ErrParseFailed indicates environment variables could not be parsed into the
// target struct, usually because a required variable is unset or malformed.
var ErrParseFailed = errors.New("config: failed to parse environment")
