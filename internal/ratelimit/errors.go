package ratelimit

import "errors"

// ErrQuotaExceeded is returned when a request would push the account's
// aggregate usage past its minute or daily cap. Nothing is charged.
var ErrQuotaExceeded = errors.New("rate limit exceeded")
