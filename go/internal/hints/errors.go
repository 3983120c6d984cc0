package hints

import "errors"

// ErrQuotaExceeded is returned when a user has no hint uses left for
// the current round.
var ErrQuotaExceeded = errors.New("hint quota exceeded")
