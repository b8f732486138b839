package feed

import "errors"

// Error kinds for feed retrieval and parsing. Callers branch on these with
// errors.Is; the scheduler retries Timeout/Transport failures on the next
// cycle only, never immediately, and never retries validation failures.
var (
	// ErrURLValidation marks an unsafe or malformed URL. No network call
	// was made.
	ErrURLValidation = errors.New("feed url failed safety validation")

	// ErrTimeout marks a request that exceeded the configured fetch timeout.
	ErrTimeout = errors.New("feed fetch timed out")

	// ErrTransport marks network, DNS, and non-2xx/304 server failures.
	ErrTransport = errors.New("feed fetch failed")

	// ErrFeedTooLarge marks a body exceeding the configured size ceiling.
	ErrFeedTooLarge = errors.New("feed exceeds maximum allowed size")

	// ErrParse marks content that is structurally not an iCalendar document.
	ErrParse = errors.New("feed content could not be parsed")
)
