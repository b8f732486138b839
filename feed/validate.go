package feed

import (
	"context"
	"strings"
)

// FeedInfo is the user-facing preview of a feed before a connection exists.
type FeedInfo struct {
	Valid        bool   `json:"valid"`
	CalendarName string `json:"calendar_name,omitempty"`
	EventCount   int    `json:"event_count"`
	Error        string `json:"error,omitempty"`
}

// ValidateFeed fetches a feed without cache hints and runs a light parse
// pass to report its display name and event count. Nothing is persisted;
// failures come back in the Error field rather than as a Go error so the
// controller can relay them verbatim.
func (f *Fetcher) ValidateFeed(ctx context.Context, url string) FeedInfo {
	res, err := f.FetchFeed(ctx, url, CacheHints{})
	if err != nil {
		return FeedInfo{Valid: false, Error: err.Error()}
	}

	cal, err := parseCalendar(res.Content)
	if err != nil {
		return FeedInfo{Valid: false, Error: "invalid iCalendar format: " + err.Error()}
	}

	name := "Imported Calendar"
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, "X-WR-CALNAME") && p.Value != "" {
			name = p.Value
			break
		}
	}

	return FeedInfo{
		Valid:        true,
		CalendarName: name,
		EventCount:   len(cal.Events()),
	}
}
