package feed

import (
	"strings"

	"github.com/teambition/rrule-go"
)

// normalizeRRule reduces any RRULE value found in a feed to the canonical
// flat FREQ=...;... parameter string. The value may arrive with an RRULE:
// prefix or surrounding whitespace; it is round-tripped through the rrule
// library so parameter spelling and casing come out uniform. A value the
// library cannot parse is passed through trimmed, since a raw RRULE value
// is already a flat string.
func normalizeRRule(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "RRULE:")
	if value == "" {
		return ""
	}

	opt, err := rrule.StrToROption(value)
	if err != nil {
		return value
	}
	return opt.RRuleString()
}
