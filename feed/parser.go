package feed

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"
)

const (
	maxTitleLen       = 500
	maxDescriptionLen = 2000
	maxLocationLen    = 500
	maxTimezoneLen    = 100
)

var timezoneCharset = regexp.MustCompile(`^[A-Za-z0-9_/+:-]+$`)

// ParseEvents converts raw iCalendar text into normalized RemoteEvents.
// Individual events missing a UID or a parseable DTSTART are skipped with a
// warning; only container-level corruption fails the whole batch.
func ParseEvents(content string, connectionID uint) ([]RemoteEvent, error) {
	cal, err := parseCalendar(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	events := make([]RemoteEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, ok := parseVEvent(ve, connectionID)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseCalendar handles line-ending normalization before the library sees
// the content: line folding works the same for CRLF and bare-LF feeds once
// bare LF is promoted to CRLF.
func parseCalendar(content string) (*ical.Calendar, error) {
	if !strings.Contains(content, "\r\n") {
		content = strings.ReplaceAll(content, "\n", "\r\n")
	}
	return ical.ParseCalendar(strings.NewReader(content))
}

func parseVEvent(ve *ical.VEvent, connectionID uint) (RemoteEvent, bool) {
	var out RemoteEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		log.Printf("Skipping event without UID (connection %d)", connectionID)
		return out, false
	}
	out.UID = strings.TrimSpace(uidProp.Value)

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		log.Printf("Skipping event %s without DTSTART (connection %d)", out.UID, connectionID)
		return out, false
	}
	start, allDay, err := parseDateProperty(startProp)
	if err != nil {
		log.Printf("Skipping event %s with unparseable DTSTART %q (connection %d): %v",
			out.UID, startProp.Value, connectionID, err)
		return out, false
	}
	out.Start = start
	out.AllDay = allDay

	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if endProp != nil {
		if end, _, err := parseDateProperty(endProp); err == nil {
			out.End = end
		} else {
			out.End = out.Start
		}
	} else {
		// No DTEND means zero duration, never an assumed default length.
		out.End = out.Start
	}

	out.Timezone = extractTimezone(startProp, endProp)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		out.Title = truncate(p.Value, maxTitleLen)
	} else {
		out.Title = "(No title)"
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil && p.Value != "" {
		out.Description = truncate(p.Value, maxDescriptionLen)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil && p.Value != "" {
		out.Location = truncate(p.Value, maxLocationLen)
	}

	out.Status = normalizeStatus(ve.GetProperty(ical.ComponentPropertyStatus))

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && strings.TrimSpace(p.Value) != "" {
		out.IsRecurring = true
		out.RecurrenceRule = normalizeRRule(p.Value)
	}

	out.ExceptionDates = parseExceptionDates(ve)
	out.Attendees = parseAttendees(ve)
	out.Organizer = parseOrganizer(ve)

	return out, true
}

// parseDateProperty parses a DTSTART/DTEND property value, honoring a
// VALUE=DATE parameter and a sanitized TZID. The second return reports
// date-only form: an 8-digit token or an explicit DATE type. Midnight
// alone never marks an event all-day.
func parseDateProperty(prop *ical.IANAProperty) (time.Time, bool, error) {
	value := strings.TrimSpace(prop.Value)
	if value == "" {
		return time.Time{}, false, fmt.Errorf("empty date value")
	}

	dateOnly := len(value) == 8 && !strings.Contains(value, "T")
	if params := prop.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			dateOnly = true
		}
	}

	loc := time.UTC
	if tz, ok := sanitizeTimezone(propertyTZID(prop)); ok && tz != "UTC" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	if dateOnly {
		t, err := time.ParseInLocation("20060102", value, loc)
		return t, true, err
	}
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	return t, false, err
}

func propertyTZID(prop *ical.IANAProperty) string {
	if prop == nil || prop.ICalParameters == nil {
		return ""
	}
	if tzs, ok := prop.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

// extractTimezone reads the TZID from the start property, falling back to
// the end property, gated by sanitization. Anything rejected degrades to
// UTC silently: feed content is untrusted and a downgraded timezone is
// preferable to a dropped event.
func extractTimezone(startProp, endProp *ical.IANAProperty) string {
	if tz, ok := sanitizeTimezone(propertyTZID(startProp)); ok {
		return tz
	}
	if tz, ok := sanitizeTimezone(propertyTZID(endProp)); ok {
		return tz
	}
	return "UTC"
}

// sanitizeTimezone gates a TZID label from attacker-controlled feed content.
// The false return means the label was absent or rejected and the caller
// should use UTC.
func sanitizeTimezone(tz string) (string, bool) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "", false
	}
	if len(tz) > maxTimezoneLen {
		return "", false
	}
	if strings.ContainsAny(tz, "<>'\"\\`") {
		return "", false
	}
	if strings.Contains(tz, "..") {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(tz), "http") {
		return "", false
	}
	if !timezoneCharset.MatchString(tz) {
		return "", false
	}
	return tz, true
}

func normalizeStatus(prop *ical.IANAProperty) string {
	if prop == nil {
		return "CONFIRMED"
	}
	switch strings.ToUpper(strings.TrimSpace(prop.Value)) {
	case "TENTATIVE":
		return "TENTATIVE"
	case "CANCELLED":
		return "CANCELLED"
	default:
		return "CONFIRMED"
	}
}

// parseExceptionDates flattens all EXDATE properties into instants. A nil
// return means the event carries no exceptions.
func parseExceptionDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := time.UTC
		if tz, ok := sanitizeTimezone(propertyTZID(p)); ok && tz != "UTC" {
			if l, err := time.LoadLocation(tz); err == nil {
				loc = l
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseExceptionInstant(part, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func parseExceptionInstant(v string, loc *time.Location) (time.Time, error) {
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

func parseAttendees(ve *ical.VEvent) []Attendee {
	var out []Attendee
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		email := extractEmail(p.Value)
		if email == "" {
			// An attendee with no resolvable email is excluded.
			continue
		}
		att := Attendee{Email: email}
		if params := p.ICalParameters; params != nil {
			if cn, ok := params["CN"]; ok && len(cn) > 0 {
				att.Name = strings.Trim(cn[0], `"`)
			}
			if rsvp, ok := params["RSVP"]; ok && len(rsvp) > 0 {
				v := strings.EqualFold(rsvp[0], "TRUE")
				att.RSVP = &v
			}
			if role, ok := params["ROLE"]; ok && len(role) > 0 {
				att.Role = role[0]
			}
		}
		out = append(out, att)
	}
	return out
}

func parseOrganizer(ve *ical.VEvent) *Organizer {
	p := ve.GetProperty(ical.ComponentPropertyOrganizer)
	if p == nil {
		return nil
	}
	email := extractEmail(p.Value)
	if email == "" {
		// An organizer with no resolvable email is dropped.
		return nil
	}
	org := &Organizer{Email: email}
	if params := p.ICalParameters; params != nil {
		if cn, ok := params["CN"]; ok && len(cn) > 0 {
			org.Name = strings.Trim(cn[0], `"`)
		}
	}
	return org
}

// extractEmail strips an optional mailto: prefix and rejects values that do
// not look like an address.
func extractEmail(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.Index(strings.ToLower(v), "mailto:"); i == 0 {
		v = v[len("mailto:"):]
	}
	if !strings.Contains(v, "@") {
		return ""
	}
	return v
}

// truncate cuts text to at most maxLen bytes without splitting a rune.
func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
