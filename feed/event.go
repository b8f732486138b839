package feed

import "time"

// Attendee is one ATTENDEE entry from a VEVENT. RSVP is nil when the feed
// did not carry the parameter.
type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	RSVP  *bool  `json:"rsvp,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Organizer is the ORGANIZER entry from a VEVENT.
type Organizer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// RemoteEvent is the normalized form of one VEVENT as observed in a feed.
// It is ephemeral: the parser produces it, the reconciler consumes it.
// Every RemoteEvent has a non-empty UID and a valid start; events missing
// either never leave the parser.
type RemoteEvent struct {
	UID         string
	Title       string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Timezone is the sanitized TZID label, "UTC" when absent or rejected.
	Timezone string

	// Status is CONFIRMED, TENTATIVE, or CANCELLED.
	Status string

	IsRecurring bool
	// RecurrenceRule is always a flat FREQ=...;... parameter string,
	// never a structured value.
	RecurrenceRule string
	// ExceptionDates is nil when the event carries no EXDATE.
	ExceptionDates []time.Time

	Attendees []Attendee
	Organizer *Organizer
}
