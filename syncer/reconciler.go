package syncer

import (
	"encoding/json"
	"time"

	"github.com/feedcal/feedcal/feed"
	"github.com/feedcal/feedcal/models"
)

// Diff is the set of persistence operations that make the stored event set
// match one observed remote snapshot.
type Diff struct {
	Creates    []models.CalendarEvent
	Updates    []models.CalendarEvent
	DeleteUIDs []string
}

// Reconcile indexes both collections by UID and computes creates, updates,
// and soft-deletes. Deletes are only emitted on a full refresh: a 304
// response never observed the remote set, so absence proves nothing.
// Applying the same snapshot twice yields an empty diff the second time.
func Reconcile(connectionID uint, remote []feed.RemoteEvent, stored []models.CalendarEvent, fullRefresh bool) Diff {
	var diff Diff

	storedByUID := make(map[string]models.CalendarEvent, len(stored))
	for _, ev := range stored {
		storedByUID[ev.UID] = ev
	}

	seen := make(map[string]struct{}, len(remote))
	now := time.Now().UTC()

	for _, rev := range remote {
		// Feeds with overridden recurring instances (RECURRENCE-ID) repeat
		// a UID across VEVENTs; only the first occurrence is reconciled so
		// one remote snapshot never emits two writes for the same UID.
		if _, dup := seen[rev.UID]; dup {
			continue
		}
		seen[rev.UID] = struct{}{}
		candidate := toStoredEvent(connectionID, rev, now)

		existing, ok := storedByUID[rev.UID]
		if !ok {
			diff.Creates = append(diff.Creates, candidate)
			continue
		}
		if eventChanged(existing, candidate) {
			// Preserve the stored record's identity; a revived UID also
			// lands here because eventChanged treats soft deletion as a
			// difference.
			candidate.ID = existing.ID
			candidate.CreatedAt = existing.CreatedAt
			diff.Updates = append(diff.Updates, candidate)
		}
	}

	if fullRefresh {
		for _, ev := range stored {
			if _, ok := seen[ev.UID]; ok {
				continue
			}
			if ev.DeletedAt.Valid {
				continue // already soft-deleted
			}
			diff.DeleteUIDs = append(diff.DeleteUIDs, ev.UID)
		}
	}

	return diff
}

// toStoredEvent converts a parsed remote event into its stored form for
// connectionID. List-valued fields are serialized to JSON so the stored and
// candidate forms compare as plain strings.
func toStoredEvent(connectionID uint, rev feed.RemoteEvent, syncedAt time.Time) models.CalendarEvent {
	ev := models.CalendarEvent{
		ConnectionID: connectionID,
		UID:          rev.UID,
		Title:        rev.Title,
		StartTime:    rev.Start,
		EndTime:      rev.End,
		IsAllDay:     rev.AllDay,
		Timezone:     rev.Timezone,
		Status:       rev.Status,
		IsRecurring:  rev.IsRecurring,
		LastSyncedAt: &syncedAt,
	}
	if rev.Description != "" {
		ev.Description = strPtr(rev.Description)
	}
	if rev.Location != "" {
		ev.Location = strPtr(rev.Location)
	}
	if rev.RecurrenceRule != "" {
		ev.RecurrenceRule = strPtr(rev.RecurrenceRule)
	}
	if len(rev.ExceptionDates) > 0 {
		ev.ExceptionDates = jsonPtr(rev.ExceptionDates)
	}
	if len(rev.Attendees) > 0 {
		ev.Attendees = jsonPtr(rev.Attendees)
	}
	if rev.Organizer != nil {
		ev.Organizer = jsonPtr(rev.Organizer)
	}
	return ev
}

// eventChanged reports whether any tracked field differs between the stored
// record and the freshly parsed candidate.
func eventChanged(stored, candidate models.CalendarEvent) bool {
	if stored.DeletedAt.Valid {
		return true // reappearing UID revives the record
	}
	if stored.Title != candidate.Title {
		return true
	}
	if !strPtrEqual(stored.Description, candidate.Description) {
		return true
	}
	if !strPtrEqual(stored.Location, candidate.Location) {
		return true
	}
	if !stored.StartTime.Equal(candidate.StartTime) {
		return true
	}
	if !stored.EndTime.Equal(candidate.EndTime) {
		return true
	}
	if stored.IsAllDay != candidate.IsAllDay {
		return true
	}
	if stored.Status != candidate.Status {
		return true
	}
	if !strPtrEqual(stored.RecurrenceRule, candidate.RecurrenceRule) {
		return true
	}
	if !strPtrEqual(stored.ExceptionDates, candidate.ExceptionDates) {
		return true
	}
	if !strPtrEqual(stored.Attendees, candidate.Attendees) {
		return true
	}
	if !strPtrEqual(stored.Organizer, candidate.Organizer) {
		return true
	}
	return false
}

func strPtr(s string) *string {
	return &s
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func jsonPtr(v interface{}) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
