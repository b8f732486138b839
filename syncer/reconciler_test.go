package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/feedcal/feedcal/feed"
	"github.com/feedcal/feedcal/models"
)

func remoteEvent(uid, title string) feed.RemoteEvent {
	return feed.RemoteEvent{
		UID:      uid,
		Title:    title,
		Start:    time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
		Timezone: "UTC",
		Status:   "CONFIRMED",
	}
}

func storedEvent(id uint, uid, title string) models.CalendarEvent {
	ev := toStoredEvent(1, remoteEvent(uid, title), time.Now().UTC())
	ev.ID = id
	return ev
}

func TestReconcileCreatesNewEvents(t *testing.T) {
	remote := []feed.RemoteEvent{remoteEvent("a", "Event A"), remoteEvent("b", "Event B")}
	stored := []models.CalendarEvent{storedEvent(1, "a", "Event A")}

	diff := Reconcile(1, remote, stored, true)

	require.Len(t, diff.Creates, 1)
	assert.Equal(t, "b", diff.Creates[0].UID)
	assert.Empty(t, diff.Updates)
	assert.Empty(t, diff.DeleteUIDs)
}

func TestReconcileDeletesOnlyOnFullRefresh(t *testing.T) {
	remote := []feed.RemoteEvent{remoteEvent("a", "Event A")}
	stored := []models.CalendarEvent{
		storedEvent(1, "a", "Event A"),
		storedEvent(2, "b", "Event B"),
	}

	diff := Reconcile(1, remote, stored, true)
	assert.Equal(t, []string{"b"}, diff.DeleteUIDs)

	// Without a full refresh absence proves nothing, so nothing is deleted.
	diff = Reconcile(1, remote, stored, false)
	assert.Empty(t, diff.DeleteUIDs)
}

func TestReconcileUpdatesChangedEvents(t *testing.T) {
	remote := []feed.RemoteEvent{remoteEvent("a", "Renamed")}
	existing := storedEvent(7, "a", "Event A")
	existing.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	diff := Reconcile(1, remote, []models.CalendarEvent{existing}, true)

	require.Len(t, diff.Updates, 1)
	assert.Equal(t, "Renamed", diff.Updates[0].Title)
	assert.Equal(t, uint(7), diff.Updates[0].ID)
	assert.Equal(t, existing.CreatedAt, diff.Updates[0].CreatedAt)
	assert.Empty(t, diff.Creates)
	assert.Empty(t, diff.DeleteUIDs)
}

func TestReconcileIsIdempotent(t *testing.T) {
	remote := []feed.RemoteEvent{remoteEvent("a", "Event A"), remoteEvent("b", "Event B")}

	first := Reconcile(1, remote, nil, true)
	require.Len(t, first.Creates, 2)

	// Applying the same snapshot against its own result changes nothing.
	second := Reconcile(1, remote, first.Creates, true)
	assert.Empty(t, second.Creates)
	assert.Empty(t, second.Updates)
	assert.Empty(t, second.DeleteUIDs)
}

func TestReconcileDeduplicatesRepeatedUIDs(t *testing.T) {
	// An overridden recurring instance repeats its parent's UID in the
	// same feed; only one write per UID may ever be emitted.
	remote := []feed.RemoteEvent{
		remoteEvent("a", "Event A"),
		remoteEvent("a", "Event A (moved instance)"),
	}

	diff := Reconcile(1, remote, nil, true)
	require.Len(t, diff.Creates, 1)
	assert.Equal(t, "Event A", diff.Creates[0].Title)

	stored := []models.CalendarEvent{storedEvent(1, "a", "Event A")}
	diff = Reconcile(1, remote, stored, true)
	assert.Empty(t, diff.Creates)
	assert.Empty(t, diff.Updates)
	assert.Empty(t, diff.DeleteUIDs)
}

func TestReconcileRevivesSoftDeletedEvents(t *testing.T) {
	existing := storedEvent(3, "a", "Event A")
	existing.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}

	diff := Reconcile(1, []feed.RemoteEvent{remoteEvent("a", "Event A")},
		[]models.CalendarEvent{existing}, true)

	// Identical content still produces an update so the record is revived.
	require.Len(t, diff.Updates, 1)
	assert.Equal(t, uint(3), diff.Updates[0].ID)
	assert.Empty(t, diff.Creates)
}

func TestReconcileSkipsAlreadyDeletedAbsentEvents(t *testing.T) {
	existing := storedEvent(3, "gone", "Old Event")
	existing.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}

	diff := Reconcile(1, nil, []models.CalendarEvent{existing}, true)
	assert.Empty(t, diff.DeleteUIDs)
}

func TestReconcileTracksFieldChanges(t *testing.T) {
	base := remoteEvent("a", "Event A")

	tests := []struct {
		name   string
		mutate func(*feed.RemoteEvent)
	}{
		{"description", func(e *feed.RemoteEvent) { e.Description = "new notes" }},
		{"location", func(e *feed.RemoteEvent) { e.Location = "Room 9" }},
		{"start time", func(e *feed.RemoteEvent) { e.Start = e.Start.Add(time.Hour) }},
		{"status", func(e *feed.RemoteEvent) { e.Status = "CANCELLED" }},
		{"all-day flag", func(e *feed.RemoteEvent) { e.AllDay = true }},
		{"recurrence rule", func(e *feed.RemoteEvent) {
			e.IsRecurring = true
			e.RecurrenceRule = "FREQ=DAILY"
		}},
		{"attendees", func(e *feed.RemoteEvent) {
			e.Attendees = []feed.Attendee{{Email: "alex@example.com"}}
		}},
		{"organizer", func(e *feed.RemoteEvent) {
			e.Organizer = &feed.Organizer{Email: "dana@example.com"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := base
			tt.mutate(&changed)
			stored := []models.CalendarEvent{storedEvent(1, "a", "Event A")}

			diff := Reconcile(1, []feed.RemoteEvent{changed}, stored, true)
			assert.Len(t, diff.Updates, 1)
		})
	}
}

func TestReconcileTimeComparisonIgnoresLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	remote := remoteEvent("a", "Event A")
	stored := storedEvent(1, "a", "Event A")
	// Same instant expressed in a different location is not a change.
	stored.StartTime = stored.StartTime.In(loc)
	stored.EndTime = stored.EndTime.In(loc)

	diff := Reconcile(1, []feed.RemoteEvent{remote}, []models.CalendarEvent{stored}, true)
	assert.Empty(t, diff.Updates)
}
