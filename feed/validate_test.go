package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFeed(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nX-WR-CALNAME:Team Holidays\r\n" +
		"BEGIN:VEVENT\r\nUID:a\r\nSUMMARY:x\r\nDTSTART:20250310T140000Z\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:b\r\nSUMMARY:y\r\nDTSTART:20250311T140000Z\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer server.Close()

	info := newTestFetcher().ValidateFeed(context.Background(), server.URL)
	assert.True(t, info.Valid)
	assert.Equal(t, "Team Holidays", info.CalendarName)
	assert.Equal(t, 2, info.EventCount)
	assert.Empty(t, info.Error)
}

func TestValidateFeedWithoutCalendarName(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer server.Close()

	info := newTestFetcher().ValidateFeed(context.Background(), server.URL)
	assert.True(t, info.Valid)
	assert.Equal(t, "Imported Calendar", info.CalendarName)
	assert.Zero(t, info.EventCount)

	// An empty calendar still reports its count explicitly.
	payload, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"event_count":0`)
}

func TestValidateFeedNonCalendarContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>sign in</body></html>"))
	}))
	defer server.Close()

	info := newTestFetcher().ValidateFeed(context.Background(), server.URL)
	assert.False(t, info.Valid)
	assert.Contains(t, info.Error, "invalid iCalendar format")
}

func TestValidateFeedUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	info := newTestFetcher().ValidateFeed(context.Background(), server.URL)
	assert.False(t, info.Valid)
	assert.NotEmpty(t, info.Error)
}
