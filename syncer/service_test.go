package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/feedcal/feedcal/feed"
	"github.com/feedcal/feedcal/models"
	"github.com/feedcal/feedcal/safeurl"
	"github.com/feedcal/feedcal/utils"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type storedValidators struct {
	etag         *string
	lastModified *string
	lastSyncedAt time.Time
}

// fakeStore is an in-memory Store for exercising the sync core without a
// database.
type fakeStore struct {
	mu          sync.Mutex
	connections []models.FeedConnection
	listErr     error
	events      map[uint][]models.CalendarEvent
	deleted     map[uint][]string
	validators  map[uint]storedValidators
	upsertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:     make(map[uint][]models.CalendarEvent),
		deleted:    make(map[uint][]string),
		validators: make(map[uint]storedValidators),
	}
}

func (f *fakeStore) ListActiveConnections() ([]models.FeedConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections, f.listErr
}

func (f *fakeStore) GetEvents(connectionID uint) ([]models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[connectionID], nil
}

func (f *fakeStore) UpsertEvents(connectionID uint, creates, updates []models.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.events[connectionID] = append(f.events[connectionID], creates...)
	for _, upd := range updates {
		for i, ev := range f.events[connectionID] {
			if ev.UID == upd.UID {
				f.events[connectionID][i] = upd
			}
		}
	}
	return nil
}

func (f *fakeStore) SoftDeleteEvents(connectionID uint, uids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[connectionID] = append(f.deleted[connectionID], uids...)
	return nil
}

func (f *fakeStore) UpdateCacheValidators(connectionID uint, etag, lastModified *string, lastSyncedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validators[connectionID] = storedValidators{etag: etag, lastModified: lastModified, lastSyncedAt: lastSyncedAt}
	return nil
}

func feedBody(events ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\n")
	for _, uid := range events {
		b.WriteString("BEGIN:VEVENT\r\nUID:" + uid + "\r\nSUMMARY:Event " + uid +
			"\r\nDTSTART:20250310T140000Z\r\nEND:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func newTestService(store Store) *Service {
	fetcher := feed.NewFetcher(1<<20, 5*time.Second, safeurl.ModeDevelopment)
	return NewService(store, fetcher)
}

func encryptedConnection(t *testing.T, id uint, url string) *models.FeedConnection {
	t.Helper()
	enc, err := utils.EncryptString(url)
	require.NoError(t, err)
	return &models.FeedConnection{
		Model:       gorm.Model{ID: id},
		Name:        "Test Feed",
		FeedURL:     enc,
		IsConnected: true,
	}
}

func TestSyncConnectionFullThenNotModified(t *testing.T) {
	t.Setenv("FEEDCAL_ENCRYPTION_KEY", testEncryptionKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(feedBody("a", "b")))
	}))
	defer server.Close()

	store := newFakeStore()
	svc := newTestService(store)
	conn := encryptedConnection(t, 1, server.URL)

	out := svc.SyncConnection(context.Background(), conn)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, 2, out.Added)
	assert.Zero(t, out.Updated)
	assert.Zero(t, out.Deleted)
	assert.Len(t, store.events[1], 2)
	require.NotNil(t, store.validators[1].etag)
	assert.Equal(t, `"v1"`, *store.validators[1].etag)

	firstSync := store.validators[1].lastSyncedAt

	// The caller persists the returned validators on the connection.
	conn.ETag = out.ETag
	conn.LastModified = out.LastModified

	out = svc.SyncConnection(context.Background(), conn)
	require.True(t, out.Success, out.Error)
	assert.Zero(t, out.Added)
	// 304 leaves stored events untouched but still advances the timestamp.
	assert.Equal(t, 1, store.upsertCalls)
	assert.Len(t, store.events[1], 2)
	assert.False(t, store.validators[1].lastSyncedAt.Before(firstSync))
	require.NotNil(t, store.validators[1].etag)
	assert.Equal(t, `"v1"`, *store.validators[1].etag)
}

func TestSyncConnectionRemovedEventIsSoftDeleted(t *testing.T) {
	t.Setenv("FEEDCAL_ENCRYPTION_KEY", testEncryptionKey)

	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer server.Close()

	store := newFakeStore()
	svc := newTestService(store)
	conn := encryptedConnection(t, 1, server.URL)

	body = feedBody("a", "b")
	out := svc.SyncConnection(context.Background(), conn)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, 2, out.Added)

	body = feedBody("a")
	out = svc.SyncConnection(context.Background(), conn)
	require.True(t, out.Success, out.Error)
	assert.Zero(t, out.Added)
	assert.Equal(t, 1, out.Deleted)
	assert.Equal(t, []string{"b"}, store.deleted[1])
}

func TestSyncConnectionFetchFailure(t *testing.T) {
	t.Setenv("FEEDCAL_ENCRYPTION_KEY", testEncryptionKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newFakeStore()
	svc := newTestService(store)
	conn := encryptedConnection(t, 1, server.URL)

	out := svc.SyncConnection(context.Background(), conn)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
	assert.Empty(t, store.events[1])
}

func TestSyncConnectionUnparseableFeed(t *testing.T) {
	t.Setenv("FEEDCAL_ENCRYPTION_KEY", testEncryptionKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>definitely not a calendar</html>"))
	}))
	defer server.Close()

	store := newFakeStore()
	svc := newTestService(store)
	conn := encryptedConnection(t, 1, server.URL)

	out := svc.SyncConnection(context.Background(), conn)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
}

func TestSyncConnectionDecryptFailure(t *testing.T) {
	t.Setenv("FEEDCAL_ENCRYPTION_KEY", testEncryptionKey)

	store := newFakeStore()
	svc := newTestService(store)
	conn := &models.FeedConnection{
		Model:   gorm.Model{ID: 1},
		FeedURL: "not-a-valid-ciphertext",
	}

	out := svc.SyncConnection(context.Background(), conn)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
}
