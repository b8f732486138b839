package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/feedcal/feedcal/feed"
	"github.com/feedcal/feedcal/models"
	"github.com/feedcal/feedcal/utils"
)

// SyncOutcome is the per-cycle result for one connection. It is ephemeral:
// logged, surfaced to manual-sync callers, and otherwise discarded.
type SyncOutcome struct {
	Success bool   `json:"success"`
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`

	ETag         *string `json:"-"`
	LastModified *string `json:"-"`
}

// Service drives fetch, parse, and reconcile for feed connections and
// persists results through the Store collaborator.
type Service struct {
	store   Store
	fetcher *feed.Fetcher
}

func NewService(store Store, fetcher *feed.Fetcher) *Service {
	return &Service{store: store, fetcher: fetcher}
}

// ValidateFeedURL previews a feed for user-facing display before any
// connection exists. Nothing is persisted.
func (s *Service) ValidateFeedURL(ctx context.Context, url string) feed.FeedInfo {
	return s.fetcher.ValidateFeed(ctx, url)
}

// SyncConnection runs one fetch-parse-reconcile pass for conn. All failures
// are reported in the outcome rather than returned: a broken connection is
// local to its own iteration.
func (s *Service) SyncConnection(ctx context.Context, conn *models.FeedConnection) SyncOutcome {
	url, err := utils.DecryptString(conn.FeedURL)
	if err != nil {
		return failure(fmt.Errorf("decrypting feed url: %w", err))
	}

	hints := feed.CacheHints{}
	if conn.ETag != nil {
		hints.ETag = *conn.ETag
	}
	if conn.LastModified != nil {
		hints.LastModified = *conn.LastModified
	}

	res, err := s.fetcher.FetchFeed(ctx, url, hints)
	if err != nil {
		return failure(err)
	}

	now := time.Now().UTC()

	if !res.Modified {
		// 304: the remote set was not observed, so the stored events stay
		// untouched and only the sync timestamp advances.
		if err := s.store.UpdateCacheValidators(conn.ID, conn.ETag, conn.LastModified, now); err != nil {
			return failure(err)
		}
		return SyncOutcome{Success: true, ETag: conn.ETag, LastModified: conn.LastModified}
	}

	remote, err := feed.ParseEvents(res.Content, conn.ID)
	if err != nil {
		return failure(err)
	}

	stored, err := s.store.GetEvents(conn.ID)
	if err != nil {
		return failure(err)
	}

	diff := Reconcile(conn.ID, remote, stored, true)

	if err := s.store.UpsertEvents(conn.ID, diff.Creates, diff.Updates); err != nil {
		return failure(err)
	}
	if err := s.store.SoftDeleteEvents(conn.ID, diff.DeleteUIDs); err != nil {
		return failure(err)
	}

	etag := optional(res.ETag)
	lastModified := optional(res.LastModified)
	if err := s.store.UpdateCacheValidators(conn.ID, etag, lastModified, now); err != nil {
		return failure(err)
	}

	outcome := SyncOutcome{
		Success:      true,
		Added:        len(diff.Creates),
		Updated:      len(diff.Updates),
		Deleted:      len(diff.DeleteUIDs),
		ETag:         etag,
		LastModified: lastModified,
	}
	log.Printf("Synced connection %d: %d added, %d updated, %d deleted",
		conn.ID, outcome.Added, outcome.Updated, outcome.Deleted)
	return outcome
}

func failure(err error) SyncOutcome {
	return SyncOutcome{Success: false, Error: err.Error()}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
