package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/feedcal/feedcal/safeurl"
)

const (
	userAgent    = "feedcal/1.0 (calendar feed sync; github.com/feedcal/feedcal)"
	acceptHeader = "text/calendar, application/ics, text/plain"
	maxRedirects = 3
)

// CacheHints carries the validators stored from a previous fetch of the
// same feed.
type CacheHints struct {
	ETag         string
	LastModified string
}

// FetchResult is the outcome of one conditional fetch. Content is empty and
// Modified false when the server answered 304; the hint validators are echoed
// back so callers can persist them unchanged.
type FetchResult struct {
	Content      string
	ETag         string
	LastModified string
	Modified     bool
}

// Fetcher retrieves feeds with conditional HTTP requests, enforcing the URL
// safety policy, a redirect cap, a fetch timeout, and a body size ceiling.
type Fetcher struct {
	client  *http.Client
	maxSize int64
	mode    string
}

// NewFetcher builds a Fetcher. maxSize is the body ceiling in bytes, timeout
// the per-request deadline, mode the execution mode passed to the URL
// validator.
func NewFetcher(maxSize int64, timeout time.Duration, mode string) *Fetcher {
	f := &Fetcher{
		maxSize: maxSize,
		mode:    mode,
	}
	f.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			// Re-validate every hop; a safe URL may redirect to an
			// internal one.
			if err := safeurl.Validate(req.URL.String(), mode); err != nil {
				return err
			}
			return nil
		},
	}
	return f
}

// FetchFeed performs one conditional GET of url. The validator runs before
// the network call on every invocation, retries included.
func (f *Fetcher) FetchFeed(ctx context.Context, url string, hints CacheHints) (FetchResult, error) {
	if err := safeurl.Validate(url, f.mode); err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrURLValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	if hints.ETag != "" {
		req.Header.Set("If-None-Match", hints.ETag)
	}
	if hints.LastModified != "" {
		req.Header.Set("If-Modified-Since", hints.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, classifyClientError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return FetchResult{
			ETag:         hints.ETag,
			LastModified: hints.LastModified,
			Modified:     false,
		}, nil

	case resp.StatusCode == http.StatusOK:
		// Content-Length can lie or be absent, so the ceiling is enforced
		// on the buffered body regardless.
		if resp.ContentLength > f.maxSize {
			return FetchResult{}, fmt.Errorf("%w: content-length %d", ErrFeedTooLarge, resp.ContentLength)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
		if err != nil {
			return FetchResult{}, classifyClientError(err)
		}
		if int64(len(body)) > f.maxSize {
			return FetchResult{}, fmt.Errorf("%w: body larger than %d bytes", ErrFeedTooLarge, f.maxSize)
		}

		if ct := resp.Header.Get("Content-Type"); !isCalendarContentType(ct) {
			// Feeds are frequently mis-labeled; log and continue.
			log.Printf("Feed at %s has unexpected content type %q", redactURL(url), ct)
		}

		return FetchResult{
			Content:      string(body),
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Modified:     true,
		}, nil

	default:
		return FetchResult{}, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	}
}

func classifyClientError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	// A redirect hop rejected by the safety validator surfaces through the
	// client as a url.Error wrapping the validation failure.
	if errors.Is(err, safeurl.ErrPrivateAddr) || errors.Is(err, safeurl.ErrMetadata) ||
		errors.Is(err, safeurl.ErrScheme) || errors.Is(err, safeurl.ErrPlainHTTP) {
		return fmt.Errorf("%w: %v", ErrURLValidation, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func isCalendarContentType(ct string) bool {
	ct = strings.ToLower(ct)
	for _, accepted := range []string{"text/calendar", "application/ics", "text/plain"} {
		if strings.Contains(ct, accepted) {
			return true
		}
	}
	return false
}

// redactURL trims a feed URL to its host for logging; paths and query
// strings often embed private tokens.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest
}
