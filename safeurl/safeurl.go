// Package safeurl classifies candidate feed URLs before any network call is
// made with them. It exists to stop server-side request forgery: a feed URL is
// attacker-supplied input, and fetching it from inside the deployment network
// must never reach loopback, private ranges, or cloud metadata services.
package safeurl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Execution modes. Development admits loopback and private ranges so feeds
// served from a local test server can be fetched; production does not.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

var (
	ErrScheme      = errors.New("url scheme must be http or https")
	ErrPlainHTTP   = errors.New("plain http urls are not allowed in production")
	ErrPrivateAddr = errors.New("url resolves to a private or loopback address")
	ErrMetadata    = errors.New("url targets a cloud metadata endpoint")
)

// Metadata hostnames that must never be fetched, independent of what they
// resolve to.
var metadataHostnames = map[string]struct{}{
	"metadata.google.internal":     {},
	"metadata.goog":                {},
	"metadata.azure.internal":      {},
	"metadata.platformequinix.com": {},
}

// Metadata IPs checked separately from the private-range rules because they
// must be rejected in every mode, development included.
var metadataIPs = []string{
	"169.254.169.254",
	"fd00:ec2::254",
}

// Validate resolves and classifies rawURL. It must be called before every
// fetch attempt, retries included: DNS answers change between calls, and
// re-resolving here is the defense against DNS rebinding.
func Validate(rawURL, mode string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScheme, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if mode != ModeDevelopment {
			return ErrPlainHTTP
		}
	default:
		return fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrScheme)
	}

	if _, blocked := metadataHostnames[strings.ToLower(strings.TrimSuffix(host, "."))]; blocked {
		return fmt.Errorf("%w: %s", ErrMetadata, host)
	}

	// Literal IP hosts are classified directly; hostnames are resolved and
	// every answer is checked. One bad answer rejects the whole URL.
	if ip := net.ParseIP(host); ip != nil {
		return classifyIP(ip, mode)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("%w: dns lookup failed for %s: %v", ErrPrivateAddr, host, err)
	}
	for _, ip := range ips {
		if err := classifyIP(ip, mode); err != nil {
			return err
		}
	}
	return nil
}

func classifyIP(ip net.IP, mode string) error {
	for _, meta := range metadataIPs {
		if ip.Equal(net.ParseIP(meta)) {
			return fmt.Errorf("%w: %s", ErrMetadata, ip)
		}
	}

	if mode == ModeDevelopment {
		return nil
	}

	if ip.IsLoopback() || ip.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrPrivateAddr, ip)
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("%w: %s", ErrPrivateAddr, ip)
	}
	// RFC1918 and RFC4193 unique-local ranges.
	if ip.IsPrivate() {
		return fmt.Errorf("%w: %s", ErrPrivateAddr, ip)
	}
	return nil
}
