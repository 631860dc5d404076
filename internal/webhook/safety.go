package webhook

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// UnsafeDestinationError rejects a webhook URL before any network activity.
// The Reason is safe to show to the user.
type UnsafeDestinationError struct {
	URL    string
	Reason string
}

func (e *UnsafeDestinationError) Error() string {
	return fmt.Sprintf("webhook: unsafe destination %q: %s", e.URL, e.Reason)
}

// CheckDestination applies the URL safety policy: the scheme must be exactly
// https, the host must not be an IP literal, and when an allow-list is
// configured the host must equal an allowed domain or be a subdomain of one.
// The check is purely syntactic; it performs no network calls.
func CheckDestination(rawURL string, allowedDomains []string) error {
	trimmed := strings.TrimSpace(rawURL)

	u, err := url.Parse(trimmed)
	if err != nil {
		return &UnsafeDestinationError{URL: rawURL, Reason: "not a valid URL"}
	}

	// url.Parse lowercases the scheme, so match the raw prefix to require
	// exactly "https".
	if u.Scheme != "https" || !strings.HasPrefix(trimmed, "https://") {
		return &UnsafeDestinationError{URL: rawURL, Reason: "only https destinations are allowed"}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &UnsafeDestinationError{URL: rawURL, Reason: "missing host"}
	}

	if net.ParseIP(host) != nil {
		return &UnsafeDestinationError{URL: rawURL, Reason: "IP address hosts are not allowed"}
	}

	if len(allowedDomains) == 0 {
		return nil
	}

	for _, domain := range allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
	}

	return &UnsafeDestinationError{URL: rawURL, Reason: "host is not on the allowed domain list"}
}
