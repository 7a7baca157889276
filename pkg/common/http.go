package common

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// The vendor's cloud rejects requests without the mobile app's User-Agent.
const vendorUserAgent = "okhttp/4.9.1"

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// HTTPClient returns an http client that always sends the vendor's expected
// User-Agent. proxyURL may be empty; when set, all requests are routed
// through that proxy.
func HTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	base := http.DefaultTransport
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.Proxy = http.ProxyURL(u)
		base = tr
	}

	return &http.Client{
		Transport: &userAgentTransport{
			transport: base,
			userAgent: vendorUserAgent,
		},
		Timeout: timeout,
	}, nil
}
