package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrBlockedTarget is returned when a fetch would reach a private,
// link-local, or otherwise disallowed address. Callers log these at warn:
// repeated hits can indicate someone probing internal networks through the
// verifier.
var ErrBlockedTarget = errors.New("target address is not allowed")

// SafeClientConfig bounds outbound fetches made on behalf of user-supplied
// domains.
type SafeClientConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64

	// AllowPrivate disables the address guard. Only for local development
	// and tests; never set in production config.
	AllowPrivate bool
}

func disallowedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// newSafeClient builds an http.Client whose dialer re-resolves and checks
// every connection target, including each redirect hop. Checking at dial
// time (rather than validating the URL host up front) closes the
// DNS-rebinding hole where a hostname resolves publicly once and privately
// later.
func newSafeClient(cfg SafeClientConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}

		for _, ip := range ips {
			if !cfg.AllowPrivate && disallowedIP(ip) {
				return nil, fmt.Errorf("%w: %s resolves to %s", ErrBlockedTarget, host, ip)
			}
		}

		var lastErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			DialContext:       dialContext,
			DisableKeepAlives: true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}
}

// readBody drains at most max bytes of the response body.
func readBody(resp *http.Response, max int64) (string, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, max))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
