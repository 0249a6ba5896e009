package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/pkg/logger"
)

const (
	// TXT record value users publish: "domainstack-verify=<token>".
	txtValuePrefix = "domainstack-verify="

	// Older setup instructions pointed users at a dedicated subdomain.
	legacyTXTHostPrefix = "_domainstack-verify."

	dnsTypeTXT = 16
)

// DoHProvider is one DNS-over-HTTPS endpoint speaking the JSON API
// (Status + Answer array, numeric RR types).
type DoHProvider struct {
	Name string
	URL  string
}

// DefaultDoHProviders returns the fallback chain queried in order. Two
// independent resolvers survive a single provider outage and smooth over
// propagation lag on one side.
func DefaultDoHProviders() []DoHProvider {
	return []DoHProvider{
		{Name: "cloudflare", URL: "https://cloudflare-dns.com/dns-query"},
		{Name: "google", URL: "https://dns.google/resolve"},
	}
}

type dohResponse struct {
	Status int `json:"Status"`
	Answer []struct {
		Name string `json:"name"`
		Type int    `json:"type"`
		TTL  int    `json:"TTL"`
		Data string `json:"data"`
	} `json:"Answer"`
}

// DNSChecker proves ownership through a TXT record on the bare domain or
// the legacy verification subdomain.
type DNSChecker struct {
	providers []DoHProvider
	client    *http.Client
	logger    *logger.Logger
	retries   int
	backoff   time.Duration
}

type DNSCheckerConfig struct {
	Providers []DoHProvider
	Timeout   time.Duration
	Retries   int
	Backoff   time.Duration
}

func NewDNSChecker(cfg DNSCheckerConfig, log *logger.Logger) *DNSChecker {
	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultDoHProviders()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &DNSChecker{
		providers: cfg.Providers,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    log,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
	}
}

func (c *DNSChecker) Method() model.VerificationMethod {
	return model.MethodDNSTxt
}

// Check queries every provider for TXT records on both candidate hosts and
// succeeds if any answer equals the expected value exactly. Provider errors
// are skipped, not fatal: only exhausting the whole chain yields false.
func (c *DNSChecker) Check(ctx context.Context, domain, token string) (bool, error) {
	expected := txtValuePrefix + token
	hosts := []string{domain, legacyTXTHostPrefix + domain}

	for _, provider := range c.providers {
		for _, host := range hosts {
			records, err := c.queryTXT(ctx, provider, host)
			if err != nil {
				c.logger.Debug("DoH query failed",
					"provider", provider.Name, "host", host, "error", err.Error())
				continue
			}
			for _, record := range records {
				if strings.Trim(record, `"`) == expected {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (c *DNSChecker) queryTXT(ctx context.Context, provider DoHProvider, host string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		records, err := c.queryOnce(ctx, provider, host)
		if err == nil {
			return records, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *DNSChecker) queryOnce(ctx context.Context, provider DoHProvider, host string) ([]string, error) {
	params := url.Values{}
	params.Set("name", host)
	params.Set("type", "TXT")
	// Cache-buster: resolvers and CDNs in front of DoH endpoints may serve
	// stale answers; a fresh param per attempt sidesteps them.
	params.Set("t", fmt.Sprintf("%d", time.Now().UnixNano()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.URL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %s returned status %d", provider.Name, resp.StatusCode)
	}

	var body dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode DoH response: %w", err)
	}

	var records []string
	for _, answer := range body.Answer {
		if answer.Type == dnsTypeTXT {
			records = append(records, answer.Data)
		}
	}
	return records, nil
}
