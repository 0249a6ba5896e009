package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/pkg/logger"
)

const (
	// Per-token path supports multiple users verifying the same domain at
	// once; the legacy shared path predates that.
	wellKnownDir    = "/.well-known/domainstack-verify/"
	legacyFilePath  = "/.well-known/domainstack-verify.html"
	fileBodyPrefix  = "domainstack-verify: "
	htmlMaxBody     = 1024
	htmlMaxRedirect = 3
)

// HTMLChecker proves ownership through a well-known file. All fetches go
// through the SSRF-guarded client.
type HTMLChecker struct {
	client *http.Client
	logger *logger.Logger
}

type HTMLCheckerConfig struct {
	Timeout      time.Duration
	AllowPrivate bool
}

func NewHTMLChecker(cfg HTMLCheckerConfig, log *logger.Logger) *HTMLChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTMLChecker{
		client: newSafeClient(SafeClientConfig{
			Timeout:      cfg.Timeout,
			MaxRedirects: htmlMaxRedirect,
			MaxBodyBytes: htmlMaxBody,
			AllowPrivate: cfg.AllowPrivate,
		}),
		logger: log,
	}
}

func (c *HTMLChecker) Method() model.VerificationMethod {
	return model.MethodHTMLFile
}

// Check fetches the token-specific path before the legacy one, HTTPS before
// HTTP for each. Any fetch failure just means that path didn't prove it.
func (c *HTMLChecker) Check(ctx context.Context, domain, token string) (bool, error) {
	expected := fileBodyPrefix + token
	paths := []string{
		wellKnownDir + token + ".html",
		legacyFilePath,
	}

	for _, path := range paths {
		for _, scheme := range []string{"https", "http"} {
			target := fmt.Sprintf("%s://%s%s", scheme, domain, path)
			body, err := c.fetch(ctx, target)
			if err != nil {
				if errors.Is(err, ErrBlockedTarget) {
					c.logger.Warn("verification fetch blocked",
						"domain", domain, "url", target, "error", err.Error())
				} else {
					c.logger.Debug("verification file fetch failed",
						"url", target, "error", err.Error())
				}
				continue
			}
			if strings.TrimSpace(body) == expected {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *HTMLChecker) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	return readBody(resp, htmlMaxBody)
}
