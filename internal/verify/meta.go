package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/pkg/logger"
)

const (
	metaTagName = "domainstack-verify"

	// Homepages are bigger and redirect more than well-known files.
	metaMaxBody     = 512 * 1024
	metaMaxRedirect = 5
)

// MetaChecker proves ownership through a meta tag in the homepage head.
type MetaChecker struct {
	client *http.Client
	logger *logger.Logger
}

type MetaCheckerConfig struct {
	Timeout      time.Duration
	AllowPrivate bool
}

func NewMetaChecker(cfg MetaCheckerConfig, log *logger.Logger) *MetaChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MetaChecker{
		client: newSafeClient(SafeClientConfig{
			Timeout:      cfg.Timeout,
			MaxRedirects: metaMaxRedirect,
			MaxBodyBytes: metaMaxBody,
			AllowPrivate: cfg.AllowPrivate,
		}),
		logger: log,
	}
}

func (c *MetaChecker) Method() model.VerificationMethod {
	return model.MethodMetaTag
}

// Check fetches the homepage (HTTPS then HTTP) and scans the head for any
// matching meta tag. Several users may be verifying the same domain
// concurrently, so the page may carry several domainstack-verify tags;
// any one whose content equals this caller's token wins.
func (c *MetaChecker) Check(ctx context.Context, domain, token string) (bool, error) {
	for _, scheme := range []string{"https", "http"} {
		target := fmt.Sprintf("%s://%s/", scheme, domain)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return false, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, ErrBlockedTarget) {
				c.logger.Warn("homepage fetch blocked",
					"domain", domain, "url", target, "error", err.Error())
			} else {
				c.logger.Debug("homepage fetch failed",
					"url", target, "error", err.Error())
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}

		found := headContainsToken(io.LimitReader(resp.Body, metaMaxBody), token)
		resp.Body.Close()
		if found {
			return true, nil
		}
	}
	return false, nil
}

// headContainsToken streams the document looking for
// <meta name="domainstack-verify" content="<token>"> before the head ends.
// The tokenizer is tolerant of attribute order and quoting by construction.
func headContainsToken(r io.Reader, token string) bool {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag == "body" {
				// Head is over; a verification tag in the body doesn't count.
				return false
			}
			if tag != "meta" || !hasAttr {
				continue
			}

			var metaName, metaContent string
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "name":
					metaName = string(val)
				case "content":
					metaContent = string(val)
				}
				if !more {
					break
				}
			}
			if metaName == metaTagName && strings.TrimSpace(metaContent) == token {
				return true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "head" {
				return false
			}
		}
	}
}
