package verify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/pkg/logger"
	"github.com/domainstack/api/pkg/metrics"
)

// Checker answers "does this domain currently present evidence of this
// token" for one verification method. Checkers never persist anything.
type Checker interface {
	Method() model.VerificationMethod
	Check(ctx context.Context, domain, token string) (bool, error)
}

// Verifier dispatches verification checks over the closed method set.
type Verifier struct {
	checkers map[model.VerificationMethod]Checker
	order    []model.VerificationMethod
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewVerifier wires the given checkers in priority order. Order is part of
// the contract: TryAll always attempts checkers in the order given here.
func NewVerifier(log *logger.Logger, m *metrics.Metrics, checkers ...Checker) *Verifier {
	v := &Verifier{
		checkers: make(map[model.VerificationMethod]Checker, len(checkers)),
		metrics:  m,
		logger:   log,
	}
	for _, c := range checkers {
		v.checkers[c.Method()] = c
		v.order = append(v.order, c.Method())
	}
	return v
}

// NewDefaultVerifier builds the production DNS -> HTML -> meta chain.
func NewDefaultVerifier(dnsCfg DNSCheckerConfig, htmlCfg HTMLCheckerConfig, metaCfg MetaCheckerConfig, m *metrics.Metrics, log *logger.Logger) *Verifier {
	return NewVerifier(log, m,
		NewDNSChecker(dnsCfg, log),
		NewHTMLChecker(htmlCfg, log),
		NewMetaChecker(metaCfg, log),
	)
}

// Verify runs exactly the named method. A checker error is absorbed into a
// negative result: a single caller-specified check is never fatal to the
// caller.
func (v *Verifier) Verify(ctx context.Context, domain, token string, method model.VerificationMethod) model.VerificationResult {
	checker, ok := v.checkers[method]
	if !ok {
		return model.VerificationResult{
			Verified: false,
			Error:    fmt.Sprintf("unknown verification method %q", method),
		}
	}

	start := time.Now()
	ok, err := v.safeCheck(ctx, checker, domain, token)
	v.observe(method, start, ok, err)
	if err != nil {
		v.logger.Debug("verification check errored",
			"domain", domain, "method", string(method), "error", err.Error())
		return model.VerificationResult{Verified: false, Error: err.Error()}
	}
	if !ok {
		return model.VerificationResult{Verified: false}
	}
	return model.VerificationResult{Verified: true, Method: method}
}

// TryAll runs the checkers in fixed priority order, short-circuiting on the
// first success. Each method is independently guarded so one checker
// blowing up never prevents trying the rest.
func (v *Verifier) TryAll(ctx context.Context, domain, token string) model.VerificationResult {
	for _, method := range v.order {
		checker := v.checkers[method]
		start := time.Now()
		ok, err := v.safeCheck(ctx, checker, domain, token)
		v.observe(method, start, ok, err)
		if err != nil {
			v.logger.Debug("verification method errored",
				"domain", domain, "method", string(method), "error", err.Error())
			continue
		}
		if ok {
			return model.VerificationResult{Verified: true, Method: method}
		}
	}
	return model.VerificationResult{Verified: false}
}

func (v *Verifier) observe(method model.VerificationMethod, start time.Time, ok bool, err error) {
	if v.metrics == nil {
		return
	}
	outcome := "failed"
	switch {
	case err != nil:
		outcome = "error"
	case ok:
		outcome = "verified"
	}
	v.metrics.VerificationChecks.WithLabelValues(string(method), outcome).Inc()
	v.metrics.VerificationLatency.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())
}

func (v *Verifier) safeCheck(ctx context.Context, checker Checker, domain, token string) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			err = fmt.Errorf("checker panic: %v", p)
		}
	}()
	return checker.Check(ctx, domain, token)
}

// GenerateToken returns a 32-character lowercase hex verification token
// (128 bits of randomness). Generated once per claim and immutable after.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DNSInstructions tell the user the exact record to publish.
type DNSInstructions struct {
	Host       string `json:"host"`
	LegacyHost string `json:"legacy_host"`
	RecordType string `json:"record_type"`
	Value      string `json:"value"`
	TTL        int    `json:"ttl"`
}

// HTMLInstructions tell the user the exact file to serve.
type HTMLInstructions struct {
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	Content    string `json:"content"`
	LegacyPath string `json:"legacy_path"`
}

// MetaInstructions tell the user the exact tag to add.
type MetaInstructions struct {
	Tag string `json:"tag"`
}

// Instructions bundles the setup steps for every method.
type Instructions struct {
	DNSTxt   DNSInstructions  `json:"dns_txt"`
	HTMLFile HTMLInstructions `json:"html_file"`
	MetaTag  MetaInstructions `json:"meta_tag"`
}

// BuildInstructions renders the publishable evidence for every method. It
// is a pure function of (domain, token): no I/O, no state, so the same
// bundle can be recomputed identically at any time.
func BuildInstructions(domain, token string) Instructions {
	return Instructions{
		DNSTxt: DNSInstructions{
			Host:       domain,
			LegacyHost: legacyTXTHostPrefix + domain,
			RecordType: "TXT",
			Value:      txtValuePrefix + token,
			TTL:        3600,
		},
		HTMLFile: HTMLInstructions{
			Path:       wellKnownDir + token + ".html",
			Filename:   token + ".html",
			Content:    fileBodyPrefix + token,
			LegacyPath: legacyFilePath,
		},
		MetaTag: MetaInstructions{
			Tag: fmt.Sprintf(`<meta name=%q content=%q>`, metaTagName, token),
		},
	}
}
