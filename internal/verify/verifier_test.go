package verify

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/pkg/logger"
	"github.com/domainstack/api/pkg/metrics"
)

var testMetrics = metrics.New("verify_test")

type fakeChecker struct {
	method model.VerificationMethod
	ok     bool
	err    error
	panics bool
	calls  int
}

func (f *fakeChecker) Method() model.VerificationMethod { return f.method }

func (f *fakeChecker) Check(ctx context.Context, domain, token string) (bool, error) {
	f.calls++
	if f.panics {
		panic("checker exploded")
	}
	return f.ok, f.err
}

func TestVerifierTryAllPriorityOrder(t *testing.T) {
	dns := &fakeChecker{method: model.MethodDNSTxt, ok: true}
	html := &fakeChecker{method: model.MethodHTMLFile, ok: true}
	meta := &fakeChecker{method: model.MethodMetaTag, ok: true}

	v := NewVerifier(logger.NewLogger(nil), testMetrics, dns, html, meta)
	result := v.TryAll(context.Background(), "example.com", "tok")

	assert.True(t, result.Verified)
	assert.Equal(t, model.MethodDNSTxt, result.Method)
	assert.Equal(t, 1, dns.calls)
	assert.Zero(t, html.calls, "later methods must not run after a success")
	assert.Zero(t, meta.calls)
}

func TestVerifierTryAllFallsThrough(t *testing.T) {
	dns := &fakeChecker{method: model.MethodDNSTxt}
	html := &fakeChecker{method: model.MethodHTMLFile, err: errors.New("connection refused")}
	meta := &fakeChecker{method: model.MethodMetaTag, ok: true}

	v := NewVerifier(logger.NewLogger(nil), testMetrics, dns, html, meta)
	result := v.TryAll(context.Background(), "example.com", "tok")

	assert.True(t, result.Verified)
	assert.Equal(t, model.MethodMetaTag, result.Method)
}

func TestVerifierTryAllAllFail(t *testing.T) {
	dns := &fakeChecker{method: model.MethodDNSTxt}
	html := &fakeChecker{method: model.MethodHTMLFile}
	meta := &fakeChecker{method: model.MethodMetaTag}

	v := NewVerifier(logger.NewLogger(nil), testMetrics, dns, html, meta)
	result := v.TryAll(context.Background(), "example.com", "tok")

	assert.False(t, result.Verified)
	assert.Empty(t, result.Method)
}

func TestVerifierTryAllSurvivesPanic(t *testing.T) {
	dns := &fakeChecker{method: model.MethodDNSTxt, panics: true}
	html := &fakeChecker{method: model.MethodHTMLFile, ok: true}

	v := NewVerifier(logger.NewLogger(nil), testMetrics, dns, html)
	result := v.TryAll(context.Background(), "example.com", "tok")

	assert.True(t, result.Verified)
	assert.Equal(t, model.MethodHTMLFile, result.Method)
}

func TestVerifierVerifySingleMethod(t *testing.T) {
	dns := &fakeChecker{method: model.MethodDNSTxt}
	html := &fakeChecker{method: model.MethodHTMLFile, ok: true}

	v := NewVerifier(logger.NewLogger(nil), testMetrics, dns, html)
	result := v.Verify(context.Background(), "example.com", "tok", model.MethodHTMLFile)

	assert.True(t, result.Verified)
	assert.Equal(t, model.MethodHTMLFile, result.Method)
	assert.Zero(t, dns.calls, "explicit method must not fall back to others")
}

func TestVerifierVerifyUnknownMethod(t *testing.T) {
	v := NewVerifier(logger.NewLogger(nil), testMetrics, &fakeChecker{method: model.MethodDNSTxt})
	result := v.Verify(context.Background(), "example.com", "tok", model.VerificationMethod("carrier_pigeon"))

	assert.False(t, result.Verified)
	assert.NotEmpty(t, result.Error)
}

func TestVerifierVerifyAbsorbsErrors(t *testing.T) {
	dns := &fakeChecker{method: model.MethodDNSTxt, err: errors.New("resolver down")}

	v := NewVerifier(logger.NewLogger(nil), testMetrics, dns)
	result := v.Verify(context.Background(), "example.com", "tok", model.MethodDNSTxt)

	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "resolver down")
}

func TestVerifierRecordsCheckOutcomes(t *testing.T) {
	m := metrics.New("verify_outcomes_test")
	dns := &fakeChecker{method: model.MethodDNSTxt, ok: true}
	html := &fakeChecker{method: model.MethodHTMLFile, err: errors.New("timeout")}
	v := NewVerifier(logger.NewLogger(nil), m, html, dns)

	result := v.TryAll(context.Background(), "example.com", "tok")
	require.True(t, result.Verified)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.VerificationChecks.WithLabelValues(string(model.MethodHTMLFile), "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.VerificationChecks.WithLabelValues(string(model.MethodDNSTxt), "verified")))
}

func TestGenerateToken(t *testing.T) {
	hexRe := regexp.MustCompile(`^[0-9a-f]{32}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)
		assert.Regexp(t, hexRe, tok)
		assert.False(t, seen[tok], "tokens must not repeat")
		seen[tok] = true
	}
}

func TestBuildInstructionsDeterministic(t *testing.T) {
	a := BuildInstructions("example.com", "abc123")
	b := BuildInstructions("example.com", "abc123")
	assert.Equal(t, a, b)

	assert.Equal(t, "example.com", a.DNSTxt.Host)
	assert.Equal(t, "_domainstack-verify.example.com", a.DNSTxt.LegacyHost)
	assert.Equal(t, "TXT", a.DNSTxt.RecordType)
	assert.Equal(t, "domainstack-verify=abc123", a.DNSTxt.Value)

	assert.Equal(t, "/.well-known/domainstack-verify/abc123.html", a.HTMLFile.Path)
	assert.Equal(t, "abc123.html", a.HTMLFile.Filename)
	assert.Equal(t, "domainstack-verify: abc123", a.HTMLFile.Content)
	assert.Equal(t, "/.well-known/domainstack-verify.html", a.HTMLFile.LegacyPath)

	assert.Contains(t, a.MetaTag.Tag, `name="domainstack-verify"`)
	assert.Contains(t, a.MetaTag.Tag, `content="abc123"`)
}
