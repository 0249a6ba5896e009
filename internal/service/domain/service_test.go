package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainstack/api/internal/model"
	apperrors "github.com/domainstack/api/pkg/errors"
	"github.com/domainstack/api/pkg/logger"
)

// fakeDomainRepo is an in-memory DomainRepository faithful to the postgres
// contract: CreateTrackedDomain returns (nil, nil) on a (user, domain)
// collision, lookups return nil for missing rows.
type fakeDomainRepo struct {
	mu      sync.Mutex
	domains map[string]*model.Domain
	tracked map[uuid.UUID]*model.TrackedDomain
	names   map[uuid.UUID]string
}

func newFakeDomainRepo() *fakeDomainRepo {
	return &fakeDomainRepo{
		domains: make(map[string]*model.Domain),
		tracked: make(map[uuid.UUID]*model.TrackedDomain),
		names:   make(map[uuid.UUID]string),
	}
}

func (r *fakeDomainRepo) GetOrCreateDomain(ctx context.Context, name string) (*model.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.domains[name]; ok {
		return d, nil
	}
	d := &model.Domain{Name: name}
	d.ID = uuid.New()
	r.domains[name] = d
	r.names[d.ID] = name
	return d, nil
}

func (r *fakeDomainRepo) GetDomain(ctx context.Context, id uuid.UUID) (*model.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.domains {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDomainRepo) CreateTrackedDomain(ctx context.Context, td *model.TrackedDomain) (*model.TrackedDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tracked {
		if existing.UserID == td.UserID && existing.DomainID == td.DomainID && existing.ArchivedAt == nil {
			return nil, nil
		}
	}
	td.ID = uuid.New()
	td.VerificationStatus = model.StatusUnverified
	r.tracked[td.ID] = td
	return td, nil
}

func (r *fakeDomainRepo) FindTrackedDomain(ctx context.Context, userID, domainID uuid.UUID) (*model.TrackedDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, td := range r.tracked {
		if td.UserID == userID && td.DomainID == domainID && td.ArchivedAt == nil {
			return td, nil
		}
	}
	return nil, nil
}

func (r *fakeDomainRepo) FindTrackedDomainByID(ctx context.Context, id uuid.UUID) (*model.TrackedDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracked[id], nil
}

func (r *fakeDomainRepo) FindTrackedDomainWithDomainName(ctx context.Context, id uuid.UUID) (*model.TrackedDomainView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	td, ok := r.tracked[id]
	if !ok {
		return nil, nil
	}
	return &model.TrackedDomainView{
		TrackedDomain: *td,
		DomainName:    r.names[td.DomainID],
	}, nil
}

func (r *fakeDomainRepo) ListTrackedDomains(ctx context.Context, userID uuid.UUID) ([]*model.TrackedDomainView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TrackedDomainView
	for _, td := range r.tracked {
		if td.UserID == userID && td.ArchivedAt == nil {
			out = append(out, &model.TrackedDomainView{TrackedDomain: *td, DomainName: r.names[td.DomainID]})
		}
	}
	return out, nil
}

func (r *fakeDomainRepo) CountActiveTrackedDomains(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, td := range r.tracked {
		if td.UserID == userID && td.ArchivedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *fakeDomainRepo) VerifyTrackedDomain(ctx context.Context, id uuid.UUID, method model.VerificationMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	td := r.tracked[id]
	td.Verified = true
	td.VerificationMethod = &method
	td.VerificationStatus = model.StatusVerified
	td.VerificationFailedAt = nil
	return nil
}

func (r *fakeDomainRepo) MarkVerificationFailing(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	td := r.tracked[id]
	td.VerificationStatus = model.StatusFailing
	now := time.Now()
	td.VerificationFailedAt = &now
	return nil
}

func (r *fakeDomainRepo) MarkVerificationSuccessful(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	td := r.tracked[id]
	td.VerificationStatus = model.StatusVerified
	td.VerificationFailedAt = nil
	return nil
}

func (r *fakeDomainRepo) RevokeVerification(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	td := r.tracked[id]
	td.Verified = false
	td.VerificationMethod = nil
	td.VerificationStatus = model.StatusUnverified
	td.VerificationFailedAt = nil
	return nil
}

func (r *fakeDomainRepo) PendingTrackedDomainIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for id, td := range r.tracked {
		if !td.Verified && td.ArchivedAt == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeDomainRepo) VerifiedTrackedDomainIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for id, td := range r.tracked {
		if td.Verified && td.ArchivedAt == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeDomainRepo) VerifiedTrackedDomainsWithExpiry(ctx context.Context) ([]*model.TrackedDomainView, error) {
	return nil, nil
}

func (r *fakeDomainRepo) VerifiedTrackedDomainCertificates(ctx context.Context) ([]*model.TrackedDomainView, error) {
	return nil, nil
}

func (r *fakeDomainRepo) ArchiveTrackedDomain(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.tracked[id].ArchivedAt = &now
	return nil
}

func (r *fakeDomainRepo) UpdateNotificationOverrides(ctx context.Context, id uuid.UUID, overrides model.NotificationOverrides) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[id].NotificationOverrides = overrides
	return nil
}

// fakeVerifier returns scripted results.
type fakeVerifier struct {
	result model.VerificationResult
}

func (v *fakeVerifier) Verify(ctx context.Context, domain, token string, method model.VerificationMethod) model.VerificationResult {
	return v.result
}

func (v *fakeVerifier) TryAll(ctx context.Context, domain, token string) model.VerificationResult {
	return v.result
}

type fakeNotifier struct {
	failing int
	revoked int
	err     error
}

func (n *fakeNotifier) NotifyVerificationFailing(ctx context.Context, view *model.TrackedDomainView) error {
	n.failing++
	return n.err
}

func (n *fakeNotifier) NotifyVerificationRevoked(ctx context.Context, view *model.TrackedDomainView) error {
	n.revoked++
	return n.err
}

func newTestService(repo *fakeDomainRepo, verifier Verifier, notifier Notifier) *Service {
	return NewService(repo, verifier, notifier, 3, logger.NewLogger(nil))
}

func TestAddDomainNew(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	result, err := svc.AddDomain(context.Background(), userID, "Example.COM")
	require.NoError(t, err)

	assert.Equal(t, "example.com", result.Domain)
	assert.Len(t, result.VerificationToken, 32)
	assert.False(t, result.Resumed)
	assert.Equal(t, "example.com", result.Instructions.DNSTxt.Host)
	assert.Contains(t, result.Instructions.DNSTxt.Value, result.VerificationToken)
}

func TestAddDomainResumeKeepsToken(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	first, err := svc.AddDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)

	second, err := svc.AddDomain(context.Background(), userID, "https://example.com/some/path")
	require.NoError(t, err)

	assert.True(t, second.Resumed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.VerificationToken, second.VerificationToken,
		"resume must return the original token, published evidence refers to it")
}

func TestAddDomainVerifiedConflict(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{result: model.VerificationResult{Verified: true, Method: model.MethodDNSTxt}}, &fakeNotifier{})
	userID := uuid.New()

	result, err := svc.AddDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)

	_, err = svc.VerifyDomain(context.Background(), userID, result.ID, nil)
	require.NoError(t, err)

	_, err = svc.AddDomain(context.Background(), userID, "example.com")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.Code(err))
}

func TestAddDomainLimit(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	for _, name := range []string{"a.com", "b.com", "c.com"} {
		_, err := svc.AddDomain(context.Background(), userID, name)
		require.NoError(t, err)
	}

	_, err := svc.AddDomain(context.Background(), userID, "d.com")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.Code(err))
}

func TestAddDomainLimitDoesNotBlockResume(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	for _, name := range []string{"a.com", "b.com", "c.com"} {
		_, err := svc.AddDomain(context.Background(), userID, name)
		require.NoError(t, err)
	}

	result, err := svc.AddDomain(context.Background(), userID, "a.com")
	require.NoError(t, err)
	assert.True(t, result.Resumed)
}

func TestAddDomainInvalidNames(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	for _, name := range []string{"", "nodot", "-bad.com", "bad-.com", "exa mple.com", "under_score.com"} {
		_, err := svc.AddDomain(context.Background(), userID, name)
		require.Error(t, err, "name %q", name)
		assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err), "name %q", name)
	}
}

func TestAddDomainNormalization(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	result, err := svc.AddDomain(context.Background(), userID, "  HTTPS://Example.com./path?q=1  ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", result.Domain)
}

func TestVerifyDomainSuccessPersists(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{result: model.VerificationResult{Verified: true, Method: model.MethodHTMLFile}}, &fakeNotifier{})
	userID := uuid.New()

	added, err := svc.AddDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)

	result, err := svc.VerifyDomain(context.Background(), userID, added.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, model.MethodHTMLFile, result.Method)

	td, err := repo.FindTrackedDomainByID(context.Background(), added.ID)
	require.NoError(t, err)
	assert.True(t, td.Verified)
	assert.Equal(t, model.StatusVerified, td.VerificationStatus)
	require.NotNil(t, td.VerificationMethod)
	assert.Equal(t, model.MethodHTMLFile, *td.VerificationMethod)
}

func TestVerifyDomainFailureReturnsFriendlyError(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	added, err := svc.AddDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)

	result, err := svc.VerifyDomain(context.Background(), userID, added.ID, nil)
	require.NoError(t, err, "a negative check is a result, not an error")
	assert.False(t, result.Verified)
	assert.Equal(t, verificationFailedMessage, result.Error)

	td, _ := repo.FindTrackedDomainByID(context.Background(), added.ID)
	assert.False(t, td.Verified)
}

func TestVerifyDomainUnknownMethod(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	added, err := svc.AddDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)

	bogus := model.VerificationMethod("smoke_signal")
	_, err = svc.VerifyDomain(context.Background(), userID, added.ID, &bogus)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))
}

func TestVerifyDomainNotOwner(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})

	added, err := svc.AddDomain(context.Background(), uuid.New(), "example.com")
	require.NoError(t, err)

	_, err = svc.VerifyDomain(context.Background(), uuid.New(), added.ID, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.Code(err))
}

func TestVerifyDomainNotFound(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})

	_, err := svc.VerifyDomain(context.Background(), uuid.New(), uuid.New(), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.Code(err))
}

func TestInstructionsStableAcrossCalls(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	added, err := svc.AddDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)

	a, err := svc.Instructions(context.Background(), userID, added.ID)
	require.NoError(t, err)
	b, err := svc.Instructions(context.Background(), userID, added.ID)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, added.Instructions, a)
}

func TestArchiveDomainFreesLimitSlot(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	var firstID uuid.UUID
	for _, name := range []string{"a.com", "b.com", "c.com"} {
		r, err := svc.AddDomain(context.Background(), userID, name)
		require.NoError(t, err)
		if name == "a.com" {
			firstID = r.ID
		}
	}

	require.NoError(t, svc.ArchiveDomain(context.Background(), userID, firstID))

	_, err := svc.AddDomain(context.Background(), userID, "d.com")
	require.NoError(t, err)
}

func TestUpdateNotificationOverrides(t *testing.T) {
	repo := newFakeDomainRepo()
	svc := newTestService(repo, &fakeVerifier{}, &fakeNotifier{})
	userID := uuid.New()

	added, err := svc.AddDomain(context.Background(), userID, "example.com")
	require.NoError(t, err)

	overrides := model.NotificationOverrides{model.CategoryDomainExpiry: false}
	require.NoError(t, svc.UpdateNotificationOverrides(context.Background(), userID, added.ID, overrides))

	td, _ := repo.FindTrackedDomainByID(context.Background(), added.ID)
	assert.Equal(t, overrides, td.NotificationOverrides)
}
