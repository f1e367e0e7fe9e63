package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	adrepository "videogate-backend/internal/features/adsession/repository"
	adservice "videogate-backend/internal/features/adsession/service"
	catalogmodels "videogate-backend/internal/features/catalog/models"
	catalogrepository "videogate-backend/internal/features/catalog/repository"
	catalogservice "videogate-backend/internal/features/catalog/service"
	"videogate-backend/internal/features/gating/service"
	usermodels "videogate-backend/internal/features/user/models"

	admodels "videogate-backend/internal/features/adsession/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLedger implements service.UserLedger and catalogservice.SeenStore with
// the same conditional-update semantics the Redis repository provides.
type memLedger struct {
	mu         sync.Mutex
	users      map[int64]*usermodels.User
	seen       map[int64]map[string]struct{}
	freeLimit  int
	resetCalls map[int64]int
	now        func() time.Time
}

func newMemLedger(freeLimit int) *memLedger {
	return &memLedger{
		users:      make(map[int64]*usermodels.User),
		seen:       make(map[int64]map[string]struct{}),
		freeLimit:  freeLimit,
		resetCalls: make(map[int64]int),
		now:        time.Now,
	}
}

func (l *memLedger) Ensure(_ context.Context, id int64, username string) (*usermodels.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		u = &usermodels.User{ID: id, Username: username, FreeLimit: l.freeLimit, CreatedAt: l.now()}
		l.users[id] = u
	}
	copied := *u
	return &copied, nil
}

func (l *memLedger) IsPremiumActive(user *usermodels.User) bool {
	return user.IsPremiumActive(l.now())
}

func (l *memLedger) TryConsumeFreeUnit(_ context.Context, id int64) (usermodels.ConsumeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return usermodels.ConsumeResult{}, errors.New("user missing")
	}
	if u.FreeUsed < u.FreeLimit {
		u.FreeUsed++
		return usermodels.ConsumeResult{Granted: true, FreeUsed: u.FreeUsed}, nil
	}
	return usermodels.ConsumeResult{Granted: false, FreeUsed: u.FreeUsed}, nil
}

func (l *memLedger) ResetFreeCycle(_ context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u, ok := l.users[id]; ok {
		u.FreeUsed = 0
	}
	l.resetCalls[id]++
	return nil
}

func (l *memLedger) AdvanceCursor(_ context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u, ok := l.users[id]; ok {
		u.Cursor++
	}
	return nil
}

func (l *memLedger) MarkSeen(_ context.Context, id int64, itemID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[id] == nil {
		l.seen[id] = make(map[string]struct{})
	}
	l.seen[id][itemID] = struct{}{}
	return nil
}

func (l *memLedger) Seen(_ context.Context, id int64) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]struct{}, len(l.seen[id]))
	for k := range l.seen[id] {
		out[k] = struct{}{}
	}
	return out, nil
}

func (l *memLedger) ClearSeen(_ context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, id)
	return nil
}

func (l *memLedger) grantPremium(id int64, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		u = &usermodels.User{ID: id, FreeLimit: l.freeLimit}
		l.users[id] = u
	}
	u.PremiumUntil = &until
}

func (l *memLedger) freeUsed(id int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[id].FreeUsed
}

func (l *memLedger) resets(id int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetCalls[id]
}

// memVideoRepo keeps catalog items in an ingestion-ordered slice.
type memVideoRepo struct {
	mu     sync.Mutex
	videos []*catalogmodels.Video
}

func (r *memVideoRepo) Add(_ context.Context, v *catalogmodels.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos = append(r.videos, v)
	return nil
}

func (r *memVideoRepo) GetByID(_ context.Context, id string) (*catalogmodels.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.videos {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, catalogrepository.ErrVideoNotFound
}

func (r *memVideoRepo) ByIndex(_ context.Context, index int) (*catalogmodels.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.videos) {
		return nil, catalogrepository.ErrVideoNotFound
	}
	return r.videos[index], nil
}

func (r *memVideoRepo) IDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.videos))
	for i, v := range r.videos {
		ids[i] = v.ID
	}
	return ids, nil
}

func (r *memVideoRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.videos)), nil
}

func (r *memVideoRepo) Latest(_ context.Context, limit int) ([]*catalogmodels.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*catalogmodels.Video, 0, limit)
	for i := len(r.videos) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.videos[i])
	}
	return out, nil
}

// memSessionRepo mirrors the Redis CAS semantics for completion.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*admodels.AdSession
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*admodels.AdSession)}
}

func (r *memSessionRepo) Create(_ context.Context, s *admodels.AdSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.Token] = &copied
	return nil
}

func (r *memSessionRepo) GetByToken(_ context.Context, token string) (*admodels.AdSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, adrepository.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) Complete(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return false, adrepository.ErrSessionNotFound
	}
	if s.Status == admodels.StatusPending {
		s.Status = admodels.StatusCompleted
		now := time.Now()
		s.CompletedAt = &now
		return true, nil
	}
	return false, nil
}

func (r *memSessionRepo) MarkClicked(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok && s.ClickedAt == nil {
		now := time.Now()
		s.ClickedAt = &now
	}
	return nil
}

type providerFunc func(ctx context.Context, target string) (string, error)

func (f providerFunc) Shorten(ctx context.Context, target string) (string, error) {
	return f(ctx, target)
}

func okProvider(_ context.Context, target string) (string, error) {
	return "https://sh.example/abc", nil
}

func downProvider(_ context.Context, _ string) (string, error) {
	return "", errors.New("provider down")
}

type fixture struct {
	gating   service.GatingService
	ledger   *memLedger
	videos   *memVideoRepo
	sessions *memSessionRepo
}

func newFixture(freeLimit, catalogSize int, provider providerFunc) *fixture {
	ledger := newMemLedger(freeLimit)
	videos := &memVideoRepo{}
	for i := 0; i < catalogSize; i++ {
		videos.videos = append(videos.videos, &catalogmodels.Video{
			ID:     fmt.Sprintf("item-%d", i+1),
			FileID: fmt.Sprintf("file-%d", i+1),
		})
	}
	sessionRepo := newMemSessionRepo()
	sessions := adservice.NewSessionService(sessionRepo, provider, "https://gate.example")
	cursor := catalogservice.NewCatalogService(videos, ledger)

	return &fixture{
		gating:   service.NewGatingService(ledger, cursor, sessions),
		ledger:   ledger,
		videos:   videos,
		sessions: sessionRepo,
	}
}

func TestFreeUserQuotaFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(5, 10, okProvider)

	for i := 0; i < 5; i++ {
		outcome, err := f.gating.HandleDeliveryRequest(ctx, 1, "alice")
		require.NoError(t, err)
		require.Equal(t, service.OutcomeDelivered, outcome.Kind)
		assert.Equal(t, fmt.Sprintf("item-%d", i+1), outcome.Item.ID)
	}

	// Sixth request hits the ad wall without touching the counter.
	outcome, err := f.gating.HandleDeliveryRequest(ctx, 1, "alice")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeAdRequired, outcome.Kind)
	require.NotNil(t, outcome.Session)
	assert.NotEmpty(t, outcome.Session.Token)
	assert.Equal(t, 5, f.ledger.freeUsed(1))

	// Each rejected request gets its own fresh token.
	second, err := f.gating.HandleDeliveryRequest(ctx, 1, "alice")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeAdRequired, second.Kind)
	assert.NotEqual(t, outcome.Session.Token, second.Session.Token)
	assert.Equal(t, 5, f.ledger.freeUsed(1))
}

func TestQuotaMonotonicityUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(5, 50, okProvider)

	_, err := f.ledger.Ensure(ctx, 1, "alice")
	require.NoError(t, err)

	const workers = 25
	results := make(chan service.DeliveryKind, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.gating.HandleDeliveryRequest(ctx, 1, "alice")
			if err != nil {
				t.Error(err)
				return
			}
			results <- outcome.Kind
		}()
	}
	wg.Wait()
	close(results)

	var delivered int
	for kind := range results {
		if kind == service.OutcomeDelivered {
			delivered++
		}
	}
	assert.Equal(t, 5, delivered, "delivered count must equal the free limit")
	assert.Equal(t, 5, f.ledger.freeUsed(1), "free_used must never exceed free_limit")
}

func TestAdCompletionResetsQuotaOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(2, 10, okProvider)

	for i := 0; i < 2; i++ {
		outcome, err := f.gating.HandleDeliveryRequest(ctx, 7, "bob")
		require.NoError(t, err)
		require.Equal(t, service.OutcomeDelivered, outcome.Kind)
	}
	blocked, err := f.gating.HandleDeliveryRequest(ctx, 7, "bob")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeAdRequired, blocked.Kind)
	token := blocked.Session.Token

	// Duplicate provider callbacks race on the completion transition.
	const callers = 8
	var wg sync.WaitGroup
	outcomes := make(chan service.ConfirmKind, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.gating.HandleProviderCompletion(ctx, token)
			if err != nil {
				t.Error(err)
				return
			}
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		assert.Equal(t, service.OutcomeUnlocked, outcome)
	}
	assert.Equal(t, 1, f.ledger.resets(7), "reset must fire exactly once per session")
	assert.Equal(t, 0, f.ledger.freeUsed(7))

	// Quota is usable again after the reset.
	next, err := f.gating.HandleDeliveryRequest(ctx, 7, "bob")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeDelivered, next.Kind)
}

func TestPremiumUserWrapsCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(5, 2, okProvider)

	_, err := f.ledger.Ensure(ctx, 3, "carol")
	require.NoError(t, err)
	f.ledger.grantPremium(3, time.Now().Add(24*time.Hour))

	var got []string
	for i := 0; i < 5; i++ {
		outcome, err := f.gating.HandleDeliveryRequest(ctx, 3, "carol")
		require.NoError(t, err)
		require.Equal(t, service.OutcomeDelivered, outcome.Kind)
		got = append(got, outcome.Item.ID)
	}
	assert.Equal(t, []string{"item-1", "item-2", "item-1", "item-2", "item-1"}, got)
	assert.Equal(t, 0, f.ledger.freeUsed(3), "premium deliveries never touch the quota")
}

func TestCatalogExhaustionIsNotAnAdWall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(5, 0, okProvider)

	outcome, err := f.gating.HandleDeliveryRequest(ctx, 9, "dave")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeCatalogExhausted, outcome.Kind)
	assert.Nil(t, outcome.Session)

	// The consumed unit is not refunded.
	assert.Equal(t, 1, f.ledger.freeUsed(9))
}

func TestPremiumCatalogExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(5, 0, okProvider)

	_, err := f.ledger.Ensure(ctx, 4, "erin")
	require.NoError(t, err)
	f.ledger.grantPremium(4, time.Now().Add(time.Hour))

	outcome, err := f.gating.HandleDeliveryRequest(ctx, 4, "erin")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeCatalogExhausted, outcome.Kind)
}

func TestExpiredPremiumFallsBackToQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1, 5, okProvider)

	_, err := f.ledger.Ensure(ctx, 5, "frank")
	require.NoError(t, err)
	f.ledger.grantPremium(5, time.Now().Add(-time.Hour))

	first, err := f.gating.HandleDeliveryRequest(ctx, 5, "frank")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeDelivered, first.Kind)

	second, err := f.gating.HandleDeliveryRequest(ctx, 5, "frank")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAdRequired, second.Kind)
}

func TestAdConfirmationRequiresProviderCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1, 5, okProvider)

	delivered, err := f.gating.HandleDeliveryRequest(ctx, 11, "gus")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeDelivered, delivered.Kind)
	blocked, err := f.gating.HandleDeliveryRequest(ctx, 11, "gus")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeAdRequired, blocked.Kind)
	token := blocked.Session.Token

	// The user pressing "I watched" before the provider reported anything
	// must not unlock.
	outcome, err := f.gating.HandleAdConfirmation(ctx, token, 11)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeNotYetVerified, outcome)
	assert.Equal(t, 0, f.ledger.resets(11))

	// After the provider completes, the user check unlocks without a
	// second reset.
	_, err = f.gating.HandleProviderCompletion(ctx, token)
	require.NoError(t, err)
	outcome, err = f.gating.HandleAdConfirmation(ctx, token, 11)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeUnlocked, outcome)
	assert.Equal(t, 1, f.ledger.resets(11))
}

func TestUnknownTokenIsReportedNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(5, 5, okProvider)

	outcome, err := f.gating.HandleAdConfirmation(ctx, "nonexistent-token", 1)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSessionNotFound, outcome)

	outcome, err = f.gating.HandleProviderCompletion(ctx, "nonexistent-token")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSessionNotFound, outcome)
}

func TestAdWallSurvivesProviderOutage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1, 5, downProvider)

	delivered, err := f.gating.HandleDeliveryRequest(ctx, 2, "hana")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeDelivered, delivered.Kind)

	outcome, err := f.gating.HandleDeliveryRequest(ctx, 2, "hana")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeAdRequired, outcome.Kind)

	// The session falls back to the direct verification URL.
	assert.True(t, strings.HasPrefix(outcome.Session.ShortURL, "https://gate.example/ad/return?token="),
		"got %s", outcome.Session.ShortURL)
	assert.Equal(t, outcome.Session.VerifyURL, outcome.Session.ShortURL)
}
