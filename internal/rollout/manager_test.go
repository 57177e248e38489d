package rollout

import (
	"context"
	"testing"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	features   map[string]*models.FeatureRollout
	repos      map[uuid.UUID]*models.Repository
	categories map[models.CategoryName]*models.RepositoryCategory
	history    []*models.RolloutHistory
	updateErr  error
	historyErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		features:   make(map[string]*models.FeatureRollout),
		repos:      make(map[uuid.UUID]*models.Repository),
		categories: make(map[models.CategoryName]*models.RepositoryCategory),
	}
}

func (m *mockStore) GetFeatureRolloutByName(_ context.Context, name string) (*models.FeatureRollout, error) {
	if f, ok := m.features[name]; ok {
		return f, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) UpdateFeatureRollout(_ context.Context, f *models.FeatureRollout) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.features[f.FeatureName] = f
	return nil
}

func (m *mockStore) CreateRolloutHistory(_ context.Context, h *models.RolloutHistory) error {
	if m.historyErr != nil {
		return m.historyErr
	}
	m.history = append(m.history, h)
	return nil
}

func (m *mockStore) GetCategoryByName(_ context.Context, name models.CategoryName) (*models.RepositoryCategory, error) {
	if c, ok := m.categories[name]; ok {
		return c, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) GetRepositoryByID(_ context.Context, id uuid.UUID) (*models.Repository, error) {
	if r, ok := m.repos[id]; ok {
		return r, nil
	}
	return nil, db.ErrNotFound
}

func newTestManager(store Store) *Manager {
	return NewManager(store, zerolog.Nop())
}

// repoWithBucket returns a repository ID whose bucket satisfies the predicate.
func repoWithBucket(t *testing.T, pred func(int) bool) uuid.UUID {
	t.Helper()
	for i := 0; i < 10000; i++ {
		id := uuid.New()
		if pred(Bucket(id)) {
			return id
		}
	}
	t.Fatal("could not find repository ID with desired bucket")
	return uuid.Nil
}

func TestBucketStable(t *testing.T) {
	id := uuid.New()
	b := Bucket(id)
	for i := 0; i < 100; i++ {
		if Bucket(id) != b {
			t.Fatal("bucket must be deterministic for the same repository ID")
		}
	}
	if b < 0 || b >= 100 {
		t.Fatalf("bucket %d out of range [0,100)", b)
	}
}

func TestBucketDistribution(t *testing.T) {
	// With 10k random IDs, every decile should see traffic. This guards
	// against degenerate hashing, not statistical uniformity.
	seen := make(map[int]int)
	for i := 0; i < 10000; i++ {
		seen[Bucket(uuid.New())/10]++
	}
	for decile := 0; decile < 10; decile++ {
		if seen[decile] == 0 {
			t.Errorf("decile %d received no repositories", decile)
		}
	}
}

func TestCheckEligibilityPercentage(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.Strategy = models.StrategyPercentage
	f.RolloutPercentage = 50
	store.features["capture"] = f

	mgr := newTestManager(store)
	ctx := context.Background()

	inside := repoWithBucket(t, func(b int) bool { return b < 50 })
	outside := repoWithBucket(t, func(b int) bool { return b >= 50 })

	d, err := mgr.CheckEligibility(ctx, "capture", inside)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
	assert.Equal(t, 50, d.EffectivePercentage)

	d, err = mgr.CheckEligibility(ctx, "capture", outside)
	require.NoError(t, err)
	assert.False(t, d.Eligible)
}

func TestCheckEligibilityZeroAndFull(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.Strategy = models.StrategyPercentage
	store.features["capture"] = f

	mgr := newTestManager(store)
	ctx := context.Background()
	repoID := uuid.New()

	d, err := mgr.CheckEligibility(ctx, "capture", repoID)
	require.NoError(t, err)
	assert.False(t, d.Eligible, "0%% rollout must reject everything")

	f.RolloutPercentage = 100
	d, err = mgr.CheckEligibility(ctx, "capture", repoID)
	require.NoError(t, err)
	assert.True(t, d.Eligible, "100%% rollout must accept everything")
}

func TestCheckEligibilityWhitelistOverrides(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.RolloutPercentage = 0
	repoID := uuid.New()
	f.WhitelistedRepos = []uuid.UUID{repoID}
	store.features["capture"] = f

	mgr := newTestManager(store)
	ctx := context.Background()

	d, err := mgr.CheckEligibility(ctx, "capture", repoID)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
	assert.Equal(t, "repository is whitelisted", d.Reason)

	// Whitelist survives a pause.
	f.IsPaused = true
	d, err = mgr.CheckEligibility(ctx, "capture", repoID)
	require.NoError(t, err)
	assert.True(t, d.Eligible)

	// But not deactivation.
	f.IsActive = false
	d, err = mgr.CheckEligibility(ctx, "capture", repoID)
	require.NoError(t, err)
	assert.False(t, d.Eligible)
}

func TestCheckEligibilityExclusionWins(t *testing.T) {
	store := newMockStore()
	repoID := uuid.New()
	f := models.NewFeatureRollout("capture", "")
	f.RolloutPercentage = 100
	f.WhitelistedRepos = []uuid.UUID{repoID}
	f.ExcludedRepos = []uuid.UUID{repoID}
	store.features["capture"] = f

	d, err := newTestManager(store).CheckEligibility(context.Background(), "capture", repoID)
	require.NoError(t, err)
	assert.False(t, d.Eligible)
	assert.Equal(t, "repository is excluded", d.Reason)
}

func TestCheckEligibilityPausedRejectsNonWhitelisted(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.RolloutPercentage = 100
	f.IsPaused = true
	store.features["capture"] = f

	d, err := newTestManager(store).CheckEligibility(context.Background(), "capture", uuid.New())
	require.NoError(t, err)
	assert.False(t, d.Eligible)
	assert.Equal(t, "rollout is paused", d.Reason)
}

func TestCheckEligibilityWhitelistStrategy(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.Strategy = models.StrategyWhitelist
	f.RolloutPercentage = 100
	store.features["capture"] = f

	d, err := newTestManager(store).CheckEligibility(context.Background(), "capture", uuid.New())
	require.NoError(t, err)
	assert.False(t, d.Eligible, "whitelist strategy must ignore percentage")
}

func TestCheckEligibilityCategoryCap(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.RolloutPercentage = 80
	store.features["capture"] = f

	store.categories[models.CategoryEnterprise] = &models.RepositoryCategory{
		Category:      models.CategoryEnterprise,
		MaxPercentage: 25,
	}

	// A repo whose bucket sits between the cap and the raw percentage: capped out.
	repoID := repoWithBucket(t, func(b int) bool { return b >= 25 && b < 80 })
	store.repos[repoID] = &models.Repository{ID: repoID, Owner: "bigco", Name: "monorepo", Category: models.CategoryEnterprise}

	d, err := newTestManager(store).CheckEligibility(context.Background(), "capture", repoID)
	require.NoError(t, err)
	assert.False(t, d.Eligible)
	assert.Equal(t, 25, d.EffectivePercentage)

	// Same repo without a category assignment is not capped.
	store.repos[repoID].Category = ""
	d, err = newTestManager(store).CheckEligibility(context.Background(), "capture", repoID)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
	assert.Equal(t, 80, d.EffectivePercentage)
}

func TestCheckEligibilityUnknownRepository(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.RolloutPercentage = 100
	store.features["capture"] = f

	// Repository not registered: bucketing still applies, no category cap.
	d, err := newTestManager(store).CheckEligibility(context.Background(), "capture", uuid.New())
	require.NoError(t, err)
	assert.True(t, d.Eligible)
}

func TestSetPercentage(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	store.features["capture"] = f

	mgr := newTestManager(store)
	updated, err := mgr.SetPercentage(context.Background(), "capture", 25, models.TriggerManual, "console", "ramping up")
	require.NoError(t, err)
	assert.Equal(t, 25, updated.RolloutPercentage)

	require.Len(t, store.history, 1)
	entry := store.history[0]
	assert.Equal(t, models.HistoryActionPercentageChanged, entry.Action)
	assert.Equal(t, 0, *entry.PrevPercent)
	assert.Equal(t, 25, *entry.NewPercent)
	assert.Equal(t, "console", entry.Actor)
}

func TestSetPercentageRejectsOutOfRange(t *testing.T) {
	store := newMockStore()
	store.features["capture"] = models.NewFeatureRollout("capture", "")

	mgr := newTestManager(store)
	for _, pct := range []int{-1, 101, 500} {
		_, err := mgr.SetPercentage(context.Background(), "capture", pct, models.TriggerManual, "console", "")
		assert.ErrorIs(t, err, ErrInvalidPercentage, "percentage %d", pct)
	}
	assert.Empty(t, store.history, "rejected changes must not leave history")
}

func TestPauseResume(t *testing.T) {
	store := newMockStore()
	store.features["capture"] = models.NewFeatureRollout("capture", "")
	mgr := newTestManager(store)
	ctx := context.Background()

	f, err := mgr.Pause(ctx, "capture", "console", "investigating latency")
	require.NoError(t, err)
	assert.True(t, f.IsPaused)

	// Pausing an already paused rollout is a no-op.
	_, err = mgr.Pause(ctx, "capture", "console", "")
	require.NoError(t, err)
	require.Len(t, store.history, 1)

	f, err = mgr.Resume(ctx, "capture", "console", "latency resolved")
	require.NoError(t, err)
	assert.False(t, f.IsPaused)
	require.Len(t, store.history, 2)
	assert.Equal(t, models.HistoryActionResumed, store.history[1].Action)
}

func TestEmergencyStop(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.RolloutPercentage = 75
	store.features["capture"] = f

	stopped, err := newTestManager(store).EmergencyStop(context.Background(), "capture", "oncall", "spam processing storm")
	require.NoError(t, err)
	assert.Equal(t, 0, stopped.RolloutPercentage)

	require.Len(t, store.history, 1)
	assert.Equal(t, models.HistoryActionRolledBack, store.history[0].Action)
	assert.Equal(t, models.TriggerManual, store.history[0].Trigger)
	assert.Equal(t, 75, *store.history[0].PrevPercent)
}

func TestRollbackRecordsAutomaticTrigger(t *testing.T) {
	store := newMockStore()
	f := models.NewFeatureRollout("capture", "")
	f.RolloutPercentage = 25
	store.features["capture"] = f

	_, err := newTestManager(store).Rollback(context.Background(), "capture",
		"error rate 8.2% exceeded threshold 5.0%", map[string]any{"error_rate": 8.2})
	require.NoError(t, err)

	require.Len(t, store.history, 1)
	entry := store.history[0]
	assert.Equal(t, models.HistoryActionAutoRollback, entry.Action)
	assert.Equal(t, models.TriggerAutomatic, entry.Trigger)
	assert.Equal(t, "health-monitor", entry.Actor)
	assert.Equal(t, 8.2, entry.Metadata["error_rate"])
}

func TestWhitelistAddRemove(t *testing.T) {
	store := newMockStore()
	store.features["capture"] = models.NewFeatureRollout("capture", "")
	mgr := newTestManager(store)
	ctx := context.Background()
	repoID := uuid.New()

	f, err := mgr.AddToWhitelist(ctx, "capture", repoID, "console")
	require.NoError(t, err)
	assert.True(t, f.IsWhitelisted(repoID))

	// Adding twice is idempotent.
	f, err = mgr.AddToWhitelist(ctx, "capture", repoID, "console")
	require.NoError(t, err)
	assert.Len(t, f.WhitelistedRepos, 1)
	require.Len(t, store.history, 1)

	f, err = mgr.RemoveFromWhitelist(ctx, "capture", repoID, "console")
	require.NoError(t, err)
	assert.False(t, f.IsWhitelisted(repoID))

	// Removing a repo that is not whitelisted is a no-op.
	_, err = mgr.RemoveFromWhitelist(ctx, "capture", repoID, "console")
	require.NoError(t, err)
	require.Len(t, store.history, 2)
	assert.Equal(t, models.HistoryActionWhitelistRemoved, store.history[1].Action)
}

func TestUnknownFeature(t *testing.T) {
	mgr := newTestManager(newMockStore())
	_, err := mgr.CheckEligibility(context.Background(), "nope", uuid.New())
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestHistoryAppendFailureDoesNotFailMutation(t *testing.T) {
	store := newMockStore()
	store.features["capture"] = models.NewFeatureRollout("capture", "")
	store.historyErr = assert.AnError

	f, err := newTestManager(store).SetPercentage(context.Background(), "capture", 10, models.TriggerManual, "console", "")
	require.NoError(t, err)
	assert.Equal(t, 10, f.RolloutPercentage)
}
