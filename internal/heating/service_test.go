package heating

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/awaistahir/smart-heat/internal/metrics"
	"github.com/awaistahir/smart-heat/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)

type stubRates struct {
	rates []engine.Rate
	err   error
	calls int
}

func (s *stubRates) FetchTodayAndTomorrow(_ context.Context, _ time.Time, _ *time.Location) ([]engine.Rate, error) {
	s.calls++
	return s.rates, s.err
}

type recordingPublisher struct {
	schedules []*engine.Result
	states    []bool
}

func (p *recordingPublisher) PublishSchedule(res *engine.Result, _ time.Time) error {
	p.schedules = append(p.schedules, res)
	return nil
}

func (p *recordingPublisher) PublishState(on bool, _ float64, _ time.Time) error {
	p.states = append(p.states, on)
	return nil
}

func dayRates() []engine.Rate {
	rates := make([]engine.Rate, 48)
	for i := range rates {
		rates[i] = engine.Rate{
			ValidFrom:   day.Add(time.Duration(i) * 30 * time.Minute),
			ValidTo:     day.Add(time.Duration(i+1) * 30 * time.Minute),
			ValueIncVAT: float64(10 + (i*7)%13),
		}
	}
	return rates
}

func fallbackProfile() *engine.Profile {
	return &engine.Profile{
		ID:       DefaultProfileID,
		Name:     "Test",
		Comfort:  engine.DefaultComfort,
		Config:   engine.DefaultConfig(),
		PowerKW:  2,
		Timezone: "UTC",
	}
}

type fixture struct {
	svc     *Service
	reg     *prometheus.Registry
	store   *store.Store
	source  *stubRates
	pub     *recordingPublisher
	metrics *metrics.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "smartheat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	f := &fixture{
		reg:     reg,
		store:   st,
		source:  &stubRates{rates: dayRates()},
		pub:     &recordingPublisher{},
		metrics: rec,
	}
	f.svc = NewService(Options{
		Rates:        f.source,
		Store:        st,
		Tariff:       "E-1R-TEST-C",
		Location:     time.UTC,
		Fallback:     fallbackProfile(),
		Metrics:      rec,
		Publisher:    f.pub,
		RunRetention: 24 * time.Hour,
	})
	return f
}

func assertRuns(t *testing.T, reg *prometheus.Registry, strategy, outcome string) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP smartheat_schedule_runs_total Scheduling cycles by outcome
# TYPE smartheat_schedule_runs_total counter
smartheat_schedule_runs_total{outcome=%q,strategy=%q} 1
`, outcome, strategy)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "smartheat_schedule_runs_total"))
}

func TestCycle(t *testing.T) {
	f := newFixture(t)
	now := day.Add(8 * time.Hour)

	out, err := f.svc.Cycle(context.Background(), now)
	require.NoError(t, err)

	sum := out.Result.Summary
	assert.Equal(t, 48, sum.TotalSlots)
	assert.Equal(t, 14, sum.ComfortSlots)
	assert.Equal(t, sum.ComfortSlots, sum.WarmComfortSlots)
	assert.NotEmpty(t, out.RunID)

	runs, err := f.store.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].ID)
	assert.Equal(t, engine.StrategyGreedy, runs[0].Strategy)

	require.Len(t, f.pub.schedules, 1)
	assert.Equal(t, []bool{out.On}, f.pub.states)

	assertRuns(t, f.reg, "greedy", "ok")
}

func TestCycleUsesSavedProfile(t *testing.T) {
	f := newFixture(t)
	p := fallbackProfile()
	p.Config.Strategy = engine.StrategyOptimal
	require.NoError(t, f.svc.SaveProfile(p))

	out, err := f.svc.Cycle(context.Background(), day.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyOptimal, out.Profile.Config.Strategy)
	assertRuns(t, f.reg, "optimal", "ok")
}

func TestCycleFailureIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("feed down")

	_, err := f.svc.Cycle(context.Background(), day.Add(time.Hour))
	require.Error(t, err)

	runs, err := f.store.RecentRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, f.pub.schedules)
	assert.Empty(t, f.pub.states)
	assertRuns(t, f.reg, "greedy", "error")
}

func TestCycleRejectsGappedFeed(t *testing.T) {
	f := newFixture(t)
	f.source.rates = append(f.source.rates[:3], f.source.rates[4:]...)

	_, err := f.svc.Cycle(context.Background(), day.Add(time.Hour))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	assert.Empty(t, f.pub.schedules)
}

func TestRatesFallBackToCache(t *testing.T) {
	f := newFixture(t)
	now := day.Add(time.Hour)

	fresh, err := f.svc.Rates(context.Background(), now)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)

	f.source.err = errors.New("feed down")
	cached, err := f.svc.Rates(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	require.Len(t, cached.Rates, len(fresh.Rates))
	assert.True(t, cached.Rates[0].ValidFrom.Equal(fresh.Rates[0].ValidFrom))
}

func TestRatesEmptyFeedWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.source.rates = nil

	_, err := f.svc.Rates(context.Background(), day)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestProfileFallbackAndSave(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Profile()
	require.NoError(t, err)
	assert.Equal(t, "Test", p.Name)

	bad := fallbackProfile()
	bad.Config.RetainSlots = 0
	assert.ErrorIs(t, f.svc.SaveProfile(bad), engine.ErrInvalidConfig)

	bad = fallbackProfile()
	bad.Timezone = "Nowhere/Special"
	assert.ErrorIs(t, f.svc.SaveProfile(bad), engine.ErrInvalidConfig)

	bad = fallbackProfile()
	bad.Comfort = []engine.TimeWindow{{Start: "7am", End: "9am"}}
	assert.ErrorIs(t, f.svc.SaveProfile(bad), engine.ErrInvalidConfig)

	good := fallbackProfile()
	good.Name = "Saved"
	good.Config.Strategy = ""
	require.NoError(t, f.svc.SaveProfile(good))

	p, err = f.svc.Profile()
	require.NoError(t, err)
	assert.Equal(t, "Saved", p.Name)
	assert.Equal(t, engine.StrategyGreedy, p.Config.Strategy)
}

func TestCycleRecordsStoreFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.svc.Cycle(context.Background(), day.Add(time.Hour))
	require.Error(t, err)
	assert.Empty(t, f.pub.schedules)
	assertRuns(t, f.reg, "greedy", "error")
}

func TestProfileWithoutFallback(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "smartheat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(Options{Rates: &stubRates{}, Store: st})
	_, err = svc.Profile()
	assert.ErrorIs(t, err, ErrNoProfile)
}
