package heating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/awaistahir/smart-heat/internal/metrics"
	"github.com/awaistahir/smart-heat/internal/prices"
	"github.com/awaistahir/smart-heat/internal/store"
	"github.com/sirupsen/logrus"
)

const DefaultProfileID = "default"

// ErrNoProfile is returned when no profile is stored and no fallback is configured
var ErrNoProfile = errors.New("no profile saved; run init first")

// RateSource supplies the unit rates covering today and tomorrow
type RateSource interface {
	FetchTodayAndTomorrow(ctx context.Context, now time.Time, loc *time.Location) ([]engine.Rate, error)
}

// Publisher delivers a finished plan to the actuation side
type Publisher interface {
	PublishSchedule(res *engine.Result, generatedAt time.Time) error
	PublishState(on bool, price float64, at time.Time) error
}

// Options wires a Service. Metrics and Publisher are optional.
type Options struct {
	Rates     RateSource
	Store     *store.Store
	Tariff    string
	Location  *time.Location
	Fallback  *engine.Profile
	Metrics   *metrics.Recorder
	Publisher Publisher
	// RunRetention bounds how long recorded runs are kept; zero keeps them all
	RunRetention time.Duration
}

// Service runs the fetch, optimise, record and publish cycle
type Service struct {
	opts Options
}

// RatesResult is a fetched or cached set of rates
type RatesResult struct {
	Rates  []engine.Rate
	AsAt   time.Time
	Cached bool
}

// CycleResult is the outcome of one successful cycle
type CycleResult struct {
	Result  *engine.Result
	Profile *engine.Profile
	RunID   string
	On      bool
}

func NewService(opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{opts: opts}
}

// Location is the timezone rates are bucketed by
func (s *Service) Location() *time.Location { return s.opts.Location }

// Tariff returns the tariff code used as the cache key
func (s *Service) Tariff() string { return s.opts.Tariff }

// Profile returns the stored default profile, or the configured fallback when
// none has been saved yet.
func (s *Service) Profile() (*engine.Profile, error) {
	p, err := s.opts.Store.GetProfile(DefaultProfileID)
	if errors.Is(err, sql.ErrNoRows) {
		if s.opts.Fallback == nil {
			return nil, ErrNoProfile
		}
		fallback := *s.opts.Fallback
		return &fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return p, nil
}

// SaveProfile validates and stores p as the default profile
func (s *Service) SaveProfile(p *engine.Profile) error {
	p.ID = DefaultProfileID
	if p.Config.Strategy == "" {
		p.Config.Strategy = engine.StrategyGreedy
	}
	if err := p.Config.Validate(); err != nil {
		return err
	}
	if _, err := p.Params(); err != nil {
		return err
	}
	if _, err := engine.ResolveComfort(nil, p.Comfort, nil); err != nil {
		return err
	}
	return s.opts.Store.SaveProfile(p)
}

// Rates fetches today's and tomorrow's rates and caches them. When the feed
// fails, the cached copy for today is served instead.
func (s *Service) Rates(ctx context.Context, now time.Time) (*RatesResult, error) {
	day, _ := prices.TodayAndTomorrow(now, s.opts.Location)
	log := logrus.WithField("tariff", s.opts.Tariff)

	rates, err := s.opts.Rates.FetchTodayAndTomorrow(ctx, now, s.opts.Location)
	if err == nil && len(rates) > 0 {
		if cerr := s.opts.Store.CachePrices(s.opts.Tariff, day, rates); cerr != nil {
			log.WithError(cerr).Warn("caching rates")
		}
		return &RatesResult{Rates: rates, AsAt: now}, nil
	}
	if err == nil {
		err = fmt.Errorf("%w: feed returned no rates", engine.ErrInvalidInput)
	}

	cached, fetchedAt, cerr := s.opts.Store.GetCachedPrices(s.opts.Tariff, day)
	if cerr != nil {
		return nil, err
	}
	log.WithError(err).Warn("price feed unavailable, using cached rates")
	return &RatesResult{Rates: cached, AsAt: fetchedAt, Cached: true}, nil
}

// Plan optimises the current rates against the active profile
func (s *Service) Plan(ctx context.Context, now time.Time) (*engine.Result, *engine.Profile, error) {
	profile, err := s.Profile()
	if err != nil {
		return nil, nil, err
	}
	res, err := s.optimise(ctx, now, profile)
	if err != nil {
		return nil, nil, err
	}
	return res, profile, nil
}

func (s *Service) optimise(ctx context.Context, now time.Time, profile *engine.Profile) (*engine.Result, error) {
	params, err := profile.Params()
	if err != nil {
		return nil, err
	}
	rates, err := s.Rates(ctx, now)
	if err != nil {
		return nil, err
	}
	return engine.Optimise(rates.Rates, params)
}

// Cycle runs one full scheduling cycle. Any failure discards the cycle: nothing
// is recorded or published and the previous plan stays in force.
func (s *Service) Cycle(ctx context.Context, now time.Time) (_ *CycleResult, err error) {
	strategy := engine.StrategyGreedy
	defer func() {
		if err != nil && s.opts.Metrics != nil {
			s.opts.Metrics.RecordFailure(strategy)
		}
	}()

	profile, err := s.Profile()
	if err != nil {
		return nil, fmt.Errorf("scheduling cycle: %w", err)
	}
	if profile.Config.Strategy != "" {
		strategy = profile.Config.Strategy
	}

	res, err := s.optimise(ctx, now, profile)
	if err != nil {
		return nil, fmt.Errorf("scheduling cycle: %w", err)
	}

	run, err := s.opts.Store.RecordRun(profile.ID, strategy, res)
	if err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	on, _ := engine.StateAt(res.Plan, now)
	price := 0.0
	for _, v := range res.Plan.PriceSlots() {
		if !now.Before(v.Start) && now.Before(v.End) {
			price = v.PencePerKWh
			break
		}
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordResult(strategy, res)
		s.opts.Metrics.SetHeaterOn(on)
	}

	log := logrus.WithFields(logrus.Fields{
		"run":      run.ID,
		"strategy": strategy,
		"on_slots": res.Summary.OnSlots,
		"cost_gbp": res.Summary.CostGBP,
		"heat_now": on,
	})
	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishSchedule(res, now); err != nil {
			log.WithError(err).Warn("publishing schedule")
		}
		if err := s.opts.Publisher.PublishState(on, price, now); err != nil {
			log.WithError(err).Warn("publishing heater state")
		}
	}

	if s.opts.RunRetention > 0 {
		if n, err := s.opts.Store.PruneRuns(now.Add(-s.opts.RunRetention)); err != nil {
			log.WithError(err).Warn("pruning runs")
		} else if n > 0 {
			log.WithField("pruned", n).Debug("pruned old runs")
		}
	}

	log.Info("scheduling cycle complete")
	return &CycleResult{Result: res, Profile: profile, RunID: run.ID, On: on}, nil
}
