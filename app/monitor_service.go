package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/outcome"
	"gorecal/internal"
	"gorecal/ports"
)

// MonitorConfig bounds the live prediction set and drives the sweep schedule
type MonitorConfig struct {
	MaxLivePredictions int
	SweepInterval      time.Duration
	SweepConcurrency   int
	Thresholds         outcome.Thresholds
}

// DefaultMonitorConfig returns the standard monitor settings
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		MaxLivePredictions: 1000,
		SweepInterval:      60 * time.Second,
		SweepConcurrency:   4,
		Thresholds:         outcome.DefaultThresholds(),
	}
}

// Validate rejects unusable configuration synchronously
func (c MonitorConfig) Validate() error {
	if c.MaxLivePredictions <= 0 {
		return core.NewConfigError("max_live_predictions", "must be positive")
	}
	if c.SweepInterval <= 0 {
		return core.NewConfigError("sweep_interval", "must be positive")
	}
	if c.SweepConcurrency <= 0 {
		return core.NewConfigError("sweep_concurrency", "must be positive")
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	return nil
}

// OutcomeSubscriber observes every scored outcome. Subscribers run
// synchronously in registration order on the evaluating goroutine; a panic in
// one subscriber never reaches the others.
type OutcomeSubscriber func(result outcome.OutcomeResult)

type outcomeListener struct {
	token ports.SubscriptionToken
	cb    OutcomeSubscriber
}

// MonitorService tracks live predictions and scores them against realized
// registry state when their horizons come due
type MonitorService struct {
	config   MonitorConfig
	registry ports.RegistryPort
	logger   *internal.Logger // Logger for controlled verbosity

	mu          sync.RWMutex
	predictions map[core.PredictionID]*outcome.PredictionRecord
	listeners   []outcomeListener
}

// NewMonitorService creates a monitor with validated configuration
func NewMonitorService(config MonitorConfig, registry ports.RegistryPort) (*MonitorService, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("monitor configuration rejected: %w", err)
	}
	return &MonitorService{
		config:      config,
		registry:    registry,
		logger:      internal.NewDefaultLogger().Component("Monitor"),
		predictions: make(map[core.PredictionID]*outcome.PredictionRecord),
	}, nil
}

// RegisterPrediction admits a new prediction into the live set. When the set
// is full, the oldest tenth of records is evicted first.
func (s *MonitorService) RegisterPrediction(ctx context.Context, state []float64, dim int, model core.ModelID, sourcePath string, horizons []outcome.Horizon) (*outcome.PredictionRecord, error) {
	record, err := outcome.NewPredictionRecord(state, dim, model, sourcePath, horizons)
	if err != nil {
		return nil, fmt.Errorf("failed to register prediction: %w", err)
	}

	s.mu.Lock()
	if len(s.predictions) >= s.config.MaxLivePredictions {
		evicted := s.evictOldest()
		s.logger.Warn("Live set full at %d, evicted %d oldest predictions", s.config.MaxLivePredictions, evicted)
	}
	s.predictions[record.ID] = record
	live := len(s.predictions)
	s.mu.Unlock()

	s.logger.Info("Registered prediction %s (model %s, path %s, %d live)", record.ID, model, sourcePath, live)
	return record, nil
}

// evictOldest drops the oldest tenth of the live set by registration time.
// Caller holds the write lock.
func (s *MonitorService) evictOldest() int {
	count := s.config.MaxLivePredictions / 10
	if count < 1 {
		count = 1
	}

	ids := make([]core.PredictionID, 0, len(s.predictions))
	for id := range s.predictions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.predictions[ids[i]], s.predictions[ids[j]]
		if a.RegisteredAt.Time().Equal(b.RegisteredAt.Time()) {
			return a.ID < b.ID
		}
		return a.RegisteredAt.Before(b.RegisteredAt)
	})

	if count > len(ids) {
		count = len(ids)
	}
	for _, id := range ids[:count] {
		delete(s.predictions, id)
	}
	return count
}

// Prediction returns a point-in-time copy of the live record for an id
func (s *MonitorService) Prediction(id core.PredictionID) (*outcome.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.predictions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPredictionNotFound, id)
	}
	return snapshotRecord(record), nil
}

// snapshotRecord copies a record so callers never observe in-flight sweep
// writes. Caller holds at least the read lock.
func snapshotRecord(record *outcome.PredictionRecord) *outcome.PredictionRecord {
	clone := *record
	clone.Horizons = append([]outcome.Horizon(nil), record.Horizons...)
	clone.Results = make(map[outcome.Horizon]*outcome.OutcomeResult, len(record.Results))
	for h, r := range record.Results {
		clone.Results[h] = r
	}
	return &clone
}

// LiveCount returns the size of the live prediction set
func (s *MonitorService) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.predictions)
}

// LivePredictions returns point-in-time copies of the live records, newest first
func (s *MonitorService) LivePredictions() []*outcome.PredictionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*outcome.PredictionRecord, 0, len(s.predictions))
	for _, record := range s.predictions {
		out = append(out, snapshotRecord(record))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[j].RegisteredAt.Before(out[i].RegisteredAt)
	})
	return out
}

// CaptureState reads the observation at a registry path and packs its state
// matrix into canonical upper-triangular form
func (s *MonitorService) CaptureState(ctx context.Context, path string, dim int) ([]float64, error) {
	obs, err := s.registry.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to capture state at %s: %w", path, err)
	}
	if obs.IsDead() {
		return nil, fmt.Errorf("%w: %s", core.ErrDeadSignal, path)
	}
	packed, err := ensemble.ExtractStateMatrix(*obs, dim)
	if err != nil {
		return nil, err
	}
	return packed, nil
}

// Evaluate scores one prediction against its realized state at a horizon.
// Unknown ids and unscheduled horizons resolve to nil with a log line, never
// an error: callers race the eviction policy and that race is not a fault.
// Re-evaluating a resolved pair returns the cached result unchanged.
func (s *MonitorService) Evaluate(ctx context.Context, id core.PredictionID, h outcome.Horizon, actual []float64) (*outcome.OutcomeResult, error) {
	s.mu.Lock()
	record, ok := s.predictions[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("Evaluation requested for unknown prediction %s at %s", id, h)
		return nil, nil
	}
	if !record.HasHorizon(h) {
		s.mu.Unlock()
		s.logger.Debug("Prediction %s is not scheduled for horizon %s", id, h)
		return nil, nil
	}
	if cached, done := record.Results[h]; done {
		s.mu.Unlock()
		return cached, nil
	}

	threshold := s.config.Thresholds.For(h)
	result := outcome.Score(id, h, record.State, actual, record.Dim, threshold)
	record.Results[h] = result
	listeners := make([]outcomeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if result.IsFailure {
		s.logger.Info("Prediction %s failed at %s: distance %.4f > threshold %.4f", id, h, result.Distance, result.Threshold)
	}

	for _, l := range listeners {
		s.dispatch(l, *result)
	}
	return result, nil
}

// dispatch invokes one subscriber with panic isolation
func (s *MonitorService) dispatch(l outcomeListener, result outcome.OutcomeResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in outcome subscriber %s: %v", l.token, r)
		}
	}()
	l.cb(result)
}

// SubscribeOutcomes registers a subscriber for every future scored outcome
func (s *MonitorService) SubscribeOutcomes(cb OutcomeSubscriber) ports.SubscriptionToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := ports.SubscriptionToken(core.NewID().String())
	s.listeners = append(s.listeners, outcomeListener{token: token, cb: cb})
	return token
}

// UnsubscribeOutcomes removes a subscriber; unknown tokens are a no-op
func (s *MonitorService) UnsubscribeOutcomes(token ports.SubscriptionToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.listeners {
		if l.token == token {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// duePair is one (prediction, horizon) evaluation the sweep owes
type duePair struct {
	id      core.PredictionID
	path    string
	dim     int
	horizon outcome.Horizon
}

// SweepOnce walks the live set and evaluates every horizon that has come due,
// bounded by the configured concurrency. Malformed or missing realized state
// skips that pair and moves on; a sweep never aborts on bad data.
func (s *MonitorService) SweepOnce(ctx context.Context) (int, error) {
	now := core.Now()

	s.mu.RLock()
	pairs := make([]duePair, 0)
	for _, record := range s.predictions {
		for _, h := range record.Pending(now) {
			pairs = append(pairs, duePair{id: record.ID, path: record.SourcePath, dim: record.Dim, horizon: h})
		}
	}
	s.mu.RUnlock()

	sem := semaphore.NewWeighted(int64(s.config.SweepConcurrency))
	var wg sync.WaitGroup
	var evaluated int64

	for _, pair := range pairs {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return int(atomic.LoadInt64(&evaluated)), err
		}
		wg.Add(1)
		go func(pair duePair) {
			defer wg.Done()
			defer sem.Release(1)
			if s.sweepPair(ctx, pair) {
				atomic.AddInt64(&evaluated, 1)
			}
		}(pair)
	}
	wg.Wait()
	return int(atomic.LoadInt64(&evaluated)), nil
}

// sweepPair resolves one due (prediction, horizon) pair
func (s *MonitorService) sweepPair(ctx context.Context, pair duePair) bool {
	actual, err := s.CaptureState(ctx, pair.path, pair.dim)
	if err != nil {
		if core.IsDeadSignal(err) {
			s.logger.Debug("Dead signal at %s, prediction %s excluded from %s sweep", pair.path, pair.id, pair.horizon)
		} else {
			s.logger.Debug("Skipping %s at %s: %v", pair.id, pair.horizon, err)
		}
		return false
	}

	if _, err := s.Evaluate(ctx, pair.id, pair.horizon, actual); err != nil {
		s.logger.Warn("Evaluation of %s at %s failed: %v", pair.id, pair.horizon, err)
		return false
	}
	return true
}

// StartSweepLoop runs periodic sweeps until the context is cancelled
func (s *MonitorService) StartSweepLoop(ctx context.Context) {
	go func() {
		s.logger.Info("🔄 Sweep loop started (every %s)", s.config.SweepInterval)
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Sweep loop stopped: %v", ctx.Err())
				return
			case <-ticker.C:
				evaluated, err := s.SweepOnce(ctx)
				if err != nil {
					s.logger.Warn("Sweep aborted: %v", err)
					continue
				}
				if evaluated > 0 {
					s.logger.Info("Sweep evaluated %d horizon pairs", evaluated)
				}
			}
		}
	}()
}
