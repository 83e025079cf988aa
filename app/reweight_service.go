package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/forensic"
	"gorecal/domain/outcome"
	"gorecal/ports"
)

// DefaultWeightsPath is where the current weight vector is published
const DefaultWeightsPath = "ensemble/weights"

// weightsSourceID marks registry writes made by the reweighter itself so the
// ingestion path can tell them apart from producer observations
const weightsSourceID = core.SourceID("reweighter")

// ReweightConfig drives the recalibration policy. Invalid values are rejected
// at construction; a running engine never sees a bad config.
type ReweightConfig struct {
	LearningRate      float64
	MinWeight         float64
	ExogenousCap      float64
	ObservationWindow int
	ErrorHistoryCap   int
	NoiseZThreshold   float64
	NoiseMinHistory   int
	DecayRate         float64
	DecayInterval     time.Duration
	BaseSeed          int64
	WeightsPath       string
}

// DefaultReweightConfig returns the standard recalibration settings
func DefaultReweightConfig() ReweightConfig {
	return ReweightConfig{
		LearningRate:      0.1,
		MinWeight:         0.001,
		ExogenousCap:      ensemble.DefaultExogenousCap,
		ObservationWindow: ensemble.DefaultObservationWindow,
		ErrorHistoryCap:   ensemble.DefaultErrorHistoryCap,
		NoiseZThreshold:   1.5,
		NoiseMinHistory:   5,
		DecayRate:         0.05,
		DecayInterval:     10 * time.Minute,
		BaseSeed:          42,
		WeightsPath:       DefaultWeightsPath,
	}
}

// Validate rejects unusable configuration synchronously
func (c ReweightConfig) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("%w: %g outside (0,1]", core.ErrInvalidLearningRate, c.LearningRate)
	}
	if c.MinWeight < 0 || c.MinWeight >= 1 {
		return core.NewConfigError("min_weight", "must be in [0,1)")
	}
	if c.ObservationWindow <= 0 {
		return core.NewConfigError("observation_window", "must be positive")
	}
	if c.ErrorHistoryCap <= 0 {
		return core.NewConfigError("error_history_cap", "must be positive")
	}
	if c.NoiseZThreshold <= 0 {
		return core.NewConfigError("noise_z_threshold", "must be positive")
	}
	if c.NoiseMinHistory < 0 {
		return core.NewConfigError("noise_min_history", "must be non-negative")
	}
	if c.DecayRate < 0 || c.DecayRate > 1 {
		return core.NewConfigError("decay_rate", "must be in [0,1]")
	}
	if c.DecayInterval <= 0 {
		return core.NewConfigError("decay_interval", "must be positive")
	}
	if c.WeightsPath == "" {
		return core.NewConfigError("weights_path", "cannot be empty")
	}
	return nil
}

// DecisionSealer commits one weighting decision and a forensic snapshot to the
// audit chain
type DecisionSealer interface {
	SealDecision(ctx context.Context, decisionID string, decision interface{}, weights *ensemble.WeightVector) (*forensic.SealedEntry, error)
}

// EventSink fans a named event out to live listeners
type EventSink interface {
	Publish(event string, payload interface{})
}

// ReweightDecision is the decision payload sealed into the audit chain
type ReweightDecision struct {
	Action   string                  `json:"action"`
	Mutation *ensemble.MutationEvent `json:"mutation,omitempty"`
	Cap      float64                 `json:"cap,omitempty"`
	Decay    float64                 `json:"decay,omitempty"`
}

// ReweightService owns the ensemble weight vector. It reacts to scored
// failures with attributed, learning-rate-bounded adjustments, decays weights
// toward uniform on a schedule, and enforces the exogenous cap after every
// change.
type ReweightService struct {
	registry  ports.RegistryPort
	rng       ports.RNGPort
	mutations ports.MutationRepository
	sealer    DecisionSealer
	events    EventSink

	mu      sync.Mutex
	config  ReweightConfig
	table   *ensemble.ClassificationTable
	rule    ensemble.CapRule
	weights *ensemble.WeightVector
	history *ensemble.ErrorHistory
	windows map[core.SourceID]*ensemble.ObservationWindow

	registryToken ports.SubscriptionToken
	subscribed    bool
}

// NewReweightService creates the engine with validated configuration and a
// uniform starting vector. The cap is enforced immediately so a heavily
// exogenous table never starts out of policy.
func NewReweightService(config ReweightConfig, table *ensemble.ClassificationTable, registry ports.RegistryPort, rng ports.RNGPort, mutations ports.MutationRepository, sealer DecisionSealer, events EventSink) (*ReweightService, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("reweight configuration rejected: %w", err)
	}
	rule, err := ensemble.NewCapRule(config.ExogenousCap)
	if err != nil {
		return nil, fmt.Errorf("reweight configuration rejected: %w", err)
	}

	weights := ensemble.NewUniformWeights(table)
	if rule.Enforce(weights) {
		log.Printf("[Reweight] Initial uniform vector exceeded the %.2f exogenous cap, rescaled", config.ExogenousCap)
	}

	s := &ReweightService{
		registry:  registry,
		rng:       rng,
		mutations: mutations,
		sealer:    sealer,
		events:    events,
		config:    config,
		table:     table,
		rule:      rule,
		weights:   weights,
		history:   ensemble.NewErrorHistory(config.ErrorHistoryCap),
		windows:   make(map[core.SourceID]*ensemble.ObservationWindow),
	}
	return s, nil
}

// Start publishes the initial vector and begins watching registry ingestion
func (s *ReweightService) Start(ctx context.Context) error {
	s.registryToken = s.registry.Subscribe(ports.GlobalPath, func(path string, obs ensemble.Observation) {
		s.ingest(path, obs)
	})
	s.subscribed = true

	if err := s.publishWeights(ctx); err != nil {
		return fmt.Errorf("failed to publish initial weights: %w", err)
	}
	log.Printf("[Reweight] Engine started: %d sources, cap %.2f, lr %.3f", s.table.Len(), s.config.ExogenousCap, s.config.LearningRate)
	return nil
}

// Stop detaches from the registry
func (s *ReweightService) Stop() {
	if s.subscribed {
		s.registry.Unsubscribe(s.registryToken)
		s.subscribed = false
	}
}

// ingest is the registry admission path: it maintains per-source magnitude
// windows and keeps the cap invariant intact as traffic arrives
func (s *ReweightService) ingest(path string, obs ensemble.Observation) {
	if obs.SourceID == weightsSourceID {
		return
	}
	if !s.table.IsKnown(obs.SourceID) {
		return
	}
	if obs.IsDead() {
		log.Printf("[Reweight] WARNING: Dead signal from %s at %s, excluded from weighting", obs.SourceID, path)
		return
	}

	magnitude, ok := ensemble.Magnitude(obs)
	if !ok {
		return
	}

	s.mu.Lock()
	window, exists := s.windows[obs.SourceID]
	if !exists {
		window = ensemble.NewObservationWindow(s.config.ObservationWindow)
		s.windows[obs.SourceID] = window
	}
	window.Push(magnitude)

	capApplied := s.rule.Enforce(s.weights)
	s.mu.Unlock()

	if capApplied {
		log.Printf("[Reweight] Cap re-enforced on ingestion of %s", path)
		if err := s.publishWeights(context.Background()); err != nil {
			log.Printf("[Reweight] Failed to republish weights: %v", err)
		}
	}
}

// HandleOutcome is the monitor subscriber entry point. Every outcome feeds
// the error history; failures that clear the noise gate trigger a mutation.
func (s *ReweightService) HandleOutcome(ctx context.Context, result outcome.OutcomeResult) {
	s.mu.Lock()
	zScore := s.history.ZScore(result.Distance)
	historyLen := s.history.Len()
	s.history.Push(result.Distance)

	if !result.IsFailure {
		s.mu.Unlock()
		return
	}

	if historyLen > s.config.NoiseMinHistory && zScore < s.config.NoiseZThreshold {
		s.mu.Unlock()
		log.Printf("[Reweight] Failure on %s classified as noise (z %.2f < %.2f), no adjustment", result.PredictionID, zScore, s.config.NoiseZThreshold)
		return
	}

	event := s.mutateLocked(ctx, result, zScore)
	s.mu.Unlock()

	if event == nil {
		return
	}
	s.commitMutation(ctx, event)
}

// mutateLocked runs attribution and applies the bounded adjustments. Caller
// holds the lock. Returns nil when no source clears the culprit threshold.
func (s *ReweightService) mutateLocked(ctx context.Context, result outcome.OutcomeResult, zScore float64) *ensemble.MutationEvent {
	variances := make(map[core.SourceID]float64, len(s.weights.Weights))
	for id := range s.weights.Weights {
		if window, ok := s.windows[id]; ok {
			variances[id] = window.Variance()
		} else {
			variances[id] = 0
		}
	}

	stream, err := s.rng.Stream(ctx, result.PredictionID.String(), "attribution", s.config.BaseSeed)
	if err != nil {
		log.Printf("[Reweight] Failed to derive jitter stream for %s: %v", result.PredictionID, err)
		return nil
	}
	jitter := func() float64 { return stream.Float64()*2 - 1 }

	attributions := ensemble.ComputeAttributions(result.Distance, variances, jitter)
	threshold := ensemble.CulpritThreshold(len(variances), result.Distance)
	culprits := ensemble.SelectCulprits(attributions, threshold)
	if len(culprits) == 0 {
		log.Printf("[Reweight] No source cleared the culprit threshold %.4f for %s, no adjustment", threshold, result.PredictionID)
		return nil
	}

	adjustments := make([]ensemble.WeightAdjustment, 0, len(culprits))
	for _, culprit := range culprits {
		old := s.weights.Get(culprit.SourceID)
		adjusted := ensemble.AdjustedWeight(old, s.config.LearningRate, culprit.Score, result.Distance, s.config.MinWeight)
		s.weights.Weights[culprit.SourceID] = adjusted
		adjustments = append(adjustments, ensemble.WeightAdjustment{
			SourceID:    culprit.SourceID,
			OldWeight:   old,
			NewWeight:   adjusted,
			Attribution: culprit.Score,
		})
	}

	s.weights.Normalize()
	capApplied := s.rule.Enforce(s.weights)
	s.weights.UpdatedAt = core.Now()

	noiseProb := noiseProbability(zScore)
	return ensemble.NewMutationEvent(result.PredictionID, result, attributions, adjustments, zScore, noiseProb, capApplied)
}

// commitMutation persists, publishes, seals, and announces one mutation.
// Each leg is independent: a failed repository write never blocks the audit
// seal, and vice versa.
func (s *ReweightService) commitMutation(ctx context.Context, event *ensemble.MutationEvent) {
	log.Printf("[Reweight] Mutation %s: %d culprits, aggregate reduction %.4f, cap applied %v",
		event.ID, len(event.Adjustments), event.AggregateReduction, event.CapApplied)

	if s.mutations != nil {
		if err := s.mutations.SaveMutation(ctx, event); err != nil {
			log.Printf("[Reweight] Failed to persist mutation %s: %v", event.ID, err)
		}
	}
	if err := s.publishWeights(ctx); err != nil {
		log.Printf("[Reweight] Failed to publish weights after mutation %s: %v", event.ID, err)
	}
	if s.sealer != nil {
		decision := ReweightDecision{Action: "mutation", Mutation: event}
		if _, err := s.sealer.SealDecision(ctx, event.ID.String(), decision, s.Weights()); err != nil {
			log.Printf("[Reweight] Failed to seal mutation %s: %v", event.ID, err)
		}
	}
	if s.events != nil {
		s.events.Publish("mutation", event)
	}
}

// noiseProbability converts a z-score into the two-sided probability that the
// magnitude is explainable by historical variation
func noiseProbability(zScore float64) float64 {
	if math.IsInf(zScore, 1) {
		return 0
	}
	p := 2 * (1 - distuv.UnitNormal.CDF(zScore))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// ApplyDecay pulls every weight toward uniform by the decay rate, then
// re-enforces the cap. Sealed into the audit chain like any other decision.
func (s *ReweightService) ApplyDecay(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.weights.Weights)
	if n == 0 {
		s.mu.Unlock()
		return nil
	}
	uniform := 1.0 / float64(n)
	for id, w := range s.weights.Weights {
		s.weights.Weights[id] = w + s.config.DecayRate*(uniform-w)
	}
	s.weights.Normalize()
	capApplied := s.rule.Enforce(s.weights)
	s.weights.UpdatedAt = core.Now()
	decayed := s.weights.Clone()
	s.mu.Unlock()

	log.Printf("[Reweight] Decay applied at rate %.3f (cap re-applied %v)", s.config.DecayRate, capApplied)

	if err := s.publishWeights(ctx); err != nil {
		return fmt.Errorf("failed to publish decayed weights: %w", err)
	}
	if s.sealer != nil {
		decision := ReweightDecision{Action: "decay", Decay: s.config.DecayRate}
		if _, err := s.sealer.SealDecision(ctx, core.NewID().String(), decision, decayed); err != nil {
			log.Printf("[Reweight] Failed to seal decay decision: %v", err)
		}
	}
	if s.events != nil {
		s.events.Publish("decay", decayed)
	}
	return nil
}

// StartDecayLoop applies decay on the configured interval until cancelled
func (s *ReweightService) StartDecayLoop(ctx context.Context) {
	go func() {
		log.Printf("[Reweight] 🔄 Decay loop started (every %s)", s.config.DecayInterval)
		ticker := time.NewTicker(s.config.DecayInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Printf("[Reweight] Decay loop stopped: %v", ctx.Err())
				return
			case <-ticker.C:
				if err := s.ApplyDecay(ctx); err != nil {
					log.Printf("[Reweight] Decay pass failed: %v", err)
				}
			}
		}
	}()
}

// SetCap swaps the exogenous cap at runtime. The new cap is validated, then
// enforced on the live vector before the call returns.
func (s *ReweightService) SetCap(ctx context.Context, cap float64) error {
	rule, err := ensemble.NewCapRule(cap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rule = rule
	s.config.ExogenousCap = cap
	capApplied := rule.Enforce(s.weights)
	if capApplied {
		s.weights.UpdatedAt = core.Now()
	}
	updated := s.weights.Clone()
	s.mu.Unlock()

	log.Printf("[Reweight] Exogenous cap set to %.3f (rescale needed %v)", cap, capApplied)

	if err := s.publishWeights(ctx); err != nil {
		return fmt.Errorf("failed to publish weights after cap change: %w", err)
	}
	if s.sealer != nil {
		decision := ReweightDecision{Action: "cap_change", Cap: cap}
		if _, err := s.sealer.SealDecision(ctx, core.NewID().String(), decision, updated); err != nil {
			log.Printf("[Reweight] Failed to seal cap change: %v", err)
		}
	}
	return nil
}

// Weights returns a deep copy of the current vector
func (s *ReweightService) Weights() *ensemble.WeightVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weights.Clone()
}

// Table returns the source classification table
func (s *ReweightService) Table() *ensemble.ClassificationTable {
	return s.table
}

// ErrorHistoryLen reports how many outcome magnitudes the noise gate has seen
func (s *ReweightService) ErrorHistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// SeedHistory preloads the error history, used when replaying persisted
// mutations at boot so the noise gate does not cold-start
func (s *ReweightService) SeedHistory(magnitudes []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range magnitudes {
		s.history.Push(m)
	}
}

// publishWeights writes the current vector to the registry for consumers
func (s *ReweightService) publishWeights(ctx context.Context) error {
	snapshot := s.Weights()
	obs, err := ensemble.NewObservation(
		s.config.WeightsPath,
		snapshot,
		ensemble.PayloadGeneric,
		weightsSourceID,
		"", "",
		ensemble.ConfidenceInterval{Lower: 1, Upper: 1},
	)
	if err != nil {
		return err
	}
	return s.registry.Set(ctx, obs)
}
