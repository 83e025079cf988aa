package container

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorecal/adapters/postgres"
	"gorecal/adapters/registry"
	"gorecal/adapters/rng"
	"gorecal/app"
	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/outcome"
	"gorecal/internal/api"
	"gorecal/internal/config"
	"gorecal/internal/report"
	"gorecal/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	Ledger       ports.ChainLedgerPort
	Mutations    ports.MutationRepository
	Observations ports.ObservationRepository

	// Shared state
	Registry ports.RegistryPort
	RNG      ports.RNGPort
	Table    *ensemble.ClassificationTable

	// Application services
	Forensic  *app.ForensicService
	Reweight  *app.ReweightService
	Monitor   *app.MonitorService
	Admission *app.AdmissionGate

	// Streaming and reporting
	SSEHub      *api.SSEHub
	Broadcaster *api.SSEEventBroadcaster
	Reports     *report.Generator

	// Lifecycle tokens
	outcomeToken ports.SubscriptionToken
	persistToken ports.SubscriptionToken
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Container{Config: cfg}, nil
}

// InitWithDatabase initializes components that require database access
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db

	// Test database connection
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	// Initialize repositories
	if err := c.initRepositories(); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// Initialize ensemble services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Printf("Container initialized successfully with database connection")
	return nil
}

// initRepositories initializes data access repositories
func (c *Container) initRepositories() error {
	c.Ledger = postgres.NewChainRepository(c.DB)
	c.Mutations = postgres.NewMutationRepository(c.DB)
	c.Observations = postgres.NewObservationRepository(c.DB)
	return nil
}

// initServices wires the registry, forensics, monitor, and recalibration engine
func (c *Container) initServices() error {
	classes, err := parseSourceClasses(c.Config.Reweight.Sources)
	if err != nil {
		return fmt.Errorf("failed to parse ensemble sources: %w", err)
	}
	c.Table, err = ensemble.NewClassificationTable(classes)
	if err != nil {
		return fmt.Errorf("failed to build classification table: %w", err)
	}

	c.Registry = registry.NewMemoryRegistry()
	c.RNG = rng.NewSeededAdapter(c.Config.Audit.BaseSeed)

	c.SSEHub = api.NewSSEHub()
	c.Broadcaster = api.NewSSEEventBroadcaster(c.SSEHub)

	c.Forensic = app.NewForensicService(c.Registry, c.Ledger, c.Table, c.Broadcaster)

	reweightCfg := app.ReweightConfig{
		LearningRate:      c.Config.Reweight.LearningRate,
		MinWeight:         c.Config.Reweight.MinWeight,
		ExogenousCap:      c.Config.Reweight.ExogenousCap,
		ObservationWindow: c.Config.Reweight.ObservationWindow,
		ErrorHistoryCap:   c.Config.Reweight.ErrorHistoryCap,
		NoiseZThreshold:   c.Config.Reweight.NoiseZThreshold,
		NoiseMinHistory:   c.Config.Reweight.NoiseMinHistory,
		DecayRate:         c.Config.Reweight.DecayRate,
		DecayInterval:     c.Config.Reweight.DecayInterval,
		BaseSeed:          c.Config.Audit.BaseSeed,
		WeightsPath:       c.Config.Reweight.WeightsPath,
	}
	c.Reweight, err = app.NewReweightService(reweightCfg, c.Table, c.Registry, c.RNG, c.Mutations, c.Forensic, c.Broadcaster)
	if err != nil {
		return fmt.Errorf("failed to create reweight service: %w", err)
	}

	monitorCfg := app.MonitorConfig{
		MaxLivePredictions: c.Config.Monitor.MaxLivePredictions,
		SweepInterval:      c.Config.Monitor.SweepInterval,
		SweepConcurrency:   c.Config.Monitor.SweepConcurrency,
		Thresholds:         c.thresholds(),
	}
	c.Monitor, err = app.NewMonitorService(monitorCfg, c.Registry)
	if err != nil {
		return fmt.Errorf("failed to create monitor service: %w", err)
	}

	c.Admission, err = app.NewAdmissionGate(c.Table, c.Registry)
	if err != nil {
		return fmt.Errorf("failed to create admission gate: %w", err)
	}

	c.Reports = report.NewGenerator(c.Mutations, c.Forensic, c.Reweight, c.Monitor)

	log.Printf("Ensemble services initialized: %d sources, weights at %s",
		c.Table.Len(), c.Config.Reweight.WeightsPath)
	return nil
}

// thresholds maps per-horizon failure thresholds from configuration
func (c *Container) thresholds() outcome.Thresholds {
	t := outcome.DefaultThresholds()
	if c.Config.Monitor.ThresholdT1 > 0 {
		t[outcome.HorizonT1] = c.Config.Monitor.ThresholdT1
	}
	if c.Config.Monitor.ThresholdT7 > 0 {
		t[outcome.HorizonT7] = c.Config.Monitor.ThresholdT7
	}
	if c.Config.Monitor.ThresholdT30 > 0 {
		t[outcome.HorizonT30] = c.Config.Monitor.ThresholdT30
	}
	return t
}

// Start restores persisted state and begins live recalibration.
// Boot refuses to proceed over a tampered audit chain unless
// verification is explicitly disabled.
func (c *Container) Start(ctx context.Context) error {
	// The chain is always restored; the flag only controls whether an
	// integrity fault refuses boot
	if err := c.Forensic.LoadFromLedger(ctx); err != nil {
		if c.Config.Audit.VerifyOnBoot || !core.IsIntegrityError(err) {
			return fmt.Errorf("audit chain restore failed: %w", err)
		}
		log.Printf("[Container] WARNING: Booting over failed chain verification: %v", err)
	}

	// Replay the newest persisted observation per path before anything
	// subscribes, so history does not register as fresh arrivals
	if err := c.replayObservations(ctx); err != nil {
		return fmt.Errorf("observation replay failed: %w", err)
	}

	// Persist every subsequent registry write
	c.persistToken = c.Registry.Subscribe(ports.GlobalPath, func(path string, obs ensemble.Observation) {
		if err := c.Observations.SaveObservation(context.Background(), obs); err != nil {
			log.Printf("[Container] Failed to persist observation at %s: %v", path, err)
		}
	})

	if err := c.Reweight.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reweight service: %w", err)
	}

	// Every scored outcome feeds the recalibration engine; failures also
	// go out on the event stream
	c.outcomeToken = c.Monitor.SubscribeOutcomes(func(result outcome.OutcomeResult) {
		if result.IsFailure {
			c.Broadcaster.Publish("failure", result)
		}
		c.Reweight.HandleOutcome(ctx, result)
	})

	c.Monitor.StartSweepLoop(ctx)
	c.Reweight.StartDecayLoop(ctx)

	log.Printf("Container started: chain length %d, %d live predictions",
		c.Forensic.ChainLength(), c.Monitor.LiveCount())
	return nil
}

// replayObservations restores the registry from the newest persisted
// observation at each path
func (c *Container) replayObservations(ctx context.Context) error {
	latest, err := c.Observations.LatestPerPath(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted observations: %w", err)
	}
	for path, obs := range latest {
		if err := c.Registry.Set(ctx, obs); err != nil {
			log.Printf("[Container] Skipping replay at %s: %v", path, err)
		}
	}
	if len(latest) > 0 {
		log.Printf("[Container] Replayed %d observation paths into registry", len(latest))
	}
	return nil
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Monitor != nil && c.outcomeToken != "" {
		c.Monitor.UnsubscribeOutcomes(c.outcomeToken)
	}
	if c.Registry != nil && c.persistToken != "" {
		c.Registry.Unsubscribe(c.persistToken)
	}
	if c.Reweight != nil {
		c.Reweight.Stop()
	}

	// Close database connection
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// parseSourceClasses parses "id:class" comma-separated pairs into a
// classification map; class validation happens at table construction
func parseSourceClasses(spec string) (map[core.SourceID]ensemble.SourceClass, error) {
	classes := make(map[core.SourceID]ensemble.SourceClass)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed source entry %q, want id:class", pair)
		}
		id := core.SourceID(strings.TrimSpace(parts[0]))
		classes[id] = ensemble.SourceClass(strings.TrimSpace(parts[1]))
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no ensemble sources configured")
	}
	return classes, nil
}
