package core

import (
	"context"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/terrain-relay-sim/internal/logging"
)

// TrainingPolicy decides, from a node's recent episode rewards, whether the
// node should keep training. The default freezes learning once performance
// converges and re-enables it if performance regresses; alternative
// strategies plug in without touching the optimizer.
type TrainingPolicy interface {
	ShouldTrain(recentRewards []float64) bool
}

// MeanRewardPolicy trains while the rolling mean episode reward stays below
// Threshold. With no history yet it always trains.
type MeanRewardPolicy struct {
	Threshold float64
}

// ShouldTrain implements TrainingPolicy.
func (p MeanRewardPolicy) ShouldTrain(recentRewards []float64) bool {
	if len(recentRewards) == 0 {
		return true
	}
	return stat.Mean(recentRewards, nil) < p.Threshold
}

// AlwaysTrain never freezes learning. Useful for benchmarks and tests.
type AlwaysTrain struct{}

// ShouldTrain implements TrainingPolicy.
func (AlwaysTrain) ShouldTrain([]float64) bool { return true }

// EpisodeSummary is the immutable per-node record emitted at every episode
// boundary for consumers outside the core (loggers, charts, metrics).
type EpisodeSummary struct {
	Episode  int
	DroneID  int
	Reward   float64
	Epsilon  float64
	States   int
	Training bool
}

// FleetMetrics receives fleet telemetry. Implementations live outside the
// core; a nil recorder is replaced with a no-op.
type FleetMetrics interface {
	ObserveTick()
	ObserveStep(droneID int, reward, relayLossDB float64)
	ObserveEpisode(summary EpisodeSummary)
}

type noopFleetMetrics struct{}

func (noopFleetMetrics) ObserveTick()                      {}
func (noopFleetMetrics) ObserveStep(int, float64, float64) {}
func (noopFleetMetrics) ObserveEpisode(EpisodeSummary)     {}

// FleetControllerOption customises a FleetController at construction.
type FleetControllerOption func(*FleetController)

// WithTrainingPolicy replaces the default mean-reward freeze strategy.
func WithTrainingPolicy(p TrainingPolicy) FleetControllerOption {
	return func(fc *FleetController) {
		if p != nil {
			fc.policy = p
		}
	}
}

// WithPolicyStore enables periodic bulk policy persistence.
func WithPolicyStore(s PolicyStore) FleetControllerOption {
	return func(fc *FleetController) { fc.store = s }
}

// WithFleetLogger attaches a structured logger.
func WithFleetLogger(log logging.Logger) FleetControllerOption {
	return func(fc *FleetController) {
		if log != nil {
			fc.log = log
		}
	}
}

// WithFleetMetrics attaches a telemetry recorder.
func WithFleetMetrics(m FleetMetrics) FleetControllerOption {
	return func(fc *FleetController) {
		if m != nil {
			fc.metrics = m
		}
	}
}

// FleetController owns one RelayOptimizer per drone plus the canonical
// position array indexed by drone id. It advances each optimizer by one RL
// step every UpdateEveryTicks simulation ticks, decoupling the render/physics
// rate from the learning rate, and manages episode boundaries, the adaptive
// training freeze, and policy persistence timing.
type FleetController struct {
	cfg     FleetConfig
	bounds  Bounds
	heights HeightBounds

	engine  *PropagationEngine
	terrain *TerrainModel
	tx, rx  Vec3

	agents    []*RelayOptimizer
	positions []Vec3
	training  []bool

	cumulative []float64
	windows    [][]float64

	policy  TrainingPolicy
	store   PolicyStore
	log     logging.Logger
	metrics FleetMetrics

	tickCount int
	episode   int
}

// NewFleetController builds the fleet: N optimizers sharing the terrain
// collider, drones spread evenly along the tx-rx line at the midpoint of
// the altitude envelope. Configuration errors fail fast.
func NewFleetController(
	cfg FleetConfig,
	optCfg OptimizerConfig,
	bounds Bounds,
	heights HeightBounds,
	tx, rx Vec3,
	engine *PropagationEngine,
	terrain *TerrainModel,
	rng *rand.Rand,
	opts ...FleetControllerOption,
) (*FleetController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if err := heights.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: nil propagation engine", ErrBadFleet)
	}

	fc := &FleetController{
		cfg:        cfg,
		bounds:     bounds,
		heights:    heights,
		engine:     engine,
		terrain:    terrain,
		tx:         tx,
		rx:         rx,
		agents:     make([]*RelayOptimizer, cfg.NumDrones),
		positions:  make([]Vec3, cfg.NumDrones),
		training:   make([]bool, cfg.NumDrones),
		cumulative: make([]float64, cfg.NumDrones),
		windows:    make([][]float64, cfg.NumDrones),
		policy:     MeanRewardPolicy{Threshold: cfg.SuccessThreshold},
		log:        logging.Noop(),
		metrics:    noopFleetMetrics{},
	}

	var collider TerrainCollider
	if terrain != nil {
		collider = terrain
	}
	midZ := (heights.MinZ + heights.MaxZ) / 2
	for i := 0; i < cfg.NumDrones; i++ {
		agent, err := NewRelayOptimizer(optCfg, collider, rng)
		if err != nil {
			return nil, err
		}
		fc.agents[i] = agent
		fc.training[i] = true

		// Evenly spaced along the sight line so the initial chain is ordered.
		t := float64(i+1) / float64(cfg.NumDrones+1)
		fc.positions[i] = Vec3{
			X: clamp(tx.X+t*(rx.X-tx.X), bounds.MinX, bounds.MaxX),
			Y: clamp(tx.Y+t*(rx.Y-tx.Y), bounds.MinY, bounds.MaxY),
			Z: midZ,
		}
	}

	for _, opt := range opts {
		opt(fc)
	}
	return fc, nil
}

// Positions returns a copy of the canonical drone position array.
func (fc *FleetController) Positions() []Vec3 {
	out := make([]Vec3, len(fc.positions))
	copy(out, fc.positions)
	return out
}

// SetPosition overrides a drone's position, clamped into bounds.
func (fc *FleetController) SetPosition(droneID int, pos Vec3) {
	if droneID < 0 || droneID >= len(fc.positions) {
		return
	}
	fc.positions[droneID] = Vec3{
		X: clamp(pos.X, fc.bounds.MinX, fc.bounds.MaxX),
		Y: clamp(pos.Y, fc.bounds.MinY, fc.bounds.MaxY),
		Z: clamp(pos.Z, fc.heights.MinZ, fc.heights.MaxZ),
	}
}

// Agent exposes a node's optimizer, mainly for persistence and inspection.
func (fc *FleetController) Agent(droneID int) *RelayOptimizer {
	if droneID < 0 || droneID >= len(fc.agents) {
		return nil
	}
	return fc.agents[droneID]
}

// IsTraining reports whether a node's learning is currently enabled.
func (fc *FleetController) IsTraining(droneID int) bool {
	if droneID < 0 || droneID >= len(fc.training) {
		return false
	}
	return fc.training[droneID]
}

// Episode returns the number of completed episodes.
func (fc *FleetController) Episode() int { return fc.episode }

// RelayChainLoss evaluates the current full relay chain through the
// propagation engine. Consumers use it for display and logging.
func (fc *FleetController) RelayChainLoss() RelayResult {
	obs := fc.obstructions()
	return fc.engine.MultihopRelayLoss(fc.tx, fc.positions, fc.rx, obs, fc.engine.FrequencyHz())
}

func (fc *FleetController) obstructions() []ObstructionSegment {
	if fc.terrain == nil {
		return nil
	}
	return fc.terrain.ObstructionsAlong(
		Point2{X: fc.tx.X, Y: fc.tx.Y},
		Point2{X: fc.rx.X, Y: fc.rx.Y},
	)
}

// Tick advances the simulation by one tick. Every UpdateEveryTicks ticks
// each node takes one RL step on single-hop metrics (that node as the sole
// relay); at every EpisodeTicks boundary the episode ends and the summaries
// for the completed episode are returned. All other calls return nil.
func (fc *FleetController) Tick(ctx context.Context) []EpisodeSummary {
	fc.tickCount++
	fc.metrics.ObserveTick()

	if fc.tickCount%fc.cfg.UpdateEveryTicks == 0 {
		fc.stepAll(ctx)
	}

	if fc.tickCount%fc.cfg.EpisodeTicks == 0 {
		return fc.endEpisode(ctx)
	}
	return nil
}

// stepAll advances every node by one RL decision. Position writes land in
// the canonical array before the next node's metrics are computed, so the
// chain the propagation pass sees is always current.
func (fc *FleetController) stepAll(ctx context.Context) {
	obs := fc.obstructions()
	var terrainInfo TerrainInfo
	if fc.terrain != nil {
		terrainInfo = fc.terrain.Info()
	}

	for i, agent := range fc.agents {
		metrics := fc.engine.SignalMetricsFor(fc.tx, fc.rx, []Vec3{fc.positions[i]}, obs)

		newPos, action, reward := agent.Step(
			fc.positions[i],
			fc.bounds,
			fc.heights,
			metrics,
			terrainInfo,
			fc.training[i],
		)
		fc.positions[i] = newPos
		fc.cumulative[i] += reward

		fc.metrics.ObserveStep(i, reward, fc.engine.TxPowerDBm()-metrics.RxPowerRelayDBm)

		fc.log.Debug(ctx, "relay step",
			logging.Int("drone", i),
			logging.Int("action", action),
			logging.Any("reward", reward),
		)
	}
}

// endEpisode rolls cumulative rewards into each node's window, invokes every
// agent's end-of-episode hook, re-evaluates the training freeze, and saves
// policies every SaveEveryEpisodes episodes.
func (fc *FleetController) endEpisode(ctx context.Context) []EpisodeSummary {
	fc.episode++
	summaries := make([]EpisodeSummary, 0, len(fc.agents))

	for i, agent := range fc.agents {
		fc.windows[i] = append(fc.windows[i], fc.cumulative[i])
		if len(fc.windows[i]) > fc.cfg.RewardWindow {
			fc.windows[i] = fc.windows[i][len(fc.windows[i])-fc.cfg.RewardWindow:]
		}

		agent.EndEpisode()
		fc.training[i] = fc.policy.ShouldTrain(fc.windows[i])

		summary := EpisodeSummary{
			Episode:  fc.episode,
			DroneID:  i,
			Reward:   fc.cumulative[i],
			Epsilon:  agent.Epsilon(),
			States:   agent.StateCount(),
			Training: fc.training[i],
		}
		summaries = append(summaries, summary)
		fc.metrics.ObserveEpisode(summary)
		fc.cumulative[i] = 0
	}

	if fc.store != nil && fc.episode%fc.cfg.SaveEveryEpisodes == 0 {
		fc.savePolicies(ctx)
	}
	return summaries
}

// SaveAll persists every node's policy once, best effort: errors are logged
// and not retried. Used for the periodic bulk save and the shutdown save.
func (fc *FleetController) SaveAll(ctx context.Context) {
	if fc.store == nil {
		return
	}
	fc.savePolicies(ctx)
}

func (fc *FleetController) savePolicies(ctx context.Context) {
	for i, agent := range fc.agents {
		if err := fc.store.Save(i, agent); err != nil {
			fc.log.Error(ctx, "policy save failed",
				logging.Int("drone", i),
				logging.String("error", err.Error()),
			)
		}
	}
}

// LoadAll restores every node's policy from the store, skipping nodes
// without a saved policy.
func (fc *FleetController) LoadAll(ctx context.Context) {
	if fc.store == nil {
		return
	}
	for i, agent := range fc.agents {
		if err := fc.store.Load(i, agent); err != nil {
			fc.log.Warn(ctx, "policy load failed",
				logging.Int("drone", i),
				logging.String("error", err.Error()),
			)
		}
	}
}
