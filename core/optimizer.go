package core

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
)

const (
	// NumActions is the fixed action-space size: 8 compass moves on the
	// horizontal plane plus climb and descend.
	NumActions = 10

	// ActionClimb and ActionDescend are the two purely vertical actions.
	ActionClimb   = 8
	ActionDescend = 9

	// Sanitization defaults for reward inputs.
	defaultRxPowerDBm    = -80.0
	defaultDistanceM     = 1000.0
	defaultAltitudeM     = 50.0
	goodAltitudeMarginM  = 20.0
	lowAltitudeMarginM   = 10.0
	signalImprovementMul = 0.5
)

// actionVectors maps each action id to its movement direction. Indices 0-7
// are N, NE, E, SE, S, SW, W, NW with screen-style Y (north decreases Y);
// 8 climbs, 9 descends.
var actionVectors = [NumActions][3]float64{
	{0, -1, 0},
	{1, -1, 0},
	{1, 0, 0},
	{1, 1, 0},
	{0, 1, 0},
	{-1, 1, 0},
	{-1, 0, 0},
	{-1, -1, 0},
	{0, 0, 1},
	{0, 0, -1},
}

// QState is a discretized 3D position: grid cell on the horizontal plane
// plus an altitude level. Components are always clamped into their
// configured ranges.
type QState struct {
	X, Y, Z int
}

// String renders the state in the stable form used as a persistence key.
func (s QState) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.X, s.Y, s.Z)
}

// parseQState inverts QState.String. It tolerates spaces after commas so
// policies written by older builds still load.
func parseQState(key string) (QState, error) {
	var s QState
	n, err := fmt.Sscanf(key, "(%d,%d,%d)", &s.X, &s.Y, &s.Z)
	if err != nil || n != 3 {
		if n, err = fmt.Sscanf(key, "(%d, %d, %d)", &s.X, &s.Y, &s.Z); err != nil || n != 3 {
			return QState{}, fmt.Errorf("malformed state key %q", key)
		}
	}
	return s, nil
}

// TerrainCollider answers whether a candidate drone position sits inside
// terrain. TerrainModel implements it; tests substitute fakes.
type TerrainCollider interface {
	BlocksAt(x, y, z float64) bool
}

// RelayOptimizer is one tabular Q-learning agent controlling one relay
// node. It discretizes the node's continuous position into a grid state,
// picks one of the ten fixed actions epsilon-greedily, applies it under
// bounds and terrain constraints, and updates its action-value table from
// the shaped reward.
//
// The Q-table is a sparse map over the finite state space
// GridSize x GridSize x HeightLevels; rows are created lazily on first
// visit and persist for the optimizer's lifetime.
type RelayOptimizer struct {
	cfg     OptimizerConfig
	terrain TerrainCollider
	rng     *rand.Rand

	qTable  map[QState][]float64
	epsilon float64

	stepCount    int
	episodeCount int
}

// NewRelayOptimizer validates the configuration and builds an agent.
// terrain may be nil, in which case no move is terrain-blocked.
func NewRelayOptimizer(cfg OptimizerConfig, terrain TerrainCollider, rng *rand.Rand) (*RelayOptimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrBadHyperparams)
	}
	return &RelayOptimizer{
		cfg:     cfg,
		terrain: terrain,
		rng:     rng,
		qTable:  make(map[QState][]float64),
		epsilon: cfg.EpsilonStart,
	}, nil
}

// Epsilon returns the current exploration rate.
func (o *RelayOptimizer) Epsilon() float64 { return o.epsilon }

// StepCount returns the number of Step calls so far.
func (o *RelayOptimizer) StepCount() int { return o.stepCount }

// EpisodeCount returns the number of completed episodes.
func (o *RelayOptimizer) EpisodeCount() int { return o.episodeCount }

// StateCount returns the number of distinct states visited so far.
func (o *RelayOptimizer) StateCount() int { return len(o.qTable) }

// StateSpaceSize returns the full finite state-space size.
func (o *RelayOptimizer) StateSpaceSize() int {
	return o.cfg.GridSize * o.cfg.GridSize * o.cfg.HeightLevels
}

// Discretize maps a continuous position onto the grid+altitude state,
// clamping each index into its valid range.
func (o *RelayOptimizer) Discretize(pos Vec3, bounds Bounds, heights HeightBounds) QState {
	gx := int((pos.X - bounds.MinX) / (bounds.MaxX - bounds.MinX) * float64(o.cfg.GridSize-1))
	gy := int((pos.Y - bounds.MinY) / (bounds.MaxY - bounds.MinY) * float64(o.cfg.GridSize-1))
	gz := int((pos.Z - heights.MinZ) / (heights.MaxZ - heights.MinZ) * float64(o.cfg.HeightLevels-1))
	return QState{
		X: clampInt(gx, 0, o.cfg.GridSize-1),
		Y: clampInt(gy, 0, o.cfg.GridSize-1),
		Z: clampInt(gz, 0, o.cfg.HeightLevels-1),
	}
}

// ContinuousFromGrid maps a grid state back to the continuous position at
// that cell's reference corner. Round-tripping through Discretize lands
// within one cell width of the original point.
func (o *RelayOptimizer) ContinuousFromGrid(s QState, bounds Bounds, heights HeightBounds) Vec3 {
	return Vec3{
		X: bounds.MinX + float64(s.X)/float64(o.cfg.GridSize-1)*(bounds.MaxX-bounds.MinX),
		Y: bounds.MinY + float64(s.Y)/float64(o.cfg.GridSize-1)*(bounds.MaxY-bounds.MinY),
		Z: heights.MinZ + float64(s.Z)/float64(o.cfg.HeightLevels-1)*(heights.MaxZ-heights.MinZ),
	}
}

// ensureRow lazily initializes the Q-row for a state with all ten actions
// at value zero.
func (o *RelayOptimizer) ensureRow(s QState) []float64 {
	row, ok := o.qTable[s]
	if !ok {
		row = make([]float64, NumActions)
		o.qTable[s] = row
	}
	return row
}

// SelectAction picks an action epsilon-greedily. During training a random
// action is taken with probability epsilon; otherwise the maximal-value
// action wins, with ties broken uniformly among the maximizers.
func (o *RelayOptimizer) SelectAction(s QState, training bool) int {
	row := o.ensureRow(s)

	if training && o.rng.Float64() < o.epsilon {
		return o.rng.Intn(NumActions)
	}

	best := []int{0}
	maxQ := row[0]
	for a := 1; a < NumActions; a++ {
		switch {
		case row[a] > maxQ:
			maxQ = row[a]
			best = best[:1]
			best[0] = a
		case row[a] == maxQ:
			best = append(best, a)
		}
	}
	if len(best) == 1 {
		return best[0]
	}
	return best[o.rng.Intn(len(best))]
}

// ApplyAction moves the position by the action vector scaled by the
// configured step sizes, clamped to bounds. A horizontal move whose
// destination footprint collides with terrain at the resulting altitude is
// rejected: x and y revert while any simultaneous vertical delta still
// applies. Purely vertical actions are never terrain-blocked.
func (o *RelayOptimizer) ApplyAction(pos Vec3, action int, bounds Bounds, heights HeightBounds) Vec3 {
	if action < 0 || action >= NumActions {
		return pos
	}
	vec := actionVectors[action]

	next := Vec3{
		X: clamp(pos.X+vec[0]*o.cfg.StepSize, bounds.MinX, bounds.MaxX),
		Y: clamp(pos.Y+vec[1]*o.cfg.StepSize, bounds.MinY, bounds.MaxY),
		Z: clamp(pos.Z+vec[2]*o.cfg.HeightStep, heights.MinZ, heights.MaxZ),
	}

	movingHorizontally := vec[0] != 0 || vec[1] != 0
	if movingHorizontally && o.terrain != nil && o.terrain.BlocksAt(next.X, next.Y, next.Z) {
		next.X = pos.X
		next.Y = pos.Y
	}
	return next
}

// Reward shapes the learning signal from signal quality and positioning
// heuristics. All inputs are sanitized to finite defaults first; the result
// is always a finite number.
func (o *RelayOptimizer) Reward(metrics SignalMetrics, altitude, avgTerrainHeight float64) float64 {
	rxDirect := metrics.RxPowerDirectDBm
	if !isFinite(rxDirect) {
		rxDirect = defaultRxPowerDBm
	}
	rxRelay := metrics.RxPowerRelayDBm
	if !isFinite(rxRelay) {
		rxRelay = defaultRxPowerDBm
	}
	distDirect := metrics.DistanceDirectM
	if !isFinite(distDirect) || distDirect <= 0 {
		distDirect = defaultDistanceM
	}
	distRelay := metrics.DistanceRelayM
	if !isFinite(distRelay) || distRelay <= 0 {
		distRelay = defaultDistanceM
	}
	if !isFinite(altitude) {
		altitude = defaultAltitudeM
	}
	if !isFinite(avgTerrainHeight) {
		avgTerrainHeight = 0
	}

	reward := (rxRelay - rxDirect) * signalImprovementMul

	if rxRelay > o.cfg.GoodSignalDBm {
		reward += 10
	} else if rxRelay < o.cfg.BadSignalDBm {
		reward -= 5
	}

	// Raw path lengths are compared without normalizing per-hop loss.
	if distRelay < distDirect {
		reward += 2
	}

	margin := altitude - avgTerrainHeight
	if margin > goodAltitudeMarginM {
		reward += 3
	} else if margin < lowAltitudeMarginM {
		reward -= 1
	}

	if !isFinite(reward) {
		return 0
	}
	return reward
}

// updateQ applies the standard Q-learning rule:
//
//	Q(s,a) += alpha * (r + gamma*max_a' Q(s',a') - Q(s,a))
func (o *RelayOptimizer) updateQ(s QState, action int, reward float64, next QState) {
	row := o.ensureRow(s)
	nextRow := o.ensureRow(next)

	maxNext := nextRow[0]
	for _, q := range nextRow[1:] {
		if q > maxNext {
			maxNext = q
		}
	}

	current := row[action]
	row[action] = current + o.cfg.LearningRate*(reward+o.cfg.DiscountFactor*maxNext-current)
}

// Step runs one decision cycle: discretize, select, move, reward, and (when
// training) update the Q-table. It returns the new position, the action id
// taken, and the reward observed.
func (o *RelayOptimizer) Step(pos Vec3, bounds Bounds, heights HeightBounds, metrics SignalMetrics, terrain TerrainInfo, training bool) (Vec3, int, float64) {
	state := o.Discretize(pos, bounds, heights)
	action := o.SelectAction(state, training)

	next := o.ApplyAction(pos, action, bounds, heights)
	nextState := o.Discretize(next, bounds, heights)

	reward := o.Reward(metrics, next.Z, terrain.AvgHeight)

	if training {
		o.updateQ(state, action, reward, nextState)
	}
	o.stepCount++

	return next, action, reward
}

// EndEpisode decays exploration once. Epsilon is non-increasing across
// episodes and bounded below by EpsilonMin. The agent itself has no notion
// of episode length; the fleet controller decides when episodes end.
func (o *RelayOptimizer) EndEpisode() {
	o.epsilon = o.epsilon * o.cfg.EpsilonDecay
	if o.epsilon < o.cfg.EpsilonMin {
		o.epsilon = o.cfg.EpsilonMin
	}
	o.episodeCount++
}

// policyJSON is the stable external policy representation.
type policyJSON struct {
	QTable       map[string]map[string]float64 `json:"qTable"`
	Epsilon      float64                       `json:"epsilon"`
	StepCount    int                           `json:"stepCount"`
	EpisodeCount int                           `json:"episodeCount"`
}

// SavePolicy writes the Q-table, epsilon, and counters to path as JSON,
// keyed by the string form of each discrete state.
func (o *RelayOptimizer) SavePolicy(path string) error {
	payload := policyJSON{
		QTable:       make(map[string]map[string]float64, len(o.qTable)),
		Epsilon:      o.epsilon,
		StepCount:    o.stepCount,
		EpisodeCount: o.episodeCount,
	}
	for state, row := range o.qTable {
		actions := make(map[string]float64, NumActions)
		for a, q := range row {
			actions[strconv.Itoa(a)] = q
		}
		payload.QTable[state.String()] = actions
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}

// LoadPolicy restores a previously saved policy. Malformed state keys and
// out-of-range action indices are skipped so one bad entry never fails the
// whole load; every restored state still carries all ten actions.
func (o *RelayOptimizer) LoadPolicy(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	var payload policyJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("load policy: decode failed: %w", err)
	}

	table := make(map[QState][]float64, len(payload.QTable))
	for key, actions := range payload.QTable {
		state, err := parseQState(key)
		if err != nil {
			continue
		}
		row := make([]float64, NumActions)
		for rawIdx, q := range actions {
			idx, err := strconv.Atoi(rawIdx)
			if err != nil || idx < 0 || idx >= NumActions || !isFinite(q) {
				continue
			}
			row[idx] = q
		}
		table[state] = row
	}

	o.qTable = table
	if isFinite(payload.Epsilon) && payload.Epsilon >= 0 && payload.Epsilon <= 1 {
		o.epsilon = payload.Epsilon
	}
	o.stepCount = payload.StepCount
	o.episodeCount = payload.EpisodeCount
	return nil
}
