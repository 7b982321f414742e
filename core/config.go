package core

import (
	"errors"
	"fmt"
)

var (
	ErrBadBounds       = errors.New("invalid world bounds")
	ErrBadHeightBounds = errors.New("invalid height bounds")
	ErrBadGrid         = errors.New("invalid grid configuration")
	ErrBadHyperparams  = errors.New("invalid learning hyperparameters")
	ErrBadTerrain      = errors.New("invalid terrain configuration")
	ErrBadFleet        = errors.New("invalid fleet configuration")
	ErrBadRF           = errors.New("invalid RF configuration")
)

// Bounds is the horizontal movement area for relay nodes.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Validate checks that the bounds describe a non-empty area.
func (b Bounds) Validate() error {
	if b.MaxX <= b.MinX {
		return fmt.Errorf("%w: MaxX (%.1f) <= MinX (%.1f)", ErrBadBounds, b.MaxX, b.MinX)
	}
	if b.MaxY <= b.MinY {
		return fmt.Errorf("%w: MaxY (%.1f) <= MinY (%.1f)", ErrBadBounds, b.MaxY, b.MinY)
	}
	return nil
}

// HeightBounds is the altitude envelope for relay nodes, in metres.
type HeightBounds struct {
	MinZ, MaxZ float64
}

// Validate checks that the altitude envelope is non-empty.
func (hb HeightBounds) Validate() error {
	if hb.MaxZ <= hb.MinZ {
		return fmt.Errorf("%w: MaxZ (%.1f) <= MinZ (%.1f)", ErrBadHeightBounds, hb.MaxZ, hb.MinZ)
	}
	return nil
}

// OptimizerConfig carries the learning hyperparameters and movement step
// sizes for a single relay optimizer. Defaults match DefaultOptimizerConfig.
type OptimizerConfig struct {
	// GridSize is the number of discretization cells along each horizontal axis.
	GridSize int
	// HeightLevels is the number of discretized altitude levels.
	HeightLevels int

	LearningRate   float64
	DiscountFactor float64
	EpsilonStart   float64
	EpsilonMin     float64
	EpsilonDecay   float64

	// StepSize is the horizontal move distance per action; HeightStep is the
	// vertical move distance for climb/descend actions.
	StepSize   float64
	HeightStep float64

	// GoodSignalDBm and BadSignalDBm are the reward-shaping thresholds for
	// relayed received power.
	GoodSignalDBm float64
	BadSignalDBm  float64
}

// DefaultOptimizerConfig returns the default hyperparameters.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		GridSize:       20,
		HeightLevels:   5,
		LearningRate:   0.1,
		DiscountFactor: 0.95,
		EpsilonStart:   0.3,
		EpsilonMin:     0.05,
		EpsilonDecay:   0.995,
		StepSize:       10,
		HeightStep:     5,
		GoodSignalDBm:  -50,
		BadSignalDBm:   -80,
	}
}

// Validate fails fast on configuration mistakes; runtime numeric degeneracy
// is handled by fallbacks elsewhere, but a bad setup should never start.
func (c OptimizerConfig) Validate() error {
	if c.GridSize < 2 {
		return fmt.Errorf("%w: GridSize must be >= 2, got %d", ErrBadGrid, c.GridSize)
	}
	if c.HeightLevels < 2 {
		return fmt.Errorf("%w: HeightLevels must be >= 2, got %d", ErrBadGrid, c.HeightLevels)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("%w: LearningRate must be in (0,1], got %g", ErrBadHyperparams, c.LearningRate)
	}
	if c.DiscountFactor < 0 || c.DiscountFactor >= 1 {
		return fmt.Errorf("%w: DiscountFactor must be in [0,1), got %g", ErrBadHyperparams, c.DiscountFactor)
	}
	if c.EpsilonStart < 0 || c.EpsilonStart > 1 {
		return fmt.Errorf("%w: EpsilonStart must be in [0,1], got %g", ErrBadHyperparams, c.EpsilonStart)
	}
	if c.EpsilonMin < 0 || c.EpsilonMin > c.EpsilonStart {
		return fmt.Errorf("%w: EpsilonMin must be in [0,EpsilonStart], got %g", ErrBadHyperparams, c.EpsilonMin)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("%w: EpsilonDecay must be in (0,1], got %g", ErrBadHyperparams, c.EpsilonDecay)
	}
	if c.StepSize <= 0 || c.HeightStep <= 0 {
		return fmt.Errorf("%w: step sizes must be positive", ErrBadHyperparams)
	}
	return nil
}

// TerrainConfig controls procedural hill generation.
type TerrainConfig struct {
	// Width and Height are the world extents in the ground plane.
	Width, Height float64

	// MinHills and MaxHills bound the randomly drawn hill count.
	MinHills, MaxHills int

	// HeightScale converts a hill's layer count into metres of elevation.
	HeightScale float64

	// Tolerance is the half-width of the sight-line band used when searching
	// contour points for obstructions.
	Tolerance float64
}

// DefaultTerrainConfig returns the default terrain parameters.
func DefaultTerrainConfig() TerrainConfig {
	return TerrainConfig{
		Width:       800,
		Height:      600,
		MinHills:    7,
		MaxHills:    10,
		HeightScale: 10,
		Tolerance:   5,
	}
}

// Validate fails fast on impossible terrain setups.
func (c TerrainConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: world extents must be positive, got %gx%g", ErrBadTerrain, c.Width, c.Height)
	}
	if c.MinHills < 0 || c.MaxHills < c.MinHills {
		return fmt.Errorf("%w: hill count range [%d,%d]", ErrBadTerrain, c.MinHills, c.MaxHills)
	}
	if c.HeightScale <= 0 {
		return fmt.Errorf("%w: HeightScale must be positive, got %g", ErrBadTerrain, c.HeightScale)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("%w: Tolerance must be positive, got %g", ErrBadTerrain, c.Tolerance)
	}
	return nil
}

// RFConfig carries the radio parameters shared by every link in the world.
type RFConfig struct {
	// FrequencyHz is the carrier frequency.
	FrequencyHz float64
	// TxPowerDBm is the transmit power used to convert path loss into
	// received power.
	TxPowerDBm float64
	// FadingSigmaDB is the standard deviation of log-normal shadow fading.
	FadingSigmaDB float64
}

// DefaultRFConfig returns a 2.4 GHz link with mild shadow fading.
func DefaultRFConfig() RFConfig {
	return RFConfig{
		FrequencyHz:   2.4e9,
		TxPowerDBm:    30,
		FadingSigmaDB: 2,
	}
}

// Validate fails fast on a non-physical radio setup.
func (c RFConfig) Validate() error {
	if c.FrequencyHz <= 0 {
		return fmt.Errorf("%w: FrequencyHz must be positive, got %g", ErrBadRF, c.FrequencyHz)
	}
	if c.FadingSigmaDB < 0 {
		return fmt.Errorf("%w: FadingSigmaDB must be >= 0, got %g", ErrBadRF, c.FadingSigmaDB)
	}
	return nil
}

// FleetConfig controls the fleet controller's cadence and training policy.
type FleetConfig struct {
	// NumDrones is the number of relay nodes in the chain.
	NumDrones int

	// UpdateEveryTicks is K: one RL decision per node every K simulation ticks.
	UpdateEveryTicks int

	// EpisodeTicks is the fixed episode length in simulation ticks.
	EpisodeTicks int

	// SaveEveryEpisodes triggers a bulk policy save every M completed episodes.
	SaveEveryEpisodes int

	// RewardWindow is the number of recent episode rewards consulted by the
	// training policy.
	RewardWindow int

	// SuccessThreshold is the mean episode reward at which a node's training
	// is frozen by the default policy.
	SuccessThreshold float64
}

// DefaultFleetConfig returns the default fleet cadence.
func DefaultFleetConfig() FleetConfig {
	return FleetConfig{
		NumDrones:         3,
		UpdateEveryTicks:  5,
		EpisodeTicks:      600,
		SaveEveryEpisodes: 10,
		RewardWindow:      10,
		SuccessThreshold:  50,
	}
}

// Validate fails fast on a fleet setup that could never run.
func (c FleetConfig) Validate() error {
	if c.NumDrones < 1 {
		return fmt.Errorf("%w: NumDrones must be >= 1, got %d", ErrBadFleet, c.NumDrones)
	}
	if c.UpdateEveryTicks < 1 {
		return fmt.Errorf("%w: UpdateEveryTicks must be >= 1, got %d", ErrBadFleet, c.UpdateEveryTicks)
	}
	if c.EpisodeTicks < 1 {
		return fmt.Errorf("%w: EpisodeTicks must be >= 1, got %d", ErrBadFleet, c.EpisodeTicks)
	}
	if c.SaveEveryEpisodes < 1 {
		return fmt.Errorf("%w: SaveEveryEpisodes must be >= 1, got %d", ErrBadFleet, c.SaveEveryEpisodes)
	}
	if c.RewardWindow < 1 {
		return fmt.Errorf("%w: RewardWindow must be >= 1, got %d", ErrBadFleet, c.RewardWindow)
	}
	return nil
}
