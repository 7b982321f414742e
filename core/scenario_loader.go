// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
)

// SimScenario is the fully resolved simulation setup: every section of the
// JSON scenario merged over defaults and validated.
type SimScenario struct {
	Bounds    Bounds
	Heights   HeightBounds
	Terrain   TerrainConfig
	RF        RFConfig
	Optimizer OptimizerConfig
	Fleet     FleetConfig

	Transmitter Vec3
	Receiver    Vec3
}

// internal JSON shapes – kept unexported so the wire format can evolve
// without leaking into the API. Pointer fields distinguish "absent, use
// default" from an explicit zero.
type simScenarioJSON struct {
	World     *worldJSON     `json:"world"`
	Heights   *heightsJSON   `json:"heights"`
	Terrain   *terrainJSON   `json:"terrain"`
	RF        *rfJSON        `json:"rf"`
	Optimizer *optimizerJSON `json:"optimizer"`
	Fleet     *fleetJSON     `json:"fleet"`
	Towers    *towersJSON    `json:"towers"`
}

type worldJSON struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

type heightsJSON struct {
	MinZ float64 `json:"min_z"`
	MaxZ float64 `json:"max_z"`
}

type terrainJSON struct {
	Width       *float64 `json:"width"`
	Height      *float64 `json:"height"`
	MinHills    *int     `json:"min_hills"`
	MaxHills    *int     `json:"max_hills"`
	HeightScale *float64 `json:"height_scale"`
	Tolerance   *float64 `json:"tolerance"`
}

type rfJSON struct {
	FrequencyHz   *float64 `json:"frequency_hz"`
	TxPowerDBm    *float64 `json:"tx_power_dbm"`
	FadingSigmaDB *float64 `json:"fading_sigma_db"`
}

type optimizerJSON struct {
	GridSize       *int     `json:"grid_size"`
	HeightLevels   *int     `json:"height_levels"`
	LearningRate   *float64 `json:"learning_rate"`
	DiscountFactor *float64 `json:"discount_factor"`
	EpsilonStart   *float64 `json:"epsilon_start"`
	EpsilonMin     *float64 `json:"epsilon_min"`
	EpsilonDecay   *float64 `json:"epsilon_decay"`
	StepSize       *float64 `json:"step_size"`
	HeightStep     *float64 `json:"height_step"`
	GoodSignalDBm  *float64 `json:"good_signal_dbm"`
	BadSignalDBm   *float64 `json:"bad_signal_dbm"`
}

type fleetJSON struct {
	NumDrones         *int     `json:"num_drones"`
	UpdateEveryTicks  *int     `json:"update_every_ticks"`
	EpisodeTicks      *int     `json:"episode_ticks"`
	SaveEveryEpisodes *int     `json:"save_every_episodes"`
	RewardWindow      *int     `json:"reward_window"`
	SuccessThreshold  *float64 `json:"success_threshold"`
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type towersJSON struct {
	Transmitter *positionJSON `json:"transmitter"`
	Receiver    *positionJSON `json:"receiver"`
}

// DefaultSimScenario returns the reference setup: an 800x600 world, towers
// tucked into opposite corners at 50 m, and the default configs everywhere.
func DefaultSimScenario() SimScenario {
	terrain := DefaultTerrainConfig()
	return SimScenario{
		Bounds:      Bounds{MinX: 0, MaxX: terrain.Width, MinY: 0, MaxY: terrain.Height},
		Heights:     HeightBounds{MinZ: 10, MaxZ: 150},
		Terrain:     terrain,
		RF:          DefaultRFConfig(),
		Optimizer:   DefaultOptimizerConfig(),
		Fleet:       DefaultFleetConfig(),
		Transmitter: Vec3{X: 35, Y: 35, Z: 50},
		Receiver:    Vec3{X: terrain.Width - 35, Y: terrain.Height - 35, Z: 50},
	}
}

// LoadSimScenario reads a JSON scenario from r, merges it over the defaults,
// and validates the result. Structural JSON errors and configuration errors
// both fail fast; this is setup, not runtime degeneracy.
func LoadSimScenario(r io.Reader) (*SimScenario, error) {
	var payload simScenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadSimScenario: decode failed: %w", err)
	}

	sc := DefaultSimScenario()

	if payload.World != nil {
		sc.Bounds = Bounds{
			MinX: payload.World.MinX,
			MaxX: payload.World.MaxX,
			MinY: payload.World.MinY,
			MaxY: payload.World.MaxY,
		}
	}
	if payload.Heights != nil {
		sc.Heights = HeightBounds{MinZ: payload.Heights.MinZ, MaxZ: payload.Heights.MaxZ}
	}

	if t := payload.Terrain; t != nil {
		setFloat(&sc.Terrain.Width, t.Width)
		setFloat(&sc.Terrain.Height, t.Height)
		setInt(&sc.Terrain.MinHills, t.MinHills)
		setInt(&sc.Terrain.MaxHills, t.MaxHills)
		setFloat(&sc.Terrain.HeightScale, t.HeightScale)
		setFloat(&sc.Terrain.Tolerance, t.Tolerance)
	}
	if rf := payload.RF; rf != nil {
		setFloat(&sc.RF.FrequencyHz, rf.FrequencyHz)
		setFloat(&sc.RF.TxPowerDBm, rf.TxPowerDBm)
		setFloat(&sc.RF.FadingSigmaDB, rf.FadingSigmaDB)
	}
	if o := payload.Optimizer; o != nil {
		setInt(&sc.Optimizer.GridSize, o.GridSize)
		setInt(&sc.Optimizer.HeightLevels, o.HeightLevels)
		setFloat(&sc.Optimizer.LearningRate, o.LearningRate)
		setFloat(&sc.Optimizer.DiscountFactor, o.DiscountFactor)
		setFloat(&sc.Optimizer.EpsilonStart, o.EpsilonStart)
		setFloat(&sc.Optimizer.EpsilonMin, o.EpsilonMin)
		setFloat(&sc.Optimizer.EpsilonDecay, o.EpsilonDecay)
		setFloat(&sc.Optimizer.StepSize, o.StepSize)
		setFloat(&sc.Optimizer.HeightStep, o.HeightStep)
		setFloat(&sc.Optimizer.GoodSignalDBm, o.GoodSignalDBm)
		setFloat(&sc.Optimizer.BadSignalDBm, o.BadSignalDBm)
	}
	if f := payload.Fleet; f != nil {
		setInt(&sc.Fleet.NumDrones, f.NumDrones)
		setInt(&sc.Fleet.UpdateEveryTicks, f.UpdateEveryTicks)
		setInt(&sc.Fleet.EpisodeTicks, f.EpisodeTicks)
		setInt(&sc.Fleet.SaveEveryEpisodes, f.SaveEveryEpisodes)
		setInt(&sc.Fleet.RewardWindow, f.RewardWindow)
		setFloat(&sc.Fleet.SuccessThreshold, f.SuccessThreshold)
	}
	if payload.Towers != nil {
		if t := payload.Towers.Transmitter; t != nil {
			sc.Transmitter = Vec3{X: t.X, Y: t.Y, Z: t.Z}
		}
		if r := payload.Towers.Receiver; r != nil {
			sc.Receiver = Vec3{X: r.X, Y: r.Y, Z: r.Z}
		}
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate runs every section's validator.
func (sc *SimScenario) Validate() error {
	if err := sc.Bounds.Validate(); err != nil {
		return err
	}
	if err := sc.Heights.Validate(); err != nil {
		return err
	}
	if err := sc.Terrain.Validate(); err != nil {
		return err
	}
	if err := sc.RF.Validate(); err != nil {
		return err
	}
	if err := sc.Optimizer.Validate(); err != nil {
		return err
	}
	return sc.Fleet.Validate()
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
