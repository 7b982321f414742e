package core

import (
	"errors"
	"testing"
)

func TestBoundsValidate(t *testing.T) {
	if err := (Bounds{MinX: 0, MaxX: 800, MinY: 0, MaxY: 600}).Validate(); err != nil {
		t.Errorf("valid bounds rejected: %v", err)
	}
	err := (Bounds{MinX: 800, MaxX: 0, MinY: 0, MaxY: 600}).Validate()
	if !errors.Is(err, ErrBadBounds) {
		t.Errorf("inverted X bounds: got %v, want ErrBadBounds", err)
	}
	err = (Bounds{MinX: 0, MaxX: 800, MinY: 10, MaxY: 10}).Validate()
	if !errors.Is(err, ErrBadBounds) {
		t.Errorf("empty Y extent: got %v, want ErrBadBounds", err)
	}
}

func TestHeightBoundsValidate(t *testing.T) {
	if err := (HeightBounds{MinZ: 10, MaxZ: 150}).Validate(); err != nil {
		t.Errorf("valid envelope rejected: %v", err)
	}
	err := (HeightBounds{MinZ: 150, MaxZ: 10}).Validate()
	if !errors.Is(err, ErrBadHeightBounds) {
		t.Errorf("inverted envelope: got %v, want ErrBadHeightBounds", err)
	}
}

func TestOptimizerConfigValidate(t *testing.T) {
	if err := DefaultOptimizerConfig().Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*OptimizerConfig)
		wantErr error
	}{
		{"grid too small", func(c *OptimizerConfig) { c.GridSize = 1 }, ErrBadGrid},
		{"single height level", func(c *OptimizerConfig) { c.HeightLevels = 1 }, ErrBadGrid},
		{"zero learning rate", func(c *OptimizerConfig) { c.LearningRate = 0 }, ErrBadHyperparams},
		{"learning rate above one", func(c *OptimizerConfig) { c.LearningRate = 1.5 }, ErrBadHyperparams},
		{"discount of one", func(c *OptimizerConfig) { c.DiscountFactor = 1 }, ErrBadHyperparams},
		{"epsilon min above start", func(c *OptimizerConfig) { c.EpsilonMin = 0.5 }, ErrBadHyperparams},
		{"zero decay", func(c *OptimizerConfig) { c.EpsilonDecay = 0 }, ErrBadHyperparams},
		{"negative step", func(c *OptimizerConfig) { c.StepSize = -1 }, ErrBadHyperparams},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultOptimizerConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRFConfigValidate(t *testing.T) {
	if err := DefaultRFConfig().Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	cfg := DefaultRFConfig()
	cfg.FrequencyHz = 0
	if err := cfg.Validate(); !errors.Is(err, ErrBadRF) {
		t.Errorf("zero frequency: got %v, want ErrBadRF", err)
	}

	cfg = DefaultRFConfig()
	cfg.FadingSigmaDB = -1
	if err := cfg.Validate(); !errors.Is(err, ErrBadRF) {
		t.Errorf("negative sigma: got %v, want ErrBadRF", err)
	}

	// Zero sigma is a legal way to disable fading.
	cfg = DefaultRFConfig()
	cfg.FadingSigmaDB = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero sigma rejected: %v", err)
	}
}

func TestFleetConfigValidate(t *testing.T) {
	if err := DefaultFleetConfig().Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*FleetConfig)
	}{
		{"no drones", func(c *FleetConfig) { c.NumDrones = 0 }},
		{"zero tick cadence", func(c *FleetConfig) { c.UpdateEveryTicks = 0 }},
		{"zero episode length", func(c *FleetConfig) { c.EpisodeTicks = 0 }},
		{"zero save cadence", func(c *FleetConfig) { c.SaveEveryEpisodes = 0 }},
		{"empty reward window", func(c *FleetConfig) { c.RewardWindow = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultFleetConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrBadFleet) {
				t.Errorf("got %v, want ErrBadFleet", err)
			}
		})
	}
}

func TestTerrainConfigValidate(t *testing.T) {
	if err := DefaultTerrainConfig().Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	cfg := DefaultTerrainConfig()
	cfg.HeightScale = 0
	if err := cfg.Validate(); !errors.Is(err, ErrBadTerrain) {
		t.Errorf("zero height scale: got %v, want ErrBadTerrain", err)
	}

	cfg = DefaultTerrainConfig()
	cfg.Tolerance = -2
	if err := cfg.Validate(); !errors.Is(err, ErrBadTerrain) {
		t.Errorf("negative tolerance: got %v, want ErrBadTerrain", err)
	}
}
