package core

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
)

const (
	// contourSamples is the number of angular samples per contour layer.
	contourSamples = 360

	// placementAttempts caps rejection sampling during hill placement.
	placementAttempts = 1000

	// hillSeparationMargin is the extra clearance required between hill
	// footprints on top of the sum of their radii.
	hillSeparationMargin = 10

	// cornerHillCount is the number of fixed hills anchoring the world
	// corners. They shape the map edges and are excluded from the
	// obstruction scan.
	cornerHillCount = 2

	cornerHillRadius = 100
)

// Hill is one procedurally placed obstacle. Generated once at terrain
// construction and immutable afterward.
type Hill struct {
	ID           int
	Center       Point2
	BaseRadius   float64
	LayerCount   int
	LayerGap     float64
	NoiseFreq    float64
	NoiseAmp     float64
	HeightMeters float64
}

// ObstructionSegment is the chord where a hill's outer contour crosses the
// transmitter-receiver sight line, together with the hill's elevation.
type ObstructionSegment struct {
	HillID       int
	Start        Point2
	End          Point2
	HeightMeters float64
}

// Width returns the chord length of the segment.
func (s ObstructionSegment) Width() float64 {
	return s.Start.DistanceTo(s.End)
}

// TerrainInfo is the summary handed to the relay optimizers for
// terrain-aware reward shaping.
type TerrainInfo struct {
	AvgHeight float64
	MaxHeight float64
	MinHeight float64
}

// TerrainModel owns the generated hills and the cached obstruction search.
//
// The obstruction scan walks every contour sample of every hill, so its
// result is locked in after the first evaluation for a given sight line and
// tolerance. Invalidate drops the cache; SetTolerance invalidates only when
// the tolerance actually changes.
type TerrainModel struct {
	cfg   TerrainConfig
	noise *perlin.Perlin

	hills   []Hill
	heights []float64

	tolerance float64
	locked    bool
	cached    []ObstructionSegment
}

// GenerateTerrain builds a terrain instance: two fixed corner hills first,
// then rejection-sampled hills with enforced pairwise separation. All
// randomness comes from rng so runs are replayable.
func GenerateTerrain(cfg TerrainConfig, rng *rand.Rand) (*TerrainModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hillCount := cfg.MinHills
	if cfg.MaxHills > cfg.MinHills {
		hillCount += rng.Intn(cfg.MaxHills - cfg.MinHills + 1)
	}
	if hillCount < cornerHillCount {
		hillCount = cornerHillCount
	}

	hills := make([]Hill, 0, hillCount)
	hills = append(hills,
		Hill{ID: 0, Center: Point2{X: 0, Y: 0}, BaseRadius: cornerHillRadius},
		Hill{ID: 1, Center: Point2{X: cfg.Width, Y: cfg.Height}, BaseRadius: cornerHillRadius},
	)

	for attempts := 0; len(hills) < hillCount && attempts < placementAttempts; attempts++ {
		r := 30 + rng.Float64()*120
		x := r + rng.Float64()*(cfg.Width-2*r)
		y := r + rng.Float64()*(cfg.Height-2*r)

		overlap := false
		for _, h := range hills {
			if h.Center.DistanceTo(Point2{X: x, Y: y}) < r+h.BaseRadius+hillSeparationMargin {
				overlap = true
				break
			}
		}
		if overlap {
			continue
		}
		hills = append(hills, Hill{
			ID:         len(hills),
			Center:     Point2{X: x, Y: y},
			BaseRadius: r,
		})
	}

	heights := make([]float64, 0, len(hills)-cornerHillCount)
	for i := range hills {
		h := &hills[i]
		minLayers := int(h.BaseRadius / 10)
		maxLayers := int(h.BaseRadius / 5)
		if minLayers < 1 {
			minLayers = 1
		}
		if maxLayers < minLayers {
			maxLayers = minLayers
		}
		h.LayerCount = minLayers + rng.Intn(maxLayers-minLayers+1)
		h.LayerGap = h.BaseRadius/float64(h.LayerCount) - 1
		h.NoiseFreq = 0.04 + rng.Float64()*0.03
		h.NoiseAmp = float64(4 + rng.Intn(2))
		h.HeightMeters = float64(h.LayerCount) * cfg.HeightScale

		if i >= cornerHillCount {
			heights = append(heights, h.HeightMeters)
		}
	}

	return &TerrainModel{
		cfg:       cfg,
		noise:     perlin.NewPerlin(2, 2, 3, rng.Int63()),
		hills:     hills,
		heights:   heights,
		tolerance: cfg.Tolerance,
	}, nil
}

// Hills returns the generated hills.
func (tm *TerrainModel) Hills() []Hill { return tm.hills }

// Heights returns the elevation of every scannable hill, in metres.
func (tm *TerrainModel) Heights() []float64 { return tm.heights }

// Info summarises hill elevations for the optimizers.
func (tm *TerrainModel) Info() TerrainInfo {
	if len(tm.heights) == 0 {
		return TerrainInfo{}
	}
	info := TerrainInfo{MaxHeight: tm.heights[0], MinHeight: tm.heights[0]}
	sum := 0.0
	for _, h := range tm.heights {
		sum += h
		if h > info.MaxHeight {
			info.MaxHeight = h
		}
		if h < info.MinHeight {
			info.MinHeight = h
		}
	}
	info.AvgHeight = sum / float64(len(tm.heights))
	return info
}

// Tolerance returns the current sight-line tolerance band half-width.
func (tm *TerrainModel) Tolerance() float64 { return tm.tolerance }

// SetTolerance updates the tolerance band and invalidates the cached
// obstruction search when the value changes.
func (tm *TerrainModel) SetTolerance(tolerance float64) {
	if tolerance == tm.tolerance {
		return
	}
	tm.tolerance = tolerance
	tm.Invalidate()
}

// Invalidate drops the locked-in obstruction search so the next call to
// ObstructionsAlong rescans the contours.
func (tm *TerrainModel) Invalidate() {
	tm.locked = false
	tm.cached = nil
}

// ContourLayer samples one closed contour polygon for a hill layer. Layer 0
// is the outermost ring at the hill's base radius; each deeper layer shrinks
// by the hill's layer gap. Coherent noise keeps the rings organic rather
// than circular.
func (tm *TerrainModel) ContourLayer(h Hill, layer int) []Point2 {
	radius := h.BaseRadius - float64(layer)*h.LayerGap
	points := make([]Point2, 0, contourSamples)
	for i := 0; i < contourSamples; i++ {
		theta := float64(i) * math.Pi / 180
		n := tm.noise.Noise1D(float64(i)*h.NoiseFreq + float64(layer)*10)
		r := radius + n*h.NoiseAmp
		points = append(points, Point2{
			X: h.Center.X + r*math.Cos(theta),
			Y: h.Center.Y + r*math.Sin(theta),
		})
	}
	return points
}

// ObstructionsAlong finds, for every scannable hill, the chord where its
// outermost contour crosses the tx-rx sight line. A contour point qualifies
// when its perpendicular distance to the line is within the tolerance band;
// the first and last qualifying points per hill anchor that hill's segment.
//
// The result is cached once computed and reused until Invalidate (or a
// tolerance change) forces a rescan.
func (tm *TerrainModel) ObstructionsAlong(tx, rx Point2) []ObstructionSegment {
	if tm.locked {
		return tm.cached
	}

	var segments []ObstructionSegment
	for _, h := range tm.hills[minInt(cornerHillCount, len(tm.hills)):] {
		var first, last Point2
		found := false
		for _, p := range tm.ContourLayer(h, 0) {
			if perpendicularDistance(p, tx, rx) >= tm.tolerance {
				continue
			}
			if !found {
				first = p
				found = true
			}
			last = p
		}
		if !found {
			continue
		}
		segments = append(segments, ObstructionSegment{
			HillID:       h.ID,
			Start:        first,
			End:          last,
			HeightMeters: h.HeightMeters,
		})
	}

	tm.cached = segments
	tm.locked = true
	return segments
}

// BlocksAt reports whether a drone at (x, y, z) would sit inside a hill:
// within the base-radius footprint at or below the hill's elevation. The
// check uses the unperturbed base radius, not the noisy contour.
func (tm *TerrainModel) BlocksAt(x, y, z float64) bool {
	p := Point2{X: x, Y: y}
	for _, h := range tm.hills {
		if p.DistanceTo(h.Center) <= h.BaseRadius && z <= h.HeightMeters {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
