package core

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/signalsfoundry/terrain-relay-sim/internal/logging"
)

const (
	// speedOfLight in metres per second, for wavelength computation.
	speedOfLight = 3e8

	// minDistanceM floors every link distance; zero-length hops are a
	// geometric degeneracy, not an error.
	minDistanceM = 1.0

	// defaultFreqMHz substitutes for invalid frequencies (2.4 GHz).
	defaultFreqMHz = 2400.0

	// fallbackFSPLdB replaces a non-finite free-space loss.
	fallbackFSPLdB = 70.0

	// fallbackSegmentDB replaces a non-finite or negative segment total.
	fallbackSegmentDB = 80.0
)

// LossResult is the per-segment loss breakdown. All fields are finite and
// non-negative apart from FSPLdB, which can be negative at sub-metre
// distances before flooring.
type LossResult struct {
	DistanceM     float64
	FSPLdB        float64
	DiffractionDB float64
	TotalDB       float64
}

// RelayResult aggregates loss over an ordered relay chain.
type RelayResult struct {
	// Path is the full ordered chain: transmitter, relays, receiver.
	Path []Vec3
	// Segments holds one LossResult per consecutive pair in Path.
	Segments []LossResult
	TotalDB  float64
	HopCount int
}

// SignalMetrics is the per-node signal summary consumed by the relay
// optimizers. Values are sanitized to finite numbers before use.
type SignalMetrics struct {
	RxPowerDirectDBm float64
	RxPowerRelayDBm  float64
	DistanceDirectM  float64
	DistanceRelayM   float64
}

// PropagationEngine computes free-space and knife-edge diffraction loss over
// terrain obstructions. Every public method is total: degenerate geometry is
// floored to sentinel minimums and non-finite intermediate values are
// replaced by documented fallbacks, never propagated.
type PropagationEngine struct {
	cfg RFConfig
	rng *rand.Rand
	log logging.Logger

	// Numeric-invalidity fallbacks are logged at most once per class.
	warnFSPL    sync.Once
	warnSegment sync.Once
}

// NewPropagationEngine validates the RF configuration and returns an engine.
// rng drives shadow fading; log may be nil for a silent engine.
func NewPropagationEngine(cfg RFConfig, rng *rand.Rand, log logging.Logger) (*PropagationEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	return &PropagationEngine{cfg: cfg, rng: rng, log: log}, nil
}

// FrequencyHz returns the engine's configured carrier frequency.
func (e *PropagationEngine) FrequencyHz() float64 { return e.cfg.FrequencyHz }

// TxPowerDBm returns the configured transmit power.
func (e *PropagationEngine) TxPowerDBm() float64 { return e.cfg.TxPowerDBm }

// FreeSpacePathLoss returns the free-space loss in dB for a link of the
// given distance (metres) at the given frequency (MHz):
//
//	FSPL = 20 log10(d) + 20 log10(f) - 27.56
//
// Invalid inputs are floored to 1 m and 2400 MHz; a non-finite result is
// replaced by 70 dB.
func (e *PropagationEngine) FreeSpacePathLoss(distanceM, freqMHz float64) float64 {
	if !isFinite(distanceM) || distanceM <= 0 {
		distanceM = minDistanceM
	}
	if !isFinite(freqMHz) || freqMHz <= 0 {
		freqMHz = defaultFreqMHz
	}

	fspl := 20*math.Log10(distanceM) + 20*math.Log10(freqMHz) - 27.56
	if !isFinite(fspl) {
		e.warnFSPL.Do(func() {
			e.log.Warn(context.Background(), "non-finite free-space loss, using fallback",
				logging.Any("distance_m", distanceM),
				logging.Any("freq_mhz", freqMHz),
			)
		})
		return fallbackFSPLdB
	}
	return fspl
}

// KnifeEdgeDiffraction approximates the total diffraction loss in dB caused
// by the given obstructions between tx and rx. Each obstruction is treated
// as a single knife edge at its chord midpoint; a hill entirely below the
// interpolated line of sight contributes nothing. Hills with malformed data
// are skipped, not fatal.
func (e *PropagationEngine) KnifeEdgeDiffraction(tx, rx Vec3, obstructions []ObstructionSegment, freqHz float64) float64 {
	if len(obstructions) == 0 {
		return 0
	}
	if !isFinite(freqHz) || freqHz <= 0 {
		freqHz = defaultFreqMHz * 1e6
	}

	totalDist := tx.DistanceTo(rx)
	if totalDist <= 0 {
		totalDist = minDistanceM
	}
	wavelength := speedOfLight / freqHz

	total := 0.0
	for _, obs := range obstructions {
		height := obs.HeightMeters
		if !isFinite(height) {
			height = 0
		}

		mid := obs.Start.Midpoint(obs.End)
		txGround := Point2{X: tx.X, Y: tx.Y}

		// Fractional position of the knife edge along the path, clamped
		// so towers beyond the endpoints still interpolate sanely.
		distToMid := txGround.DistanceTo(mid)
		t := 0.5
		if distToMid > 0 {
			t = clamp(distToMid/totalDist, 0, 1)
		}
		losHeight := tx.Z + t*(rx.Z-tx.Z)

		h := height - losHeight
		if h <= 0 {
			continue // below line of sight
		}

		width := obs.Width()
		if width <= 0 {
			width = 1.0
		}
		widthFactor := math.Log1p(width)

		fresnel := math.Sqrt(math.Abs(wavelength * totalDist / 2))
		if fresnel <= 0 {
			fresnel = 1e-6
		}
		normIntrusion := h / fresnel

		hillLoss := 20 * math.Log10(1+normIntrusion*widthFactor)
		if !isFinite(hillLoss) {
			continue
		}
		total += hillLoss
	}

	if !isFinite(total) {
		return 0
	}
	return total
}

// SegmentLoss computes the loss breakdown for a single hop. The total is
// FSPL plus diffraction, clamped non-negative, with an 80 dB fallback when
// the combination is not finite.
func (e *PropagationEngine) SegmentLoss(from, to Vec3, obstructions []ObstructionSegment, freqHz float64) LossResult {
	distance := from.DistanceTo(to)
	if !isFinite(distance) || distance <= 0 {
		distance = minDistanceM
	}

	fspl := e.FreeSpacePathLoss(distance, freqHz/1e6)
	diffraction := e.KnifeEdgeDiffraction(from, to, obstructions, freqHz)
	if !isFinite(diffraction) {
		diffraction = 0
	}

	total := fspl + diffraction
	if !isFinite(total) || total < 0 {
		e.warnSegment.Do(func() {
			e.log.Warn(context.Background(), "invalid segment loss, using fallback",
				logging.Any("fspl_db", fspl),
				logging.Any("diffraction_db", diffraction),
			)
		})
		total = fallbackSegmentDB
	}

	return LossResult{
		DistanceM:     distance,
		FSPLdB:        fspl,
		DiffractionDB: diffraction,
		TotalDB:       total,
	}
}

// MultihopRelayLoss sums SegmentLoss over the chain tx -> relays... -> rx.
// With zero relays it degenerates to the single direct segment (hop count 1).
// This is the authoritative relay-quality metric for the optimizers.
func (e *PropagationEngine) MultihopRelayLoss(tx Vec3, relays []Vec3, rx Vec3, obstructions []ObstructionSegment, freqHz float64) RelayResult {
	path := make([]Vec3, 0, len(relays)+2)
	path = append(path, tx)
	path = append(path, relays...)
	path = append(path, rx)

	segments := make([]LossResult, 0, len(path)-1)
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		seg := e.SegmentLoss(path[i], path[i+1], obstructions, freqHz)
		segments = append(segments, seg)
		total += seg.TotalDB
	}
	if !isFinite(total) || total < 0 {
		total = fallbackSegmentDB
	}

	return RelayResult{
		Path:     path,
		Segments: segments,
		TotalDB:  total,
		HopCount: len(path) - 1,
	}
}

// AddShadowFading perturbs a power level with zero-mean Gaussian shadow
// fading. A non-finite input or output collapses to 0 dBm.
func (e *PropagationEngine) AddShadowFading(powerDBm float64) float64 {
	if !isFinite(powerDBm) {
		powerDBm = 0
	}
	out := powerDBm
	if e.rng != nil && e.cfg.FadingSigmaDB > 0 {
		out += e.rng.NormFloat64() * e.cfg.FadingSigmaDB
	}
	if !isFinite(out) {
		return 0
	}
	return out
}

// SignalMetricsFor builds the sanitized per-node metrics for a relay chain:
// received power over the direct tx-rx path versus the relayed path, plus
// both path lengths.
func (e *PropagationEngine) SignalMetricsFor(tx, rx Vec3, relays []Vec3, obstructions []ObstructionSegment) SignalMetrics {
	direct := e.SegmentLoss(tx, rx, obstructions, e.cfg.FrequencyHz)
	relay := e.MultihopRelayLoss(tx, relays, rx, obstructions, e.cfg.FrequencyHz)

	relayDist := 0.0
	for _, seg := range relay.Segments {
		relayDist += seg.DistanceM
	}
	if relayDist <= 0 {
		relayDist = minDistanceM
	}

	metrics := SignalMetrics{
		RxPowerDirectDBm: e.cfg.TxPowerDBm - direct.TotalDB,
		RxPowerRelayDBm:  e.cfg.TxPowerDBm - relay.TotalDB,
		DistanceDirectM:  direct.DistanceM,
		DistanceRelayM:   relayDist,
	}
	if !isFinite(metrics.RxPowerDirectDBm) {
		metrics.RxPowerDirectDBm = defaultRxPowerDBm
	}
	if !isFinite(metrics.RxPowerRelayDBm) {
		metrics.RxPowerRelayDBm = defaultRxPowerDBm
	}
	return metrics
}
