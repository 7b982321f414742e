package core

import (
	"math"
	"math/rand"
	"testing"
)

func newTestEngine(t *testing.T) *PropagationEngine {
	t.Helper()
	engine, err := NewPropagationEngine(DefaultRFConfig(), rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("NewPropagationEngine: %v", err)
	}
	return engine
}

func TestFreeSpacePathLossReference(t *testing.T) {
	engine := newTestEngine(t)

	// 20*log10(1) + 20*log10(2400) - 27.56
	got := engine.FreeSpacePathLoss(1.0, 2400.0)
	want := 20*math.Log10(2400) - 27.56
	if math.Abs(got-want) > 0.01 {
		t.Errorf("FSPL(1m, 2400MHz) = %.4f, want %.4f", got, want)
	}
}

func TestFreeSpacePathLossMonotonic(t *testing.T) {
	engine := newTestEngine(t)

	prev := engine.FreeSpacePathLoss(1, 2400)
	for _, d := range []float64{2, 10, 100, 1000, 1e6} {
		cur := engine.FreeSpacePathLoss(d, 2400)
		if cur <= prev {
			t.Errorf("FSPL not increasing in distance at d=%v: %v <= %v", d, cur, prev)
		}
		prev = cur
	}

	prev = engine.FreeSpacePathLoss(100, 1)
	for _, f := range []float64{10, 900, 2400, 5800, 60000} {
		cur := engine.FreeSpacePathLoss(100, f)
		if cur <= prev {
			t.Errorf("FSPL not increasing in frequency at f=%v: %v <= %v", f, cur, prev)
		}
		prev = cur
	}
}

func TestFreeSpacePathLossDegenerateInputs(t *testing.T) {
	engine := newTestEngine(t)

	// Invalid distance and frequency floor to 1 m and 2400 MHz.
	want := engine.FreeSpacePathLoss(1, 2400)
	for _, tc := range []struct {
		name string
		d, f float64
	}{
		{"zero distance", 0, 2400},
		{"negative distance", -10, 2400},
		{"nan distance", math.NaN(), 2400},
		{"zero frequency", 1, 0},
		{"inf frequency", 1, math.Inf(1)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.FreeSpacePathLoss(tc.d, tc.f)
			if got != want {
				t.Errorf("FSPL(%v, %v) = %v, want floored value %v", tc.d, tc.f, got, want)
			}
		})
	}
}

func TestKnifeEdgeDiffractionBelowLineOfSight(t *testing.T) {
	engine := newTestEngine(t)

	tx := Vec3{X: 0, Y: 0, Z: 100}
	rx := Vec3{X: 1000, Y: 0, Z: 100}
	obstructions := []ObstructionSegment{{
		HillID:       2,
		Start:        Point2{X: 490, Y: -5},
		End:          Point2{X: 510, Y: 5},
		HeightMeters: 50, // well below the 100 m sight line
	}}

	if got := engine.KnifeEdgeDiffraction(tx, rx, obstructions, 2.4e9); got != 0 {
		t.Errorf("diffraction below LOS = %v, want 0", got)
	}
}

func TestKnifeEdgeDiffractionIntrusionAddsLoss(t *testing.T) {
	engine := newTestEngine(t)

	tx := Vec3{X: 0, Y: 0, Z: 20}
	rx := Vec3{X: 1000, Y: 0, Z: 20}
	obstructions := []ObstructionSegment{{
		HillID:       2,
		Start:        Point2{X: 480, Y: 0},
		End:          Point2{X: 520, Y: 0},
		HeightMeters: 80,
	}}

	got := engine.KnifeEdgeDiffraction(tx, rx, obstructions, 2.4e9)
	if got <= 0 {
		t.Fatalf("diffraction with intruding hill = %v, want > 0", got)
	}

	// A taller hill intrudes further and must cost at least as much.
	obstructions[0].HeightMeters = 160
	taller := engine.KnifeEdgeDiffraction(tx, rx, obstructions, 2.4e9)
	if taller <= got {
		t.Errorf("taller hill loss %v <= shorter hill loss %v", taller, got)
	}
}

func TestKnifeEdgeDiffractionSkipsMalformedHill(t *testing.T) {
	engine := newTestEngine(t)

	tx := Vec3{X: 0, Y: 0, Z: 20}
	rx := Vec3{X: 1000, Y: 0, Z: 20}

	good := ObstructionSegment{
		HillID:       2,
		Start:        Point2{X: 480, Y: 0},
		End:          Point2{X: 520, Y: 0},
		HeightMeters: 80,
	}
	bad := ObstructionSegment{
		HillID:       3,
		Start:        Point2{X: 200, Y: 0},
		End:          Point2{X: 220, Y: 0},
		HeightMeters: math.NaN(),
	}

	withBad := engine.KnifeEdgeDiffraction(tx, rx, []ObstructionSegment{good, bad}, 2.4e9)
	onlyGood := engine.KnifeEdgeDiffraction(tx, rx, []ObstructionSegment{good}, 2.4e9)
	if withBad != onlyGood {
		t.Errorf("malformed hill changed the total: %v != %v", withBad, onlyGood)
	}
}

func TestKnifeEdgeDiffractionNoObstructions(t *testing.T) {
	engine := newTestEngine(t)
	if got := engine.KnifeEdgeDiffraction(Vec3{}, Vec3{X: 10}, nil, 2.4e9); got != 0 {
		t.Errorf("diffraction with no obstructions = %v, want 0", got)
	}
}

func TestSegmentLossComposition(t *testing.T) {
	engine := newTestEngine(t)

	from := Vec3{X: 0, Y: 0, Z: 50}
	to := Vec3{X: 300, Y: 400, Z: 50}
	res := engine.SegmentLoss(from, to, nil, 2.4e9)

	if res.DistanceM != 500 {
		t.Errorf("DistanceM = %v, want 500", res.DistanceM)
	}
	if res.DiffractionDB != 0 {
		t.Errorf("DiffractionDB = %v, want 0 (no obstructions)", res.DiffractionDB)
	}
	wantFSPL := engine.FreeSpacePathLoss(500, 2400)
	if res.FSPLdB != wantFSPL {
		t.Errorf("FSPLdB = %v, want %v", res.FSPLdB, wantFSPL)
	}
	if res.TotalDB != res.FSPLdB+res.DiffractionDB {
		t.Errorf("TotalDB = %v, want fspl+diffraction = %v", res.TotalDB, res.FSPLdB+res.DiffractionDB)
	}
}

func TestSegmentLossCoincidentPoints(t *testing.T) {
	engine := newTestEngine(t)

	p := Vec3{X: 10, Y: 10, Z: 10}
	res := engine.SegmentLoss(p, p, nil, 2.4e9)
	if res.DistanceM != minDistanceM {
		t.Errorf("coincident points DistanceM = %v, want %v", res.DistanceM, minDistanceM)
	}
	if !isFinite(res.TotalDB) || res.TotalDB < 0 {
		t.Errorf("coincident points TotalDB = %v, want finite non-negative", res.TotalDB)
	}
}

func TestMultihopZeroRelaysEqualsDirectSegment(t *testing.T) {
	engine := newTestEngine(t)

	tx := Vec3{X: 35, Y: 35, Z: 40}
	rx := Vec3{X: 765, Y: 565, Z: 60}

	direct := engine.SegmentLoss(tx, rx, nil, 2.4e9)
	relay := engine.MultihopRelayLoss(tx, nil, rx, nil, 2.4e9)

	if relay.HopCount != 1 {
		t.Fatalf("HopCount = %d, want 1", relay.HopCount)
	}
	if len(relay.Segments) != 1 {
		t.Fatalf("len(Segments) = %d, want 1", len(relay.Segments))
	}
	if relay.Segments[0] != direct {
		t.Errorf("segment = %+v, want %+v", relay.Segments[0], direct)
	}
	if relay.TotalDB != direct.TotalDB {
		t.Errorf("TotalDB = %v, want %v", relay.TotalDB, direct.TotalDB)
	}
}

func TestMultihopRelayLossSumsSegments(t *testing.T) {
	engine := newTestEngine(t)

	tx := Vec3{X: 0, Y: 0, Z: 40}
	rx := Vec3{X: 800, Y: 600, Z: 40}
	relays := []Vec3{
		{X: 200, Y: 150, Z: 80},
		{X: 400, Y: 300, Z: 90},
		{X: 600, Y: 450, Z: 80},
	}

	res := engine.MultihopRelayLoss(tx, relays, rx, nil, 2.4e9)
	if res.HopCount != 4 {
		t.Fatalf("HopCount = %d, want 4", res.HopCount)
	}
	if len(res.Path) != 5 {
		t.Fatalf("len(Path) = %d, want 5", len(res.Path))
	}
	if res.Path[0] != tx || res.Path[4] != rx {
		t.Errorf("Path endpoints = %+v, %+v; want tx, rx", res.Path[0], res.Path[4])
	}

	sum := 0.0
	for _, seg := range res.Segments {
		sum += seg.TotalDB
	}
	if math.Abs(res.TotalDB-sum) > 1e-9 {
		t.Errorf("TotalDB = %v, want segment sum %v", res.TotalDB, sum)
	}
}

func TestAddShadowFading(t *testing.T) {
	cfg := DefaultRFConfig()
	engine, err := NewPropagationEngine(cfg, rand.New(rand.NewSource(7)), nil)
	if err != nil {
		t.Fatalf("NewPropagationEngine: %v", err)
	}

	faded := engine.AddShadowFading(-60)
	if !isFinite(faded) {
		t.Fatalf("faded power not finite: %v", faded)
	}
	// Gaussian with sigma 2: a 10-sigma excursion means something is wrong.
	if math.Abs(faded-(-60)) > 10*cfg.FadingSigmaDB {
		t.Errorf("fading excursion too large: %v", faded)
	}

	if got := engine.AddShadowFading(math.NaN()); !isFinite(got) {
		t.Errorf("NaN input produced non-finite output: %v", got)
	}
}

func TestSignalMetricsForFinite(t *testing.T) {
	engine := newTestEngine(t)

	tx := Vec3{X: 35, Y: 35, Z: 40}
	rx := Vec3{X: 765, Y: 565, Z: 60}
	metrics := engine.SignalMetricsFor(tx, rx, []Vec3{{X: 400, Y: 300, Z: 100}}, nil)

	for name, v := range map[string]float64{
		"RxPowerDirectDBm": metrics.RxPowerDirectDBm,
		"RxPowerRelayDBm":  metrics.RxPowerRelayDBm,
		"DistanceDirectM":  metrics.DistanceDirectM,
		"DistanceRelayM":   metrics.DistanceRelayM,
	} {
		if !isFinite(v) {
			t.Errorf("%s = %v, want finite", name, v)
		}
	}
	if metrics.DistanceRelayM < metrics.DistanceDirectM {
		t.Errorf("relay path %v shorter than direct %v", metrics.DistanceRelayM, metrics.DistanceDirectM)
	}
}

func TestNewPropagationEngineRejectsBadConfig(t *testing.T) {
	cfg := DefaultRFConfig()
	cfg.FrequencyHz = -1
	if _, err := NewPropagationEngine(cfg, rand.New(rand.NewSource(1)), nil); err == nil {
		t.Fatal("expected configuration error for negative frequency")
	}
}
