package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/terrain-relay-sim/core"
)

func TestSimCollectorObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	for i := 0; i < 3; i++ {
		c.ObserveTick()
	}
	c.ObserveStep(0, 12.5, 85)
	c.ObserveStep(1, -4.0, 120)
	c.ObserveEpisode(core.EpisodeSummary{
		Episode: 1, DroneID: 0, Reward: 42, Epsilon: 0.25, States: 17, Training: true,
	})
	c.ObserveEpisode(core.EpisodeSummary{
		Episode: 1, DroneID: 1, Reward: -8, Epsilon: 0.25, States: 9, Training: false,
	})

	if got := testutil.ToFloat64(c.Ticks); got != 3 {
		t.Errorf("sim_ticks_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Episodes); got != 2 {
		t.Errorf("sim_episodes_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.StepReward.WithLabelValues("0")); got != 12.5 {
		t.Errorf("sim_step_reward{drone=0} = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(c.EpisodeReward.WithLabelValues("1")); got != -8 {
		t.Errorf("sim_episode_reward{drone=1} = %v, want -8", got)
	}
	if got := testutil.ToFloat64(c.TrainingOn.WithLabelValues("0")); got != 1 {
		t.Errorf("sim_training_enabled{drone=0} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.TrainingOn.WithLabelValues("1")); got != 0 {
		t.Errorf("sim_training_enabled{drone=1} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.StatesLearned.WithLabelValues("0")); got != 17 {
		t.Errorf("sim_q_states_learned{drone=0} = %v, want 17", got)
	}
}

func TestNewSimCollectorTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimCollector: %v", err)
	}
	b, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}

	a.ObserveTick()
	b.ObserveTick()
	if got := testutil.ToFloat64(a.Ticks); got != 2 {
		t.Errorf("shared counter = %v, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	c.ObserveTick()
	c.ObserveStep(0, 1.0, 75)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"sim_ticks_total 1", "sim_relay_loss_db_count 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
