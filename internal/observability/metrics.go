package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/terrain-relay-sim/core"
	"github.com/signalsfoundry/terrain-relay-sim/internal/logging"
)

// SimCollector bundles Prometheus metrics for the simulation loop and
// implements core.FleetMetrics so the fleet controller can feed it without
// depending on this package.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Ticks    prometheus.Counter
	Episodes prometheus.Counter

	StepReward    *prometheus.GaugeVec
	EpisodeReward *prometheus.GaugeVec
	Epsilon       *prometheus.GaugeVec
	StatesLearned *prometheus.GaugeVec
	TrainingOn    *prometheus.GaugeVec

	RelayLossDB prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total number of simulation ticks executed.",
	}))
	if err != nil {
		return nil, err
	}
	episodes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_episodes_total",
		Help: "Total number of completed training episodes across the fleet.",
	}))
	if err != nil {
		return nil, err
	}

	stepReward, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_step_reward",
		Help: "Most recent per-step reward, labeled by drone.",
	}, []string{"drone"}))
	if err != nil {
		return nil, err
	}
	episodeReward, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_episode_reward",
		Help: "Cumulative reward of the last completed episode, labeled by drone.",
	}, []string{"drone"}))
	if err != nil {
		return nil, err
	}
	epsilon, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_epsilon",
		Help: "Current exploration rate, labeled by drone.",
	}, []string{"drone"}))
	if err != nil {
		return nil, err
	}
	states, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_q_states_learned",
		Help: "Number of distinct Q-table states visited, labeled by drone.",
	}, []string{"drone"}))
	if err != nil {
		return nil, err
	}
	training, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_training_enabled",
		Help: "1 while a drone's training is enabled, 0 once frozen.",
	}, []string{"drone"}))
	if err != nil {
		return nil, err
	}

	relayLoss, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_relay_loss_db",
		Help:    "Observed relayed path loss in dB.",
		Buckets: []float64{40, 50, 60, 70, 80, 90, 100, 120, 150},
	}))
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:      gatherer,
		Ticks:         ticks,
		Episodes:      episodes,
		StepReward:    stepReward,
		EpisodeReward: episodeReward,
		Epsilon:       epsilon,
		StatesLearned: states,
		TrainingOn:    training,
		RelayLossDB:   relayLoss,
	}, nil
}

// ObserveTick implements core.FleetMetrics.
func (c *SimCollector) ObserveTick() {
	c.Ticks.Inc()
}

// ObserveStep implements core.FleetMetrics.
func (c *SimCollector) ObserveStep(droneID int, reward, relayLossDB float64) {
	label := strconv.Itoa(droneID)
	c.StepReward.WithLabelValues(label).Set(reward)
	c.RelayLossDB.Observe(relayLossDB)
}

// ObserveEpisode implements core.FleetMetrics.
func (c *SimCollector) ObserveEpisode(summary core.EpisodeSummary) {
	label := strconv.Itoa(summary.DroneID)
	c.Episodes.Inc()
	c.EpisodeReward.WithLabelValues(label).Set(summary.Reward)
	c.Epsilon.WithLabelValues(label).Set(summary.Epsilon)
	c.StatesLearned.WithLabelValues(label).Set(float64(summary.States))
	if summary.Training {
		c.TrainingOn.WithLabelValues(label).Set(1)
	} else {
		c.TrainingOn.WithLabelValues(label).Set(0)
	}
}

// Handler returns an HTTP handler exposing the collector's metrics.
func (c *SimCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ServeMetrics starts a /metrics HTTP server on addr in a goroutine and
// returns the server so callers can shut it down.
func ServeMetrics(addr string, c *SimCollector, log logging.Logger) *http.Server {
	if log == nil {
		log = logging.Noop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(context.Background(), "metrics server failed",
				logging.String("addr", addr),
				logging.String("error", err.Error()),
			)
		}
	}()
	return srv
}

// register* helpers tolerate re-registration so repeated construction in
// tests reuses the existing collectors.

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return h, nil
}
