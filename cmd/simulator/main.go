package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/logrusorgru/aurora"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/terrain-relay-sim/core"
	"github.com/signalsfoundry/terrain-relay-sim/internal/episodelog"
	"github.com/signalsfoundry/terrain-relay-sim/internal/logging"
	"github.com/signalsfoundry/terrain-relay-sim/internal/observability"
	"github.com/signalsfoundry/terrain-relay-sim/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a JSON scenario file (empty = defaults)")
	duration := flag.Duration("duration", 0, "total simulation duration (0 = run until interrupted)")
	tick := flag.Duration("tick", 16670*time.Microsecond, "tick interval (default ~60 Hz)")
	accelerated := flag.Bool("accelerated", false, "run as fast as possible instead of real-time")
	seed := flag.Int64("seed", 0, "random seed (0 = derive from current time)")
	policyDir := flag.String("policy-dir", "policies", "directory for per-drone policy files")
	episodeLogPath := flag.String("episode-log", "logs/episode_stats.json", "path to the episode statistics log")
	chartPath := flag.String("chart", "logs/rewards.html", "path for the episode reward chart (empty = disabled)")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	resume := flag.Bool("resume", false, "load previously saved policies before starting")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	scenario := core.DefaultSimScenario()
	if *scenarioPath != "" {
		f, err := os.Open(*scenarioPath)
		if err != nil {
			log.Error(ctx, "failed to open scenario", logging.String("path", *scenarioPath), logging.String("error", err.Error()))
			os.Exit(1)
		}
		loaded, err := core.LoadSimScenario(f)
		f.Close()
		if err != nil {
			log.Error(ctx, "failed to load scenario", logging.String("error", err.Error()))
			os.Exit(1)
		}
		scenario = *loaded
	}

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := observability.ServeMetrics(*metricsAddr, collector, log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	tracer := otel.Tracer("terrain-relay-sim/simulator")

	terrain, err := core.GenerateTerrain(scenario.Terrain, rng)
	if err != nil {
		log.Error(ctx, "terrain generation failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info(ctx, "terrain generated",
		logging.Int("hills", len(terrain.Hills())),
		logging.Any("avg_height_m", terrain.Info().AvgHeight),
	)

	engine, err := core.NewPropagationEngine(scenario.RF, rng, log)
	if err != nil {
		log.Error(ctx, "propagation engine setup failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := core.NewFilePolicyStore(*policyDir)
	if err != nil {
		log.Error(ctx, "policy store setup failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	fleet, err := core.NewFleetController(
		scenario.Fleet,
		scenario.Optimizer,
		scenario.Bounds,
		scenario.Heights,
		scenario.Transmitter,
		scenario.Receiver,
		engine,
		terrain,
		rng,
		core.WithPolicyStore(store),
		core.WithFleetLogger(log),
		core.WithFleetMetrics(collector),
	)
	if err != nil {
		log.Error(ctx, "fleet setup failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if *resume {
		fleet.LoadAll(ctx)
	}

	epLog, err := episodelog.Open(*episodeLogPath, log)
	if err != nil {
		log.Error(ctx, "episode log setup failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), *tick, mode)

	// One span per training episode keeps traces coarse at 60 Hz.
	var episodeSpan trace.Span
	_, episodeSpan = tracer.Start(ctx, "episode",
		trace.WithAttributes(attribute.Int("episode", fleet.Episode()+1)))

	tc.AddListener(func(time.Time) {
		summaries := fleet.Tick(ctx)
		if summaries == nil {
			return
		}

		episodeSpan.SetAttributes(attribute.Int("drones", len(summaries)))
		episodeSpan.End()
		_, episodeSpan = tracer.Start(ctx, "episode",
			trace.WithAttributes(attribute.Int("episode", fleet.Episode()+1)))

		if err := epLog.LogEpisode(summaries); err != nil {
			log.Warn(ctx, "episode log write failed", logging.String("error", err.Error()))
		}
		printEpisode(summaries, fleet.RelayChainLoss())
	})

	log.Info(ctx, "starting simulation",
		logging.Any("seed", *seed),
		logging.Any("tick", tick.String()),
		logging.Int("drones", scenario.Fleet.NumDrones),
	)

	done := tc.Start(*duration)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info(ctx, "stop signal received", logging.String("signal", sig.String()))
		tc.Stop()
		<-done
	case <-done:
	}
	episodeSpan.End()

	// Best-effort shutdown work: save once, log errors, never retry.
	fleet.SaveAll(ctx)
	if *chartPath != "" {
		if err := os.MkdirAll(filepath.Dir(*chartPath), 0o755); err == nil {
			if err := epLog.RenderRewardChart(*chartPath); err != nil {
				log.Warn(ctx, "reward chart render failed", logging.String("error", err.Error()))
			}
		}
	}

	summary := epLog.Summarize()
	if summary.TotalEpisodes > 0 {
		fmt.Printf("%s episodes=%d avg=%.1f max=%.1f min=%.1f\n",
			aurora.Bold("training summary:"),
			summary.TotalEpisodes,
			summary.AvgReward,
			summary.MaxReward,
			summary.MinReward,
		)
	}

	observability.ShutdownWithTimeout(ctx, shutdownTracing, log)
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "metrics server shutdown failed", logging.String("error", err.Error()))
	}
	log.Info(ctx, "simulation complete")
}

// printEpisode writes a colored one-line summary per drone plus the current
// relay-chain loss.
func printEpisode(summaries []core.EpisodeSummary, chain core.RelayResult) {
	for _, s := range summaries {
		reward := aurora.Red(fmt.Sprintf("%8.1f", s.Reward))
		if s.Reward >= 0 {
			reward = aurora.Green(fmt.Sprintf("%8.1f", s.Reward))
		}
		state := aurora.Cyan("training")
		if !s.Training {
			state = aurora.Yellow("frozen")
		}
		fmt.Printf("episode %3d drone %d reward=%s eps=%.3f states=%4d %s\n",
			s.Episode, s.DroneID, reward, s.Epsilon, s.States, state)
	}
	fmt.Printf("  relay chain: hops=%d total=%.1f dB\n", chain.HopCount, chain.TotalDB)
}
