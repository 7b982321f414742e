package episodelog

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderRewardChart writes an HTML line chart of per-episode reward, one
// series per drone, to path. An empty log produces no file.
func (l *Logger) RenderRewardChart(path string) error {
	if len(l.records) == 0 {
		return nil
	}

	byDrone := make(map[int][]Record)
	maxEpisode := 0
	for _, r := range l.records {
		byDrone[r.DroneID] = append(byDrone[r.DroneID], r)
		if r.Episode > maxEpisode {
			maxEpisode = r.Episode
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Episode reward per drone",
			Subtitle: fmt.Sprintf("run %s", l.runID),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)

	episodes := make([]string, 0, maxEpisode)
	for i := 1; i <= maxEpisode; i++ {
		episodes = append(episodes, fmt.Sprintf("%d", i))
	}
	line = line.SetXAxis(episodes)

	droneIDs := make([]int, 0, len(byDrone))
	for id := range byDrone {
		droneIDs = append(droneIDs, id)
	}
	sort.Ints(droneIDs)

	for _, id := range droneIDs {
		rewards := make(map[int]float64, len(byDrone[id]))
		for _, r := range byDrone[id] {
			rewards[r.Episode] = r.Reward
		}
		items := make([]opts.LineData, 0, maxEpisode)
		for i := 1; i <= maxEpisode; i++ {
			items = append(items, opts.LineData{Value: rewards[i]})
		}
		line.AddSeries(fmt.Sprintf("drone %d", id), items)
	}

	page := components.NewPage()
	page.AddCharts(line)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create reward chart: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render reward chart: %w", err)
	}
	return nil
}
