package episodelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/terrain-relay-sim/core"
)

func summariesForEpisode(episode int, rewards ...float64) []core.EpisodeSummary {
	out := make([]core.EpisodeSummary, 0, len(rewards))
	for i, r := range rewards {
		out = append(out, core.EpisodeSummary{
			Episode: episode,
			DroneID: i,
			Reward:  r,
			Epsilon: 0.3,
			States:  10 * (i + 1),
		})
	}
	return out
}

func TestLogEpisodeAppendsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.json")

	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	if err := l.LogEpisode(summariesForEpisode(1, 12.5, -3.0)); err != nil {
		t.Fatalf("LogEpisode: %v", err)
	}
	if err := l.LogEpisode(summariesForEpisode(2, 20.0, 5.0)); err != nil {
		t.Fatalf("LogEpisode: %v", err)
	}

	records := l.Records()
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	first := records[0]
	if first.Episode != 1 || first.DroneID != 0 || first.Reward != 12.5 {
		t.Errorf("first record = %+v", first)
	}
	if first.RunID != l.RunID() {
		t.Errorf("record run id %q, want %q", first.RunID, l.RunID())
	}
	if first.Timestamp != "2025-06-01T09:00:00Z" {
		t.Errorf("timestamp = %q", first.Timestamp)
	}

	// A second logger resumes the history with a distinct run id.
	resumed, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(resumed.Records()); got != 4 {
		t.Fatalf("resumed with %d records, want 4", got)
	}
	if resumed.RunID() == l.RunID() {
		t.Error("resumed logger reused the previous run id")
	}
	if err := resumed.LogEpisode(summariesForEpisode(3, 1.0)); err != nil {
		t.Fatalf("LogEpisode after resume: %v", err)
	}
	if got := len(resumed.Records()); got != 5 {
		t.Errorf("after resume append: %d records, want 5", got)
	}
}

func TestOpenCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open on corrupt file: %v", err)
	}
	if got := len(l.Records()); got != 0 {
		t.Errorf("corrupt file yielded %d records, want 0", got)
	}

	// Logging over the corrupt file replaces it with valid JSON.
	if err := l.LogEpisode(summariesForEpisode(1, 7.0)); err != nil {
		t.Fatalf("LogEpisode: %v", err)
	}
	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(reopened.Records()); got != 1 {
		t.Errorf("reopened with %d records, want 1", got)
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "episodes.json")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.LogEpisode(summariesForEpisode(1, 1.0)); err != nil {
		t.Fatalf("LogEpisode: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestDroneHistoryAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.json")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	for ep := 1; ep <= 3; ep++ {
		if err := l.LogEpisode(summariesForEpisode(ep, float64(ep), float64(ep*10))); err != nil {
			t.Fatal(err)
		}
	}

	hist := l.DroneHistory(1)
	if len(hist) != 3 {
		t.Fatalf("drone 1 history has %d records, want 3", len(hist))
	}
	for i, r := range hist {
		if r.DroneID != 1 || r.Episode != i+1 {
			t.Errorf("history[%d] = %+v", i, r)
		}
	}
	if got := l.DroneHistory(99); got != nil {
		t.Errorf("unknown drone history = %v, want nil", got)
	}

	recent := l.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) has %d records", len(recent))
	}
	if recent[1].Episode != 3 || recent[1].DroneID != 1 {
		t.Errorf("last recent record = %+v", recent[1])
	}
	if got := l.Recent(100); len(got) != 6 {
		t.Errorf("Recent(100) = %d records, want all 6", len(got))
	}
	if got := l.Recent(0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
}

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.json")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := l.Summarize(); got != (Summary{}) {
		t.Errorf("empty Summarize = %+v, want zero value", got)
	}

	if err := l.LogEpisode(summariesForEpisode(1, 10, -20)); err != nil {
		t.Fatal(err)
	}
	if err := l.LogEpisode(summariesForEpisode(2, 30, 40)); err != nil {
		t.Fatal(err)
	}

	s := l.Summarize()
	if s.TotalEpisodes != 4 {
		t.Errorf("TotalEpisodes = %d, want 4", s.TotalEpisodes)
	}
	if s.TotalReward != 60 {
		t.Errorf("TotalReward = %v, want 60", s.TotalReward)
	}
	if s.AvgReward != 15 {
		t.Errorf("AvgReward = %v, want 15", s.AvgReward)
	}
	if s.MaxReward != 40 || s.MinReward != -20 {
		t.Errorf("extremes = %v/%v, want 40/-20", s.MaxReward, s.MinReward)
	}
	if s.AvgExploration != 0.3 {
		t.Errorf("AvgExploration = %v, want 0.3", s.AvgExploration)
	}
}

func TestRenderRewardChart(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "episodes.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	chartPath := filepath.Join(dir, "rewards.html")

	// Empty log renders nothing.
	if err := l.RenderRewardChart(chartPath); err != nil {
		t.Fatalf("RenderRewardChart on empty log: %v", err)
	}
	if _, err := os.Stat(chartPath); !os.IsNotExist(err) {
		t.Error("empty log produced a chart file")
	}

	for ep := 1; ep <= 3; ep++ {
		if err := l.LogEpisode(summariesForEpisode(ep, float64(ep), float64(-ep))); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.RenderRewardChart(chartPath); err != nil {
		t.Fatalf("RenderRewardChart: %v", err)
	}

	data, err := os.ReadFile(chartPath)
	if err != nil {
		t.Fatalf("chart file: %v", err)
	}
	html := string(data)
	for _, want := range []string{"drone 0", "drone 1", l.RunID()} {
		if !strings.Contains(html, want) {
			t.Errorf("chart missing %q", want)
		}
	}
}
