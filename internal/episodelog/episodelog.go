// Package episodelog records per-episode training statistics to an
// append-only JSON file and renders reward charts. It is a consumer of the
// core's episode summaries; the core itself performs no file I/O beyond
// policy persistence.
package episodelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/terrain-relay-sim/core"
	"github.com/signalsfoundry/terrain-relay-sim/internal/logging"
)

// Record is one persisted episode entry.
type Record struct {
	Episode     int     `json:"episode"`
	DroneID     int     `json:"drone_id"`
	Reward      float64 `json:"reward"`
	Exploration float64 `json:"exploration"`
	States      int     `json:"states"`
	RunID       string  `json:"run_id"`
	Timestamp   string  `json:"timestamp"`
}

// Summary aggregates statistics across all recorded episodes.
type Summary struct {
	TotalEpisodes  int
	TotalReward    float64
	AvgReward      float64
	MaxReward      float64
	MinReward      float64
	AvgExploration float64
}

// Logger persists episode records. Open loads any existing history so
// repeated runs append rather than overwrite; a corrupt file is abandoned
// with a warning and the logger starts fresh.
type Logger struct {
	path    string
	runID   string
	log     logging.Logger
	records []Record
	now     func() time.Time
}

// Open creates (or resumes) an episode log at path.
func Open(path string, log logging.Logger) (*Logger, error) {
	if log == nil {
		log = logging.Noop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create episode log dir: %w", err)
		}
	}

	l := &Logger{
		path:  path,
		runID: uuid.NewString(),
		log:   log,
		now:   time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fresh log
	case err != nil:
		return nil, fmt.Errorf("open episode log: %w", err)
	default:
		if err := json.Unmarshal(data, &l.records); err != nil {
			log.Warn(context.Background(), "episode log unreadable, starting fresh",
				logging.String("path", path),
				logging.String("error", err.Error()),
			)
			l.records = nil
		}
	}
	return l, nil
}

// RunID returns the identifier stamped on every record written by this
// logger instance.
func (l *Logger) RunID() string { return l.runID }

// Records returns a copy of all loaded and appended records.
func (l *Logger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// LogEpisode appends one record per summary and persists the file.
func (l *Logger) LogEpisode(summaries []core.EpisodeSummary) error {
	ts := l.now().UTC().Format(time.RFC3339)
	for _, s := range summaries {
		l.records = append(l.records, Record{
			Episode:     s.Episode,
			DroneID:     s.DroneID,
			Reward:      s.Reward,
			Exploration: s.Epsilon,
			States:      s.States,
			RunID:       l.runID,
			Timestamp:   ts,
		})
	}
	return l.flush()
}

func (l *Logger) flush() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal episode log: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write episode log: %w", err)
	}
	return nil
}

// DroneHistory returns all records for one drone, in insertion order.
func (l *Logger) DroneHistory(droneID int) []Record {
	var out []Record
	for _, r := range l.records {
		if r.DroneID == droneID {
			out = append(out, r)
		}
	}
	return out
}

// Recent returns the most recent n records.
func (l *Logger) Recent(n int) []Record {
	if n <= 0 || len(l.records) == 0 {
		return nil
	}
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Summarize computes aggregate statistics over all records. An empty log
// yields the zero Summary.
func (l *Logger) Summarize() Summary {
	if len(l.records) == 0 {
		return Summary{}
	}

	s := Summary{
		TotalEpisodes: len(l.records),
		MaxReward:     l.records[0].Reward,
		MinReward:     l.records[0].Reward,
	}
	explorationSum := 0.0
	for _, r := range l.records {
		s.TotalReward += r.Reward
		explorationSum += r.Exploration
		if r.Reward > s.MaxReward {
			s.MaxReward = r.Reward
		}
		if r.Reward < s.MinReward {
			s.MinReward = r.Reward
		}
	}
	s.AvgReward = s.TotalReward / float64(len(l.records))
	s.AvgExploration = explorationSum / float64(len(l.records))
	return s
}
