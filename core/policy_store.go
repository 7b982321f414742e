package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// PolicyStore persists and restores per-node policies. The fleet controller
// drives it at episode boundaries only, never on the per-tick hot path.
type PolicyStore interface {
	Save(droneID int, agent *RelayOptimizer) error
	Load(droneID int, agent *RelayOptimizer) error
}

// FilePolicyStore keeps one JSON policy file per drone under a directory,
// named <prefix>_drone_<id>.json.
type FilePolicyStore struct {
	Dir    string
	Prefix string
}

// NewFilePolicyStore creates the directory if needed and returns a store.
func NewFilePolicyStore(dir string) (*FilePolicyStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create policy dir: %w", err)
	}
	return &FilePolicyStore{Dir: dir, Prefix: "policy"}, nil
}

func (s *FilePolicyStore) path(droneID int) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "policy"
	}
	return filepath.Join(s.Dir, fmt.Sprintf("%s_drone_%d.json", prefix, droneID))
}

// Save writes the agent's policy file for the given drone.
func (s *FilePolicyStore) Save(droneID int, agent *RelayOptimizer) error {
	return agent.SavePolicy(s.path(droneID))
}

// Load restores the agent's policy file for the given drone. A missing file
// is not an error; the agent simply starts fresh.
func (s *FilePolicyStore) Load(droneID int, agent *RelayOptimizer) error {
	path := s.path(droneID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return agent.LoadPolicy(path)
}
