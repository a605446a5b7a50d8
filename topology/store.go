package topology

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// TopologyFileName is the name of the persisted topology document inside
// the cluster config directory.
const TopologyFileName = "cluster.json"

type document struct {
	Settings    Settings          `json:"settings"`
	Primary     *NodeDescriptor   `json:"primary"`
	Secondaries []*NodeDescriptor `json:"secondaries"`
}

// DefaultPath returns the topology document path for the given settings.
func DefaultPath(settings Settings) string {
	return filepath.Join(settings.ConfigDir, TopologyFileName)
}

// Save writes the topology document to path. Every descriptor field
// round-trips losslessly through Save and Load.
func (t *Topology) Save(path string) error {
	t.mu.RLock()
	doc := document{
		Settings:    t.settings,
		Primary:     t.primary,
		Secondaries: t.secondaries,
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "failed to encode topology")
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	// write-then-rename so a crash mid-write cannot corrupt the document
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write topology file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "failed to replace topology file")
	}
	return nil
}

// Load reads a topology document previously written by Save and validates
// its invariants.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read topology file")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode topology file")
	}

	t := &Topology{
		settings:    doc.Settings,
		primary:     doc.Primary,
		secondaries: doc.Secondaries,
	}
	if err := t.Validate(); err != nil {
		return nil, errors.Wrap(err, "topology file failed validation")
	}
	return t, nil
}
