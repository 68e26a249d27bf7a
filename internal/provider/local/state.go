package local

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// stateVersion is bumped when the state file layout changes.
const stateVersion = 1

// State is the persisted view of everything the local provider has created.
type State struct {
	Version   int                  `yaml:"version"`
	Region    string               `yaml:"region,omitempty"`
	Account   string               `yaml:"account,omitempty"`
	Resources map[string]*Resource `yaml:"resources"`
}

// Resource is one provisioned resource.
type Resource struct {
	Kind  string            `yaml:"kind"`
	Hash  string            `yaml:"hash"`
	Attrs map[string]string `yaml:"attrs,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Version: stateVersion, Resources: make(map[string]*Resource)}
}

// Load reads a state file. A missing file yields an empty state.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing state %s: %w", path, err)
	}
	if st.Version > stateVersion {
		return nil, fmt.Errorf("state %s has version %d, this build supports %d", path, st.Version, stateVersion)
	}
	if st.Resources == nil {
		st.Resources = make(map[string]*Resource)
	}
	st.Version = stateVersion
	return &st, nil
}

// Save writes the state file atomically.
func Save(path string, st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Clone returns a deep copy, used for dry runs.
func (s *State) Clone() *State {
	out := &State{
		Version:   s.Version,
		Region:    s.Region,
		Account:   s.Account,
		Resources: make(map[string]*Resource, len(s.Resources)),
	}
	for id, r := range s.Resources {
		attrs := make(map[string]string, len(r.Attrs))
		for k, v := range r.Attrs {
			attrs[k] = v
		}
		out.Resources[id] = &Resource{Kind: r.Kind, Hash: r.Hash, Attrs: attrs}
	}
	return out
}

// Names returns the resource keys in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.Resources))
	for name := range s.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CountKind returns how many resources of kind exist.
func (s *State) CountKind(kind string) int {
	n := 0
	for _, r := range s.Resources {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
