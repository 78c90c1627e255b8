package executor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FixtureTab is one preset tab entry in a fixtures file, letting local
// development and scenario tests (§8 S1-S6) start the fake executor
// with a known tab set instead of an empty one.
type FixtureTab struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// Fixtures is the top-level shape of a fixtures YAML file.
type Fixtures struct {
	Tabs []FixtureTab `yaml:"tabs"`
}

// LoadFixtures reads a fixtures file and returns its parsed contents.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("executor: read fixtures: %w", err)
	}
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixtures{}, fmt.Errorf("executor: parse fixtures: %w", err)
	}
	return fx, nil
}

// NewFakeFromFixtures builds a Fake preloaded with the tabs named in
// path. Tab ids are taken verbatim from the file rather than generated,
// so a fixtures file can describe stable, reproducible scenarios.
func NewFakeFromFixtures(path string) (*Fake, error) {
	fx, err := LoadFixtures(path)
	if err != nil {
		return nil, err
	}
	f := NewFake()
	for _, t := range fx.Tabs {
		if t.ID == "" {
			return nil, fmt.Errorf("executor: fixture tab missing id")
		}
		f.tabs[t.ID] = &fakeTab{id: t.ID, url: t.URL}
	}
	return f, nil
}
