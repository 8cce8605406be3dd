package relationships

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DesiredAsset is one entry of a desired-state file.
type DesiredAsset struct {
	ID       string `yaml:"id"`
	Settings `yaml:",inline"`
}

// DesiredFile is the on-disk form of a desired asset set:
//
//	assets:
//	  - id: docs/a.md
//	    type: reference
//	    context: Background reading
//	  - id: package.json
//	    external: true
type DesiredFile struct {
	Assets []DesiredAsset `yaml:"assets"`
}

// LoadDesired reads a desired-state file and returns the ordered asset ids
// with their settings.
func LoadDesired(path string) ([]string, map[string]Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read desired assets: %w", err)
	}
	return ParseDesired(data)
}

// ParseDesired decodes a desired-state document.
func ParseDesired(data []byte) ([]string, map[string]Settings, error) {
	var f DesiredFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse desired assets: %w", err)
	}
	ids := make([]string, 0, len(f.Assets))
	settings := make(map[string]Settings, len(f.Assets))
	for i, a := range f.Assets {
		if a.ID == "" {
			return nil, nil, fmt.Errorf("asset %d: id is required", i)
		}
		ids = append(ids, a.ID)
		settings[a.ID] = a.Settings
	}
	return ids, settings, nil
}
