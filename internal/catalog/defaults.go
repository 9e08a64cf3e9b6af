package catalog

import (
	_ "embed"
	"fmt"

	"github.com/BTreeMap/WorkLog/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Machine is a static machinery entry.
type Machine struct {
	Name        string `yaml:"name"`
	CountsTrips bool   `yaml:"counts_trips"`
}

// Crop is a static crop entry.
type Crop struct {
	Name         string `yaml:"name"`
	RequiresBags bool   `yaml:"requires_bags"`
}

// Defaults is the seed and static content of the catalog.
type Defaults struct {
	Locations  map[models.LocationGroup][]string `yaml:"locations"`
	Activities map[models.Category][]string      `yaml:"activities"`
	Machinery  []Machine                         `yaml:"machinery"`
	Crops      []Crop                            `yaml:"crops"`
	WorkTypes  []string                          `yaml:"work_types"`
}

// LoadDefaults parses the embedded defaults.
func LoadDefaults() (Defaults, error) {
	return ParseDefaults(defaultsYAML)
}

// ParseDefaults parses catalog defaults from YAML.
func ParseDefaults(data []byte) (Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Defaults{}, fmt.Errorf("failed to parse catalog defaults: %w", err)
	}
	for group := range d.Locations {
		if !ValidGroup(models.KindLocation, string(group)) {
			return Defaults{}, fmt.Errorf("%w: location group %q", ErrUnknownGroup, group)
		}
	}
	for cat := range d.Activities {
		if !cat.IsValid() {
			return Defaults{}, fmt.Errorf("%w: activity group %q", ErrUnknownGroup, cat)
		}
	}
	return d, nil
}
