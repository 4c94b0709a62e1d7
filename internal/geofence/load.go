package geofence

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type zonesFile struct {
	Zones []Zone `yaml:"zones"`
}

// LoadZones reads zone definitions from a YAML file into r.
func LoadZones(r *Registry, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open zones: %w", err)
	}
	defer f.Close()
	return ParseZones(r, f)
}

func ParseZones(r *Registry, src io.Reader) (int, error) {
	var doc zonesFile
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode zones: %w", err)
	}
	for i, z := range doc.Zones {
		if _, err := r.CreateZone(z); err != nil {
			return i, fmt.Errorf("zone %d (%s): %w", i, z.Name, err)
		}
	}
	return len(doc.Zones), nil
}
