package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"hazard-service/internal/domain/hazard"
)

type file struct {
	Hazards []hazard.CatalogEntry `yaml:"hazards"`
}

// Load reads a YAML hazard catalog from path.
func Load(path string) ([]hazard.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates catalog entries. Types are normalized and swapped
// coordinates are repaired the same way incoming events are.
func Parse(r io.Reader) ([]hazard.CatalogEntry, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Hazards))
	entries := make([]hazard.CatalogEntry, 0, len(doc.Hazards))
	for i, e := range doc.Hazards {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("%w: catalog entry %d has no id", hazard.ErrInvalidInput, i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate catalog id %s", hazard.ErrInvalidInput, e.ID)
		}
		seen[e.ID] = struct{}{}

		e.Type = hazard.NormalizeType(string(e.Type))
		if e.Type == "" {
			return nil, fmt.Errorf("%w: catalog entry %s has no type", hazard.ErrInvalidInput, e.ID)
		}
		if e.Severity < 1 || e.Severity > 5 {
			return nil, fmt.Errorf("%w: catalog entry %s severity %d outside 1-5", hazard.ErrInvalidInput, e.ID, e.Severity)
		}
		loc, _, err := hazard.RepairCoordinates(e.Location.Lat, e.Location.Lng, nil)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", e.ID, err)
		}
		e.Location = loc
		entries = append(entries, e)
	}
	return entries, nil
}
