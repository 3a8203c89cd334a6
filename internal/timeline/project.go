package timeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// Canvas is the requested export geometry. Nil on a project means the
// exporter falls back to the first video's own properties.
type Canvas struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// Project is the unit the CLI operates on: a timeline plus its media library
type Project struct {
	Name   string      `json:"name"`
	Canvas *Canvas     `json:"canvas,omitempty"`
	Tracks []Track     `json:"tracks"`
	Media  []MediaItem `json:"media"`
}

// Load reads a project file from disk
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}

	return &p, nil
}

// Save writes the project file to disk
func (p *Project) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// MediaIndex builds a lookup from media id to item
func (p *Project) MediaIndex() map[string]*MediaItem {
	idx := make(map[string]*MediaItem, len(p.Media))
	for i := range p.Media {
		idx[p.Media[i].ID] = &p.Media[i]
	}
	return idx
}
