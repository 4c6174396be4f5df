package rangemapper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Manifest describes a logical file that is split across several remote pieces.
type Manifest struct {
	// ChunkSize is the preferred request chunk size for this file (optional).
	ChunkSize int     `yaml:"chunk_size"`
	Pieces    []Piece `yaml:"pieces"`
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return ParseManifest(content)
}

// ParseManifest parses a YAML manifest.
func ParseManifest(content []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if len(manifest.Pieces) == 0 {
		return nil, fmt.Errorf("manifest has no pieces")
	}
	if manifest.ChunkSize < 0 {
		return nil, fmt.Errorf("manifest has negative chunk_size %d", manifest.ChunkSize)
	}
	return &manifest, nil
}

// Mapper returns the sharded Mapper for the manifest and the total logical length.
func (m *Manifest) Mapper() (Mapper, int64, error) {
	return Sharded(m.Pieces)
}
