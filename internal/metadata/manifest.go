package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestVersion is written into every manifest produced by this tool
const ManifestVersion = "1"

// Manifest is a list of backup descriptors for one database, either exported
// from msdb history or written by hand
type Manifest struct {
	Version     string                 `json:"version" yaml:"version"`
	Database    string                 `json:"database" yaml:"database"`
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Source      string                 `json:"source,omitempty" yaml:"source,omitempty"`
	Backups     []BackupFileDescriptor `json:"backups" yaml:"backups"`
}

// Format is the on-disk encoding of a manifest
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the encoding from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q (use .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// LoadManifest reads a manifest from a local file
func LoadManifest(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := ParseManifest(data, format)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates manifest bytes
func ParseManifest(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.fillDefaults()
	return &m, nil
}

// Validate checks that the manifest contains at least one well-formed descriptor
func (m *Manifest) Validate() error {
	if len(m.Backups) == 0 {
		return fmt.Errorf("manifest contains no backups")
	}
	for i := range m.Backups {
		if err := m.Backups[i].Validate(); err != nil {
			return fmt.Errorf("backup %d: %w", i, err)
		}
	}
	return nil
}

// descriptors inherit the manifest database when they omit it
func (m *Manifest) fillDefaults() {
	for i := range m.Backups {
		if m.Backups[i].Database == "" {
			m.Backups[i].Database = m.Database
		}
	}
	if m.Database == "" {
		m.Database = m.Backups[0].Database
	}
}

// Save writes the manifest as YAML or JSON depending on the extension of path
func (m *Manifest) Save(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if m.Version == "" {
		m.Version = ManifestVersion
	}

	var data []byte
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(m)
	default:
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}

	return nil
}

// TotalSize sums the device sizes in the manifest
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, b := range m.Backups {
		total += b.SizeBytes
	}
	return total
}

// ListManifests scans a directory for manifest files, newest first.
// Files that fail to parse are skipped.
func ListManifests(dir string) ([]*Manifest, error) {
	var matches []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
		found, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan directory: %w", err)
		}
		matches = append(matches, found...)
	}

	var manifests []*Manifest
	for _, file := range matches {
		m, err := LoadManifest(file)
		if err != nil {
			continue
		}
		manifests = append(manifests, m)
	}

	sort.SliceStable(manifests, func(i, j int) bool {
		return manifests[i].GeneratedAt.After(manifests[j].GeneratedAt)
	})

	return manifests, nil
}
