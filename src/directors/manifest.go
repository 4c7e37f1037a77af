package directors

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes what one load writes into a project
type Manifest struct {
	// Project names an existing project to append to, by accession or id
	Project string `yaml:"project"`
	// Accession forces the code of a new project
	Accession string `yaml:"accession"`

	Metadata   map[string]interface{} `yaml:"metadata"`
	Topology   map[string]interface{} `yaml:"topology"`
	References []ReferenceEntry        `yaml:"references"`
	Files      []FileEntry             `yaml:"files"`
	Analyses   []AnalysisEntry         `yaml:"analyses"`
	MDs        []MDEntry               `yaml:"mds"`

	// Dir is where relative paths are resolved from
	Dir string `yaml:"-"`
}

type MDEntry struct {
	Name     string                 `yaml:"name"`
	Metadata map[string]interface{} `yaml:"metadata"`
	Files    []FileEntry            `yaml:"files"`
	Analyses []AnalysisEntry        `yaml:"analyses"`
}

type FileEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// AnalysisEntry carries its value inline or in a YAML/JSON file
type AnalysisEntry struct {
	Name  string      `yaml:"name"`
	Path  string      `yaml:"path"`
	Value interface{} `yaml:"value"`
}

// ReferenceEntry is one shared reference record, Kind being a reference collection key
type ReferenceEntry struct {
	Kind   string                 `yaml:"kind"`
	Record map[string]interface{} `yaml:"record"`
}

// LoadManifest reads and validates a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	manifest.Dir = filepath.Dir(path)
	return manifest, nil
}

// ParseManifest decodes and validates manifest content
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := manifest.validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (m *Manifest) validate() error {
	if m.Project != "" && m.Accession != "" {
		return fmt.Errorf("project and accession are mutually exclusive")
	}
	for _, ref := range m.References {
		if ref.Kind == "" || len(ref.Record) == 0 {
			return fmt.Errorf("every reference needs a kind and a record")
		}
	}
	if err := validateData("project", m.Files, m.Analyses); err != nil {
		return err
	}

	names := make(map[string]bool, len(m.MDs))
	for i, md := range m.MDs {
		if md.Name == "" {
			return fmt.Errorf("md %d has no name", i+1)
		}
		if names[md.Name] {
			return fmt.Errorf("md %s is listed twice", md.Name)
		}
		names[md.Name] = true
		if err := validateData("md "+md.Name, md.Files, md.Analyses); err != nil {
			return err
		}
	}
	return nil
}

func validateData(scope string, files []FileEntry, analyses []AnalysisEntry) error {
	seen := make(map[string]bool)
	for _, file := range files {
		if file.Path == "" {
			return fmt.Errorf("%s: file without path", scope)
		}
		name := file.FileName()
		if seen[name] {
			return fmt.Errorf("%s: file %s is listed twice", scope, name)
		}
		seen[name] = true
	}

	seen = make(map[string]bool)
	for _, analysis := range analyses {
		if analysis.Name == "" {
			return fmt.Errorf("%s: analysis without name", scope)
		}
		if analysis.Path == "" && analysis.Value == nil {
			return fmt.Errorf("%s: analysis %s has neither path nor value", scope, analysis.Name)
		}
		if seen[analysis.Name] {
			return fmt.Errorf("%s: analysis %s is listed twice", scope, analysis.Name)
		}
		seen[analysis.Name] = true
	}
	return nil
}

// FileName is the stored name, the base name of the path unless given
func (f FileEntry) FileName() string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

func (m *Manifest) resolve(path string) string {
	if filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// analysisValue returns the inline value or the decoded content of the file
func (m *Manifest) analysisValue(analysis AnalysisEntry) (interface{}, error) {
	if analysis.Path == "" {
		return analysis.Value, nil
	}
	data, err := os.ReadFile(m.resolve(analysis.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis %s: %w", analysis.Name, err)
	}
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", analysis.Name, err)
	}
	return value, nil
}
