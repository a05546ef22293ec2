package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ServerSpec describes one external tool server process.
type ServerSpec struct {
	Name    string            `yaml:"-"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

type serversFile struct {
	Servers map[string]ServerSpec `yaml:"mcpServers"`
}

// LoadServers reads a tool server roster. JSON rosters parse too since
// YAML is a superset. Servers are returned sorted by name.
func LoadServers(path string) ([]ServerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers file: %w", err)
	}
	return ParseServers(data)
}

// ParseServers decodes a roster from raw bytes.
func ParseServers(data []byte) ([]ServerSpec, error) {
	var f serversFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse servers file: %w", err)
	}

	names := make([]string, 0, len(f.Servers))
	for name := range f.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]ServerSpec, 0, len(names))
	for _, name := range names {
		spec := f.Servers[name]
		if spec.Command == "" {
			return nil, fmt.Errorf("server %q: command is required", name)
		}
		spec.Name = name
		specs = append(specs, spec)
	}
	return specs, nil
}
