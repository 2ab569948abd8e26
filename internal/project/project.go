// Package project loads and serves the dev server's project definitions from
// a YAML file, with live reload on file changes.
package project

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FlagDef is one flag definition in the projects file.
type FlagDef struct {
	Value      any   `yaml:"value"`
	Version    int   `yaml:"version"`
	Variations []any `yaml:"variations"`
}

// ProjectDef is one project definition in the projects file.
type ProjectDef struct {
	Name           string             `yaml:"name"`
	EnvironmentKey string             `yaml:"environment"`
	Flags          map[string]FlagDef `yaml:"flags"`
}

// fileSchema is the projects file's top-level shape.
type fileSchema struct {
	Projects map[string]ProjectDef `yaml:"projects"`
}

// Variation is one selectable flag value, with a stable ID assigned at load.
type Variation struct {
	ID    string `json:"_id"`
	Value any    `json:"value"`
}

// Flag is a loaded flag.
type Flag struct {
	Value      any
	Version    int
	Variations []Variation
}

// Project is a loaded project.
type Project struct {
	Key            string
	Name           string
	EnvironmentKey string
	Flags          map[string]Flag
}

// Load parses a projects YAML file.
func Load(path string) (map[string]Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projects file %s: %w", path, err)
	}

	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse projects file %s: %w", path, err)
	}
	if len(schema.Projects) == 0 {
		return nil, fmt.Errorf("projects file %s defines no projects", path)
	}

	projects := make(map[string]Project, len(schema.Projects))
	for key, def := range schema.Projects {
		p := Project{
			Key:            key,
			Name:           def.Name,
			EnvironmentKey: def.EnvironmentKey,
			Flags:          make(map[string]Flag, len(def.Flags)),
		}
		if p.Name == "" {
			p.Name = key
		}
		if p.EnvironmentKey == "" {
			p.EnvironmentKey = "local"
		}
		for flagKey, fd := range def.Flags {
			flag := Flag{Value: fd.Value, Version: fd.Version}
			if flag.Version == 0 {
				flag.Version = 1
			}
			for _, v := range fd.Variations {
				flag.Variations = append(flag.Variations, Variation{
					ID:    uuid.NewString(),
					Value: v,
				})
			}
			p.Flags[flagKey] = flag
		}
		projects[key] = p
	}
	return projects, nil
}

// Registry holds the loaded projects and swaps them atomically on reload.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]Project
	loadedAt int64
}

// NewRegistry creates a registry over an initial project set.
func NewRegistry(projects map[string]Project) *Registry {
	return &Registry{projects: projects, loadedAt: time.Now().UnixMilli()}
}

// Replace swaps in a freshly loaded project set.
func (r *Registry) Replace(projects map[string]Project) {
	r.mu.Lock()
	r.projects = projects
	r.loadedAt = time.Now().UnixMilli()
	r.mu.Unlock()
}

// LoadedAt returns the Unix millisecond timestamp of the last (re)load.
func (r *Registry) LoadedAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// Get returns one project by key.
func (r *Registry) Get(key string) (Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[key]
	return p, ok
}

// Keys returns the project keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.projects))
	for k := range r.projects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Names returns key/name pairs for the project list endpoint, sorted by key.
func (r *Registry) Names() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.projects))
	for k, p := range r.projects {
		out[k] = p.Name
	}
	return out
}
