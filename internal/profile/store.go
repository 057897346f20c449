package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// file is the on-disk schedule: {name, data: [[seconds, temperature], ...]}.
// JSON files in this shape decode as YAML too.
type file struct {
	Name string      `yaml:"name"`
	Data [][]float64 `yaml:"data"`
}

// Parse decodes a YAML or JSON schedule document.
func Parse(b []byte) (*Profile, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	points := make([]Point, 0, len(f.Data))
	for i, row := range f.Data {
		if len(row) != 2 {
			return nil, fmt.Errorf("profile %q: data[%d] must be [seconds, temperature]", f.Name, i)
		}
		points = append(points, Point{
			Time:        time.Duration(row[0] * float64(time.Second)),
			Temperature: row[1],
		})
	}
	return New(f.Name, points)
}

// LoadFile reads and parses one schedule file.
func LoadFile(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

var extensions = []string{".yaml", ".yml", ".json"}

// Store finds schedules in a directory, one file per schedule.
type Store struct {
	Dir string
}

// Load returns the schedule stored under name (name.yaml, name.yml or
// name.json).
func (s Store) Load(name string) (*Profile, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("profile: invalid name %q", name)
	}
	for _, ext := range extensions {
		p, err := LoadFile(filepath.Join(s.Dir, name+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("profile %q not found in %s", name, s.Dir)
}

// List returns the names of the schedules in the directory, sorted.
func (s Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, want := range extensions {
			if ext == want {
				n := strings.TrimSuffix(e.Name(), ext)
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
