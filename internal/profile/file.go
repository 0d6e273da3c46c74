package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Set is a named collection of profiles in definition order
type Set struct {
	profiles *orderedmap.OrderedMap[string, *Profile]
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{profiles: orderedmap.New[string, *Profile]()}
}

// Add inserts p, replacing a profile with the same name
func (s *Set) Add(p *Profile) {
	s.profiles.Set(p.Name, p)
}

// Get returns the profile called name
func (s *Set) Get(name string) (*Profile, error) {
	p, ok := s.profiles.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %v)", name, s.Names())
	}
	return p, nil
}

// Names returns profile names in definition order
func (s *Set) Names() []string {
	names := make([]string, 0, s.profiles.Len())
	for pair := s.profiles.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// All returns the profiles in definition order
func (s *Set) All() []*Profile {
	all := make([]*Profile, 0, s.profiles.Len())
	for pair := s.profiles.Oldest(); pair != nil; pair = pair.Next() {
		all = append(all, pair.Value)
	}
	return all
}

// Merge adds every profile of other; profiles of other win on name clashes
func (s *Set) Merge(other *Set) {
	for _, p := range other.All() {
		s.Add(p)
	}
}

// Len returns the number of profiles
func (s *Set) Len() int {
	return s.profiles.Len()
}

type profileFile struct {
	Profiles []*Profile `yaml:"profiles"`
}

// LoadFile reads profiles from a YAML file.
// Lua decoder paths inside the file are resolved relative to the file.
//
//	profiles:
//	  - name: boat
//	    filter: {name_prefix: "Boat"}
//	    sources:
//	      - name: wind_speed
//	        characteristic: 90D3D002-C950-4DD6-9410-2B7AEB1DD7D8
//	      - name: latitude
//	        characteristic: 90D3D005-C950-4DD6-9410-2B7AEB1DD7D8
//	        decoder: float64
//	        history: 60
func LoadFile(path string, decoders *Decoders) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	if decoders == nil {
		decoders = NewDecoders(filepath.Dir(path), nil)
	} else if decoders.BaseDir == "" {
		decoders.BaseDir = filepath.Dir(path)
	}

	set, err := Parse(bytes.NewReader(data), decoders)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and validates YAML profiles
func Parse(r io.Reader, decoders *Decoders) (*Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file profileFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no profiles defined")
		}
		return nil, fmt.Errorf("invalid profile YAML: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, errors.New("no profiles defined")
	}

	set := NewSet()
	seen := make(map[string]int)
	var errs []error
	for _, p := range file.Profiles {
		if p == nil {
			continue
		}
		p.ApplyDefaults()
		if err := p.Validate(decoders); err != nil {
			errs = append(errs, err)
			continue
		}
		seen[p.Name]++
		set.Add(p)
	}

	var dups []string
	for name, n := range seen {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		errs = append(errs, fmt.Errorf("duplicate profile names: %v", dups))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}
