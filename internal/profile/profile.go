package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/blesail/internal/device"
	"github.com/srg/blesail/internal/sink"
)

// SourceSpec is the declarative, sink-agnostic form of a Descriptor
type SourceSpec struct {
	Name           string `yaml:"name"`
	Service        string `yaml:"service,omitempty" default:"90D3D000-C950-4DD6-9410-2B7AEB1DD7D8"`
	Characteristic string `yaml:"characteristic"`
	Decoder        string `yaml:"decoder,omitempty" default:"sint16"`
	History        int    `yaml:"history,omitempty"` // samples kept for the trend, 0 = none
}

// Profile is a device filter plus the sources to subscribe to
type Profile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Filter      device.Filter `yaml:"filter"`
	Sources     []SourceSpec  `yaml:"sources"`
}

// SinkFactory returns the sink of one source; history is nil when the source keeps none
type SinkFactory func(src SourceSpec, history *sink.History) sink.Sink

// BuildOptions tune a profile build
type BuildOptions struct {
	History int // history applied to sources that do not set one
}

// ApplyDefaults fills omitted source fields
func (p *Profile) ApplyDefaults() {
	for i := range p.Sources {
		defaults.SetDefaults(&p.Sources[i])
	}
}

// Validate checks names, UUIDs and decoders. All problems are reported together.
func (p *Profile) Validate(decoders *Decoders) error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("profile name is required"))
	}
	if len(p.Sources) == 0 {
		errs = append(errs, fmt.Errorf("profile %q has no sources", p.Name))
	}

	for i, src := range p.Sources {
		where := fmt.Sprintf("profile %q source #%d (%s)", p.Name, i+1, src.Name)
		if strings.TrimSpace(src.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		}
		if _, err := device.ValidateUUID(src.Service, src.Characteristic); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if src.History < 0 || src.History > sink.MaxHistory {
			errs = append(errs, fmt.Errorf("%s: history must be within 0..%d", where, sink.MaxHistory))
		}
		if decoders != nil {
			if err := decoders.Validate(src.Decoder); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Build resolves decoders and sinks and returns the registry for the connector
func (p *Profile) Build(decoders *Decoders, sinks SinkFactory, opts *BuildOptions) (*Registry, error) {
	if decoders == nil {
		decoders = NewDecoders("", nil)
	}
	if sinks == nil {
		sinks = func(SourceSpec, *sink.History) sink.Sink { return sink.Discard }
	}
	if opts == nil {
		opts = &BuildOptions{}
	}

	reg := NewRegistry()
	var errs []error
	for _, src := range p.Sources {
		fn, err := decoders.Resolve(src.Decoder)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			continue
		}

		size := src.History
		if size == 0 {
			size = opts.History
		}
		var hist *sink.History
		if size > 0 {
			if hist, err = sink.NewHistory(size); err != nil {
				errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
				continue
			}
		}

		reg.Register(src.Name, src.Service, src.Characteristic, fn, sinks(src, hist), hist)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reg, nil
}
