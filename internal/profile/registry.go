// Package profile describes what blesail subscribes to: the registry of data
// sources handed to the connector, and the device profiles it is built from.
package profile

import (
	"github.com/srg/blesail/internal/decode"
	"github.com/srg/blesail/internal/sink"
)

// Descriptor binds one GATT characteristic to a decoder and an output sink.
// Descriptors are immutable once registered.
type Descriptor struct {
	Name           string
	Service        string
	Characteristic string
	Decode         decode.Func
	Sink           sink.Sink
	Log            *sink.History // optional
}

// Registry is the ordered list of data sources.
//
// Register performs no validation and no duplicate detection: registering the
// same characteristic twice produces two independent subscriptions.
type Registry struct {
	descriptors []Descriptor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a descriptor. log may be nil.
func (r *Registry) Register(name, service, characteristic string, dec decode.Func, s sink.Sink, log *sink.History) *Registry {
	r.descriptors = append(r.descriptors, Descriptor{
		Name:           name,
		Service:        service,
		Characteristic: characteristic,
		Decode:         dec,
		Sink:           s,
		Log:            log,
	})
	return r
}

// Descriptors returns a copy of the registered descriptors in registration order
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Len returns the number of registered descriptors
func (r *Registry) Len() int {
	return len(r.descriptors)
}
