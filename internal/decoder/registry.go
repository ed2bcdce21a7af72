// Package decoder provides a registry of sounding decoders keyed by the encoding of
// the stored payload.
package decoder

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"sounding_archive/internal/catalog"
)

// ErrNoDecoder is returned when no decoder is registered for a file kind.
var ErrNoDecoder = errors.New("no decoder for file kind")

// Sounding is the location and time a decoded profile applies to.
type Sounding struct {
	Station    string
	StationNum int
	ValidTime  time.Time
	LeadTime   time.Duration // zero for observations and analysis times
	Latitude   float64
	Longitude  float64
	Elevation  float64 // meters
	HasCoords  bool
}

// Analysis pairs a sounding with the provider-computed values that came with it,
// e.g. stability indices, keyed by the provider's parameter names.
type Analysis struct {
	Sounding Sounding
	Provider map[string]float64
}

// Decoder is implemented by each payload format.
type Decoder interface {
	// Name returns the decoder's unique identifier.
	Name() string

	// Kind returns the file kind this decoder reads.
	Kind() catalog.FileKind

	// Decode parses a decompressed payload. description identifies the payload in
	// error messages, usually the stored file name.
	Decode(raw []byte, description string) ([]Analysis, error)
}

// Registry maps file kinds to decoders.
type Registry struct {
	mu     sync.RWMutex
	byKind map[catalog.FileKind]Decoder
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byKind: make(map[catalog.FileKind]Decoder)}
}

// Global default registry.
var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a decoder to the default registry.
// Called during init() in each decoder package.
func Register(d Decoder) {
	defaultRegistry.Register(d)
}

// Register adds a decoder, replacing any decoder previously registered for its kind.
func (r *Registry) Register(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[d.Kind()] = d
}

// Lookup returns the decoder for a kind.
func (r *Registry) Lookup(kind catalog.FileKind) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKind[kind]
	return d, ok
}

// Decode hands a payload to the decoder registered for kind.
func (r *Registry) Decode(kind catalog.FileKind, raw []byte, description string) ([]Analysis, error) {
	d, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%s (%s): %w", description, kind, ErrNoDecoder)
	}
	analyses, err := d.Decode(raw, description)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", description, err)
	}
	return analyses, nil
}

// Kinds returns the file kinds that have a decoder, in sorted order.
func (r *Registry) Kinds() []catalog.FileKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]catalog.FileKind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
