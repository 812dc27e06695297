// Package figure models the descriptor a host sends to say what to render.
//
// A Descriptor is a closed sum type. Every variant is enumerated by Visitor,
// so adding a figure type means adding a Visitor method, and every dispatcher
// stops compiling until it decides how to handle the new case.
package figure

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypeMultiscaleSpikeDensity is the only figure type currently rendered.
const TypeMultiscaleSpikeDensity = "multiscale_spike_density"

// ErrMalformed reports figure data that is not an object with a string type.
var ErrMalformed = errors.New("figure: malformed descriptor")

// Descriptor is one variant of the figure sum type.
type Descriptor interface {
	// Type returns the wire discriminant.
	Type() string
	// Raw returns the descriptor exactly as the host sent it.
	Raw() json.RawMessage
	// Accept calls the Visitor method for this variant.
	Accept(v Visitor)

	sealed()
}

// Visitor has one method per Descriptor variant.
type Visitor interface {
	MultiscaleSpikeDensity(d MultiscaleSpikeDensity)
	Unsupported(d Unsupported)
}

// MultiscaleSpikeDensity points at a multiscale spike-count dataset.
type MultiscaleSpikeDensity struct {
	URI string
	raw json.RawMessage
}

func (d MultiscaleSpikeDensity) Type() string         { return TypeMultiscaleSpikeDensity }
func (d MultiscaleSpikeDensity) Raw() json.RawMessage { return d.raw }
func (d MultiscaleSpikeDensity) Accept(v Visitor)     { v.MultiscaleSpikeDensity(d) }
func (MultiscaleSpikeDensity) sealed()                {}

// Unsupported is a structurally valid descriptor whose type this viewer does
// not know. It is displayed, never rendered.
type Unsupported struct {
	Kind string
	raw  json.RawMessage
}

func (d Unsupported) Type() string         { return d.Kind }
func (d Unsupported) Raw() json.RawMessage { return d.raw }
func (d Unsupported) Accept(v Visitor)     { v.Unsupported(d) }
func (Unsupported) sealed()                {}

type header struct {
	Type *string `json:"type"`
	URI  *string `json:"uri"`
}

// Decode turns host figure data into a Descriptor. A multiscale spike density
// descriptor without a string uri is malformed; unknown types decode to
// Unsupported.
func Decode(raw json.RawMessage) (Descriptor, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	kept := append(json.RawMessage(nil), raw...)

	switch *h.Type {
	case TypeMultiscaleSpikeDensity:
		if h.URI == nil {
			return nil, fmt.Errorf("%w: %s requires uri", ErrMalformed, *h.Type)
		}
		return MultiscaleSpikeDensity{URI: *h.URI, raw: kept}, nil
	default:
		return Unsupported{Kind: *h.Type, raw: kept}, nil
	}
}

// NewMultiscaleSpikeDensity builds a descriptor with its canonical wire form.
func NewMultiscaleSpikeDensity(uri string) MultiscaleSpikeDensity {
	raw, _ := json.Marshal(struct {
		Type string `json:"type"`
		URI  string `json:"uri"`
	}{TypeMultiscaleSpikeDensity, uri})
	return MultiscaleSpikeDensity{URI: uri, raw: raw}
}

// URIOf returns the content identifier a descriptor references, if any.
func URIOf(d Descriptor) (string, bool) {
	var f uriFinder
	d.Accept(&f)
	return f.uri, f.ok
}

type uriFinder struct {
	uri string
	ok  bool
}

func (f *uriFinder) MultiscaleSpikeDensity(d MultiscaleSpikeDensity) { f.uri, f.ok = d.URI, true }
func (f *uriFinder) Unsupported(Unsupported)                         {}
