// Package model provides the data structures shared by the catalog, the download
// controller and the reconciler: model descriptors, catalogs and the persisted
// per-scope record.
package model

import (
	"encoding/json"
	"reflect"
)

// BytesPerGB converts between byte counts and the GB figures persisted for the UI.
const BytesPerGB = 1 << 30

// ToGB converts a byte count to GB.
func ToGB(bytes int64) float64 {
	return float64(bytes) / BytesPerGB
}

// Descriptor identifies one downloadable model artifact. Its identity is SourceURL;
// Name and the numeric fields are presentation metadata that may change without the
// bytes changing.
type Descriptor struct {
	Name          string         `json:"name" validate:"required"`
	SourceURL     string         `json:"url" validate:"required,url"`
	SizeGB        float64        `json:"size_gb" validate:"gt=0"`
	ParametersB   float64        `json:"parameters_b" validate:"gte=0"`
	RAMRequiredGB float64        `json:"ram_required_gb" validate:"gte=0"`
	Config        map[string]any `json:"config,omitempty"`
}

// SameArtifact reports whether both descriptors point at the same bytes.
func (d *Descriptor) SameArtifact(other *Descriptor) bool {
	if d == nil || other == nil {
		return false
	}
	return d.SourceURL == other.SourceURL
}

// Equal reports deep equality of every descriptor field. An empty config and an
// absent config are considered equal since the store drops empty configs.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.Name != other.Name ||
		d.SourceURL != other.SourceURL ||
		d.SizeGB != other.SizeGB ||
		d.ParametersB != other.ParametersB ||
		d.RAMRequiredGB != other.RAMRequiredGB {
		return false
	}
	if len(d.Config) == 0 && len(other.Config) == 0 {
		return true
	}
	return reflect.DeepEqual(d.Config, other.Config)
}

// Clone returns a deep copy of the descriptor via its JSON form.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		cp := *d
		return &cp
	}
	var out Descriptor
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *d
		return &cp
	}
	return &out
}

// DecodeDescriptor parses a persisted descriptor. Malformed input yields nil,
// never an error: a corrupt record degrades to "no stored descriptor".
func DecodeDescriptor(data []byte) *Descriptor {
	if len(data) == 0 {
		return nil
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil
	}
	return &d
}
