package model

import (
	"sort"
)

// Catalog is a versioned set of descriptors with a designated default entry.
// Recommend optionally carries a tengo script that picks a descriptor id for a
// device; see package catalog.
type Catalog struct {
	Version     string                `json:"version" validate:"required"`
	DefaultID   string                `json:"default_id" validate:"required"`
	Descriptors map[string]Descriptor `json:"descriptors" validate:"required,min=1,dive,keys,required,endkeys"`
	Recommend   string                `json:"recommend,omitempty"`
}

// Lookup returns a copy of the descriptor registered under id. The copy shares no
// config map with the catalog, which may be cached and handed out again.
func (c *Catalog) Lookup(id string) (*Descriptor, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.Descriptors[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// IDs returns the descriptor ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Descriptors))
	for id := range c.Descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
