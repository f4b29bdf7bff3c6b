// Package catalog fetches, validates and queries model catalogs. A remote catalog
// is served as JSON; a snapshot of it is compiled into the binary so that a
// recommendation is always available, even offline.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/filename"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-version"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*model.Catalog, error) {
	var c model.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", errutils.ErrCatalogInvalid, err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseFromReader reads at most MaxCatalogBytes from r and parses the catalog.
func ParseFromReader(r io.Reader) (*model.Catalog, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxCatalogBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", errutils.ErrCatalogFetch, err)
	}
	if len(data) > MaxCatalogBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", errutils.ErrCatalogInvalid, MaxCatalogBytes)
	}
	return Parse(data)
}

// Validate checks the struct constraints of a catalog and its descriptors, that
// the version is well formed and can be carried in artifact filenames, and that the
// default entry exists.
func Validate(c *model.Catalog) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errutils.ErrCatalogInvalid, err)
	}
	if err := filename.ValidateVersion(c.Version); err != nil {
		return fmt.Errorf("%w: version %q: %w", errutils.ErrCatalogInvalid, c.Version, err)
	}
	if _, ok := c.Lookup(c.DefaultID); !ok {
		return fmt.Errorf("%w: default_id %q", errutils.ErrCatalogInvalid, c.DefaultID)
	}
	return nil
}

// ToJSON renders the catalog as indented JSON.
func ToJSON(c *model.Catalog) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, errutils.Wrap(err, "failed to marshal catalog to JSON")
	}
	return data, nil
}

// Compare orders two catalog versions, returning -1, 0 or 1. Versions that do not
// parse fall back to lexical order.
func Compare(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}
