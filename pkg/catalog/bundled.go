package catalog

import (
	_ "embed"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/model"
)

//go:embed bundled.json
var bundledJSON []byte

// Bundled returns a fresh copy of the catalog snapshot compiled into the binary.
func Bundled() (*model.Catalog, error) {
	c, err := Parse(bundledJSON)
	if err != nil {
		return nil, errutils.Wrap(err, "bundled catalog")
	}
	return c, nil
}
