//go:generate mockgen -destination=mocks/catalog.go . Source
package catalog

import (
	"context"

	"github.com/glorpus-work/modelkeep/pkg/model"
)

// Source retrieves the current remote catalog.
type Source interface {
	// Fetch returns a parsed and validated catalog.
	Fetch(ctx context.Context) (*model.Catalog, error)
}
