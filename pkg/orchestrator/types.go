//go:generate mockgen -destination=./mocks/orchestrator.go . Recommender

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/catalog"
	"github.com/glorpus-work/modelkeep/pkg/download"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"github.com/glorpus-work/modelkeep/pkg/reconcile"
	"github.com/glorpus-work/modelkeep/pkg/store"
	"github.com/glorpus-work/modelkeep/pkg/transfer"
)

// InterruptPollInterval is how often Interrupt looks for a transfer to pause.
const InterruptPollInterval = 50 * time.Millisecond

// Recommender is the subset of the catalog service used by the orchestrator.
type Recommender interface {
	FetchRecommended(ctx context.Context) (catalog.Recommendation, error)
}

// Orchestrator ties the store, the catalog and the transfer primitive together and
// hands out one download controller and one reconciler per scope.
type Orchestrator struct {
	Store            *store.DB
	Catalog          Recommender
	Starter          transfer.Starter
	DocumentsDir     string
	ProgressInterval time.Duration
	Hooks            Hooks // Hooks for progress and event notifications

	mu      sync.Mutex
	engines map[string]*engine
}

type engine struct {
	scope      *store.Scope
	controller *download.Controller
	reconciler *reconcile.Reconciler
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // checking|downloading|resuming|pausing|paused|done|up_to_date|error
	Scope string
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// Status is a point-in-time view of one scope.
type Status struct {
	Scope  string       `json:"scope"`
	Phase  model.Phase  `json:"phase"`
	Active bool         `json:"active"`
	Record model.Record `json:"record"`
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}
