package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/glorpus-work/modelkeep/internal/logger"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/metrics"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"golang.org/x/sync/singleflight"
)

// Recommendation is the descriptor chosen for this device along with the catalog
// it came from.
type Recommendation struct {
	ID         string
	Version    string
	Descriptor model.Descriptor
	// Fallback is set when the bundled snapshot served the recommendation.
	Fallback bool
}

// Service resolves the recommended descriptor for the device.
type Service struct {
	source Source
	ramGB  float64
	group  singleflight.Group

	mu          sync.Mutex
	lastVersion string
}

// NewService creates a service over source. A nil source always uses the bundled
// catalog. ramGB is the device memory; zero means unknown.
func NewService(source Source, ramGB float64) *Service {
	return &Service{source: source, ramGB: ramGB}
}

// FetchRecommended fetches the remote catalog and asks it for a descriptor for this
// device. Any fetch or lookup failure falls back to the bundled snapshot and its
// default entry, so this only fails if the bundled catalog itself is broken.
// Concurrent callers share one fetch.
func (s *Service) FetchRecommended(ctx context.Context) (Recommendation, error) {
	if s.source == nil {
		return s.fallback(metrics.FallbackFetch, errutils.ErrCatalogFetch)
	}

	v, err, _ := s.group.Do("catalog", func() (interface{}, error) {
		start := time.Now()
		c, err := s.source.Fetch(ctx)
		metrics.ObserveCatalogFetch(time.Since(start), err)
		return c, err
	})
	if err != nil {
		return s.fallback(metrics.FallbackFetch, err)
	}
	c := v.(*model.Catalog)
	s.noteVersion(c.Version)

	id, err := Recommend(ctx, c, s.ramGB)
	if err != nil {
		return s.fallback(metrics.FallbackLookup, err)
	}
	d, ok := c.Lookup(id)
	if !ok {
		return s.fallback(metrics.FallbackLookup, errutils.ErrDescriptorNotFoundWithID(id))
	}
	return Recommendation{ID: id, Version: c.Version, Descriptor: *d}, nil
}

// Catalog returns the remote catalog, or the bundled one when the remote is
// unreachable. The boolean reports whether the bundled catalog was used.
func (s *Service) Catalog(ctx context.Context) (*model.Catalog, bool, error) {
	if s.source != nil {
		c, err := s.source.Fetch(ctx)
		if err == nil {
			return c, false, nil
		}
		logger.Warn("Remote catalog unavailable", logger.Fields{"error": err.Error()})
	}
	c, err := Bundled()
	if err != nil {
		return nil, true, err
	}
	return c, true, nil
}

func (s *Service) fallback(reason string, cause error) (Recommendation, error) {
	metrics.RecordCatalogFallback(reason)
	logger.Warn("Using bundled catalog", logger.Fields{"reason": reason, "error": cause.Error()})

	c, err := Bundled()
	if err != nil {
		return Recommendation{}, err
	}
	d, ok := c.Lookup(c.DefaultID)
	if !ok {
		return Recommendation{}, errutils.ErrDescriptorNotFoundWithID(c.DefaultID)
	}
	return Recommendation{ID: c.DefaultID, Version: c.Version, Descriptor: *d, Fallback: true}, nil
}

func (s *Service) noteVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastVersion != "" && Compare(v, s.lastVersion) < 0 {
		logger.Warn("Remote catalog version went backwards", logger.Fields{
			"previous": s.lastVersion,
			"current":  v,
		})
	}
	s.lastVersion = v
}
