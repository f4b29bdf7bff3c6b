package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/model"
)

// MaxCatalogBytes caps the size of a remote catalog document.
const MaxCatalogBytes = 4 << 20

// HTTPSource fetches the catalog document from a URL. Responses are revalidated with
// If-None-Match so an unchanged catalog is not parsed twice.
type HTTPSource struct {
	client    *http.Client
	url       string
	userAgent string

	mu     sync.Mutex
	etag   string
	cached *model.Catalog
}

// NewHTTPSource creates a source for catalogURL.
func NewHTTPSource(catalogURL string, timeout time.Duration, userAgent string) (*HTTPSource, error) {
	u, err := url.Parse(catalogURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", errutils.ErrCatalogURLInvalid, catalogURL)
	}
	if userAgent == "" {
		userAgent = "modelkeep/1.0"
	}
	return &HTTPSource{
		client:    &http.Client{Timeout: timeout},
		url:       u.String(),
		userAgent: userAgent,
	}, nil
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) (*model.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	s.mu.Lock()
	etag, cached := s.etag, s.cached
	s.mu.Unlock()
	if etag != "" && cached != nil {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errutils.ErrCatalogFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("%w: not modified without a cached catalog", errutils.ErrCatalogFetch)
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("%w: unexpected status code: %d", errutils.ErrCatalogFetch, resp.StatusCode)
	}

	c, err := ParseFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.etag = resp.Header.Get("ETag")
	s.cached = c
	s.mu.Unlock()
	return c, nil
}
