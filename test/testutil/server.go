// Package testutil holds fixtures shared by the command-level tests: a model file
// server, a catalog server and a config file pointing at both.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/model"
	"gopkg.in/yaml.v3"
)

// ModelServer serves one artifact with range support and a fixed ETag.
type ModelServer struct {
	*httptest.Server
	Data []byte
	hits atomic.Int32
}

// NewModelServer starts a server for data. It is closed when the test ends.
func NewModelServer(t *testing.T, data []byte) *ModelServer {
	t.Helper()
	ms := &ModelServer{Data: data}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.hits.Add(1)
		w.Header().Set("ETag", `"testutil"`)
		http.ServeContent(w, r, "model.gguf", time.Time{}, bytes.NewReader(ms.Data))
	}))
	t.Cleanup(ms.Close)
	return ms
}

// NewStallingModelServer serves the first quarter of data and then holds the
// connection until the client goes away, so transfers against it never finish.
func NewStallingModelServer(t *testing.T, data []byte) *ModelServer {
	t.Helper()
	ms := &ModelServer{Data: data}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.hits.Add(1)
		w.Header().Set("ETag", `"testutil"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(ms.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(ms.Data[:len(ms.Data)/4])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(ms.Close)
	return ms
}

// Hits returns the number of requests served.
func (ms *ModelServer) Hits() int {
	return int(ms.hits.Load())
}

// ArtifactURL is the URL catalogs should point at.
func (ms *ModelServer) ArtifactURL() string {
	return ms.URL + "/model.gguf"
}

// NewCatalogServer serves c as JSON on /catalog.json.
func NewCatalogServer(t *testing.T, c *model.Catalog) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal catalog: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// SingleModelCatalog builds a catalog whose only entry points at url.
func SingleModelCatalog(version, url string) *model.Catalog {
	return &model.Catalog{
		Version:   version,
		DefaultID: "test-model",
		Descriptors: map[string]model.Descriptor{
			"test-model": {
				Name:          "Test Model",
				SourceURL:     url,
				SizeGB:        0.001,
				ParametersB:   1,
				RAMRequiredGB: 1,
			},
		},
	}
}

// SetupTestConfig writes a config file into a temporary directory with documents
// and state kept under the same directory. Extra settings override the defaults.
func SetupTestConfig(t *testing.T, catalogURL string, extra map[string]any) string {
	t.Helper()

	tempDir := t.TempDir()
	settings := map[string]any{
		"catalog_url":       catalogURL,
		"documents_dir":     filepath.Join(tempDir, "models"),
		"state_dir":         filepath.Join(tempDir, "state"),
		"http_timeout":      "5s",
		"progress_interval": "10ms",
		"log_level":         "error",
	}
	for k, v := range extra {
		settings[k] = v
	}

	data, err := yaml.Marshal(map[string]any{"settings": settings})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

// CaptureStdout runs fn with os.Stdout redirected and returns what it printed.
func CaptureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	out := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		out <- buf.String()
	}()

	defer func() {
		os.Stdout = oldStdout
	}()
	fn()
	_ = w.Close()
	s := <-out
	_ = r.Close()
	return s
}

// Must fails the test on err.
func Must(t *testing.T, err error, what string) {
	t.Helper()
	if err != nil {
		t.Fatal(fmt.Errorf("%s: %w", what, err))
	}
}
