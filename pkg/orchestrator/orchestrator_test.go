package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/catalog"
	"github.com/glorpus-work/modelkeep/pkg/download"
	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/model"
	ocmocks "github.com/glorpus-work/modelkeep/pkg/orchestrator/mocks"
	"github.com/glorpus-work/modelkeep/pkg/store"
	"github.com/glorpus-work/modelkeep/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func serveModel(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		http.ServeContent(w, r, "model.gguf", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// serveStalling sends the first quarter of a size-byte body and then holds the
// connection open until the client goes away.
func serveStalling(t *testing.T, size int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, size/4))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOrchestrator(t *testing.T, rec Recommender) (*Orchestrator, *[]Event) {
	t.Helper()
	db, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mu sync.Mutex
	events := &[]Event{}
	return &Orchestrator{
		Store:            db,
		Catalog:          rec,
		Starter:          transfer.NewHTTPStarter(time.Second, ""),
		DocumentsDir:     t.TempDir(),
		ProgressInterval: time.Millisecond,
		Hooks: Hooks{OnEvent: func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			*events = append(*events, e)
		}},
	}, events
}

func recommendation(url, version string) catalog.Recommendation {
	return catalog.Recommendation{
		ID:      "test-model",
		Version: version,
		Descriptor: model.Descriptor{
			Name:        "Test Model",
			SourceURL:   url,
			SizeGB:      0.001,
			ParametersB: 1,
		},
	}
}

func phases(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Phase)
	}
	return out
}

func TestInstall_CompletesAndEmitsEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	data := bytes.Repeat([]byte("m"), 8192)
	srv := serveModel(t, data)

	rec := ocmocks.NewMockRecommender(ctrl)
	rec.EXPECT().FetchRecommended(gomock.Any()).Return(recommendation(srv.URL+"/model.gguf", "1.0.0"), nil).Times(2)

	orch, events := newOrchestrator(t, rec)

	out, err := orch.Install(context.Background(), store.GlobalScope, false)
	require.NoError(t, err)
	assert.Equal(t, download.OutcomeCompleted, out)
	assert.Equal(t, []string{"checking", "downloading", "done"}, phases(*events))

	path, err := orch.ArtifactPath(store.GlobalScope)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	out, err = orch.Install(context.Background(), store.GlobalScope, false)
	require.NoError(t, err)
	assert.Equal(t, download.OutcomeUpToDate, out)
}

func TestInstall_RecommenderError(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := ocmocks.NewMockRecommender(ctrl)
	boom := errors.New("boom")
	rec.EXPECT().FetchRecommended(gomock.Any()).Return(catalog.Recommendation{}, boom)

	orch, events := newOrchestrator(t, rec)
	_, err := orch.Install(context.Background(), store.GlobalScope, false)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"checking", "error"}, phases(*events))
}

func TestInvalidScope(t *testing.T) {
	ctrl := gomock.NewController(t)
	orch, _ := newOrchestrator(t, ocmocks.NewMockRecommender(ctrl))

	_, err := orch.Install(context.Background(), "nope", false)
	require.ErrorIs(t, err, errutils.ErrScopeInvalid)
	_, err = orch.Status("provider/")
	require.ErrorIs(t, err, errutils.ErrScopeInvalid)
	_, err = orch.ArtifactPath("")
	require.ErrorIs(t, err, errutils.ErrScopeInvalid)
}

func TestStatus_DetectsRemovedFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv := serveModel(t, []byte("weights"))
	rec := ocmocks.NewMockRecommender(ctrl)
	rec.EXPECT().FetchRecommended(gomock.Any()).Return(recommendation(srv.URL+"/model.gguf", "1.0.0"), nil)

	orch, _ := newOrchestrator(t, rec)
	_, err := orch.Install(context.Background(), store.GlobalScope, false)
	require.NoError(t, err)

	st, err := orch.Status(store.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, st.Phase)
	assert.False(t, st.Record.Download.FileRemoved)
	assert.False(t, st.Active)

	require.NoError(t, os.Remove(st.Record.Download.Path))

	st, err = orch.Status(store.GlobalScope)
	require.NoError(t, err)
	assert.True(t, st.Record.Download.FileRemoved)

	sc, err := orch.Store.Scope(store.GlobalScope)
	require.NoError(t, err)
	persisted, err := sc.Record()
	require.NoError(t, err)
	assert.True(t, persisted.Download.FileRemoved)

	_, err = orch.ArtifactPath(store.GlobalScope)
	require.ErrorIs(t, err, errutils.ErrArtifactMissing)
}

func TestArtifactPath_NothingDownloaded(t *testing.T) {
	ctrl := gomock.NewController(t)
	orch, _ := newOrchestrator(t, ocmocks.NewMockRecommender(ctrl))

	_, err := orch.ArtifactPath(store.ProviderScope("acme"))
	require.ErrorIs(t, err, errutils.ErrArtifactMissing)
}

func TestScopesAreIndependent(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv := serveModel(t, []byte("weights"))
	rec := ocmocks.NewMockRecommender(ctrl)
	rec.EXPECT().FetchRecommended(gomock.Any()).Return(recommendation(srv.URL+"/model.gguf", "1.0.0"), nil)

	orch, _ := newOrchestrator(t, rec)
	_, err := orch.Install(context.Background(), store.ProviderScope("acme"), false)
	require.NoError(t, err)

	global, err := orch.Status(store.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIdle, global.Phase)

	acme, err := orch.Status(store.ProviderScope("acme"))
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, acme.Phase)

	scopes, err := orch.Scopes()
	require.NoError(t, err)
	assert.Equal(t, []string{"provider/acme"}, scopes)
}

func TestCheck_AppliesInPlaceUpdate(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv := serveModel(t, []byte("weights"))
	url := srv.URL + "/model.gguf"
	rec := ocmocks.NewMockRecommender(ctrl)
	gomock.InOrder(
		rec.EXPECT().FetchRecommended(gomock.Any()).Return(recommendation(url, "1.0.0"), nil),
		rec.EXPECT().FetchRecommended(gomock.Any()).Return(recommendation(url, "1.1.0"), nil),
	)

	orch, _ := newOrchestrator(t, rec)
	_, err := orch.Install(context.Background(), store.GlobalScope, false)
	require.NoError(t, err)

	res, err := orch.Check(context.Background(), store.GlobalScope)
	require.NoError(t, err)
	assert.True(t, res.HasUpdate)
	assert.False(t, res.RequiresDownload)
	assert.True(t, res.Applied)

	st, err := orch.Status(store.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", st.Record.CatalogVersion)
	assert.FileExists(t, st.Record.Download.Path)
}

func TestPauseAndResume_NothingActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	orch, events := newOrchestrator(t, ocmocks.NewMockRecommender(ctrl))

	require.NoError(t, orch.Pause(context.Background(), store.GlobalScope))

	out, err := orch.Resume(context.Background(), store.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, download.OutcomeNone, out)
	assert.Equal(t, []string{"resuming"}, phases(*events))
}

func TestWatch_ReportsChanges(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv := serveModel(t, []byte("weights"))
	rec := ocmocks.NewMockRecommender(ctrl)
	rec.EXPECT().FetchRecommended(gomock.Any()).Return(recommendation(srv.URL+"/model.gguf", "1.0.0"), nil)

	orch, _ := newOrchestrator(t, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []model.Phase
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = orch.Watch(ctx, store.GlobalScope, func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s.Phase)
		})
	}()
	// Give the subscription a moment to register before writing.
	time.Sleep(50 * time.Millisecond)

	_, err := orch.Install(context.Background(), store.GlobalScope, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == model.PhaseCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestInterrupt_DuringCatalogFetchPausesTheTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv := serveStalling(t, 1<<20)
	release := make(chan struct{})
	rec := ocmocks.NewMockRecommender(ctrl)
	rec.EXPECT().FetchRecommended(gomock.Any()).DoAndReturn(func(context.Context) (catalog.Recommendation, error) {
		<-release
		return recommendation(srv.URL+"/model.gguf", "1.0.0"), nil
	})

	orch, events := newOrchestrator(t, rec)

	finished := make(chan struct{})
	var out download.Outcome
	var installErr error
	go func() {
		defer close(finished)
		out, installErr = orch.Install(context.Background(), store.GlobalScope, false)
	}()

	interrupted := make(chan error, 1)
	go func() {
		interrupted <- orch.Interrupt(context.Background(), store.GlobalScope, finished)
	}()

	// The interrupt is requested while the catalog is still being fetched.
	time.Sleep(2 * InterruptPollInterval)
	close(release)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("install kept running after the interrupt")
	}
	require.NoError(t, installErr)
	assert.Equal(t, download.OutcomePaused, out)
	require.NoError(t, <-interrupted)
	assert.Contains(t, phases(*events), "pausing")

	st, err := orch.Status(store.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, model.PhasePaused, st.Phase)
	assert.NotEmpty(t, st.Record.Download.ResumeToken)
}

func TestInterrupt_ReturnsWhenOperationEnds(t *testing.T) {
	ctrl := gomock.NewController(t)
	orch, events := newOrchestrator(t, ocmocks.NewMockRecommender(ctrl))

	done := make(chan struct{})
	close(done)
	require.NoError(t, orch.Interrupt(context.Background(), store.GlobalScope, done))
	assert.Empty(t, *events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, orch.Interrupt(ctx, store.GlobalScope, make(chan struct{})), context.Canceled)
}
