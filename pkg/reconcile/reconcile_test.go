package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/modelkeep/pkg/catalog"
	"github.com/glorpus-work/modelkeep/pkg/filename"
	"github.com/glorpus-work/modelkeep/pkg/fsutil"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"github.com/glorpus-work/modelkeep/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recommenderFunc func(ctx context.Context) (catalog.Recommendation, error)

func (f recommenderFunc) FetchRecommended(ctx context.Context) (catalog.Recommendation, error) {
	return f(ctx)
}

func recommend(id, version string, d model.Descriptor) Recommender {
	return recommenderFunc(func(context.Context) (catalog.Recommendation, error) {
		return catalog.Recommendation{ID: id, Version: version, Descriptor: d}, nil
	})
}

type activityFlag bool

func (a activityFlag) Active() bool { return bool(a) }

var baseDescriptor = model.Descriptor{
	Name:          "Llama 3.2 1B Instruct",
	SourceURL:     "https://example.com/a.gguf",
	SizeGB:        0.75,
	ParametersB:   1.24,
	RAMRequiredGB: 2,
	Config:        map[string]any{"chat_template": "llama3"},
}

func withParams(d model.Descriptor, p float64) model.Descriptor {
	d.ParametersB = p
	return d
}

func withURL(d model.Descriptor, url string) model.Descriptor {
	d.SourceURL = url
	return d
}

func storedRecord(d *model.Descriptor, version, name string) model.Record {
	return model.Record{
		Descriptor:     d,
		CatalogVersion: version,
		Download:       model.DownloadState{Filename: name},
	}
}

func TestEvaluate(t *testing.T) {
	base := baseDescriptor
	validName := filename.Derive(&base, "1.0.0")

	tests := []struct {
		name        string
		stored      model.Record
		recommended model.Descriptor
		version     string
		want        Decision
	}{
		{
			name:        "fresh install",
			stored:      model.Record{},
			recommended: base,
			version:     "1.0.0",
			want:        Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonVersionMismatch},
		},
		{
			name:        "identical",
			stored:      storedRecord(&base, "1.0.0", validName),
			recommended: base,
			version:     "1.0.0",
			want:        Decision{},
		},
		{
			name:        "identical without file",
			stored:      storedRecord(&base, "1.0.0", ""),
			recommended: base,
			version:     "1.0.0",
			want:        Decision{},
		},
		{
			name:        "version bump with same url",
			stored:      storedRecord(&base, "1.0.0", validName),
			recommended: base,
			version:     "1.1.0",
			want:        Decision{HasUpdate: true, Reason: ReasonVersionMismatch},
		},
		{
			name:        "version bump with new url",
			stored:      storedRecord(&base, "1.0.0", validName),
			recommended: withURL(base, "https://example.com/b.gguf"),
			version:     "2.0.0",
			want:        Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonVersionMismatch},
		},
		{
			name:        "metadata change",
			stored:      storedRecord(&base, "1.0.0", validName),
			recommended: withParams(base, 1.3),
			version:     "1.0.0",
			want:        Decision{HasUpdate: true, Reason: ReasonMetadataChanged},
		},
		{
			name:        "url change under same version",
			stored:      storedRecord(&base, "1.0.0", validName),
			recommended: withURL(base, "https://example.com/b.gguf"),
			version:     "1.0.0",
			want:        Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonMetadataChanged},
		},
		{
			name:        "hand-edited filename",
			stored:      storedRecord(&base, "1.0.0", "my-model.gguf"),
			recommended: base,
			version:     "1.0.0",
			want:        Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonFilenameInvalid},
		},
		{
			name:        "filename from another version wins over metadata",
			stored:      storedRecord(&base, "1.0.0", filename.Derive(&base, "0.9.0")),
			recommended: withParams(base, 9),
			version:     "2.0.0",
			want:        Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonFilenameInvalid},
		},
		{
			name:        "filename with a foreign hash",
			stored:      storedRecord(&base, "1.0.0", filename.Derive(&model.Descriptor{Name: base.Name, SourceURL: "https://elsewhere/a.gguf"}, "1.0.0")),
			recommended: base,
			version:     "1.0.0",
			want:        Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonFilenameInvalid},
		},
		{
			name:        "filename without stored descriptor",
			stored:      storedRecord(nil, "1.0.0", validName),
			recommended: base,
			version:     "1.0.0",
			want:        Decision{HasUpdate: true, RequiresDownload: true, Reason: ReasonFilenameInvalid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.recommended
			assert.Equal(t, tt.want, Evaluate(tt.stored, &rec, tt.version))
		})
	}
}

func newScope(t *testing.T) *store.Scope {
	t.Helper()
	db, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	scope, err := db.Scope(store.ProviderScope("local"))
	require.NoError(t, err)
	return scope
}

// installCompleted writes a finished artifact for d at version into dir and
// records it in scope, as the download controller would.
func installCompleted(t *testing.T, scope *store.Scope, dir string, d model.Descriptor, version string) string {
	t.Helper()
	name := filename.Derive(&d, version)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o600))
	require.NoError(t, scope.Update(func(tx *store.Tx) {
		tx.SetDescriptor(&d)
		tx.SetString(store.FieldCatalogID, "llama")
		tx.SetString(store.FieldCatalogVersion, version)
		tx.SetString(store.FieldFilename, name)
		tx.SetString(store.FieldPath, path)
		tx.SetString(store.FieldCompletedAt, "2026-01-02T03:04:05Z")
	}))
	return path
}

func TestCheck_UpToDate(t *testing.T) {
	scope := newScope(t)
	installCompleted(t, scope, t.TempDir(), baseDescriptor, "1.0.0")

	res, err := NewReconciler(scope, recommend("llama", "1.0.0", baseDescriptor), nil).Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.HasUpdate)
	assert.False(t, res.Applied)
	assert.Equal(t, "llama", res.Recommendation.ID)
}

func TestCheck_VersionBumpAppliesInPlace(t *testing.T) {
	scope := newScope(t)
	dir := t.TempDir()
	oldPath := installCompleted(t, scope, dir, baseDescriptor, "1.0.0")

	r := NewReconciler(scope, recommend("llama-v2", "1.1.0", baseDescriptor), nil)
	res, err := r.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.HasUpdate)
	assert.False(t, res.RequiresDownload)
	assert.Equal(t, ReasonVersionMismatch, res.Reason)
	assert.True(t, res.Applied)

	rec, err := scope.Record()
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", rec.CatalogVersion)
	assert.Equal(t, "llama-v2", rec.CatalogID)
	assert.True(t, baseDescriptor.Equal(rec.Descriptor))
	assert.NotNil(t, rec.Download.CompletedAt)

	newName := filename.Derive(&baseDescriptor, "1.1.0")
	assert.Equal(t, newName, rec.Download.Filename)
	assert.Equal(t, filepath.Join(dir, newName), rec.Download.Path)
	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, rec.Download.Path)

	res, err = r.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.HasUpdate)
}

func TestCheck_MetadataChangeScenario(t *testing.T) {
	scope := newScope(t)
	path := installCompleted(t, scope, t.TempDir(), baseDescriptor, "1.0.0")
	changed := withParams(baseDescriptor, 1.5)

	res, err := NewReconciler(scope, recommend("llama", "1.0.0", changed), nil).Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.HasUpdate)
	assert.False(t, res.RequiresDownload)
	assert.Equal(t, ReasonMetadataChanged, res.Reason)

	rec, err := scope.Record()
	require.NoError(t, err)
	require.NotNil(t, rec.Descriptor)
	assert.Equal(t, 1.5, rec.Descriptor.ParametersB)
	assert.Equal(t, path, rec.Download.Path)
	assert.FileExists(t, path)
}

func TestCheck_RequiresDownloadLeavesStoreAlone(t *testing.T) {
	scope := newScope(t)
	installCompleted(t, scope, t.TempDir(), baseDescriptor, "1.0.0")
	moved := withURL(baseDescriptor, "https://example.com/b.gguf")

	res, err := NewReconciler(scope, recommend("llama", "2.0.0", moved), nil).Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.RequiresDownload)
	assert.False(t, res.Applied)

	rec, err := scope.Record()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rec.CatalogVersion)
	assert.True(t, baseDescriptor.Equal(rec.Descriptor))
}

func TestCheck_PostponedWhileTransferActive(t *testing.T) {
	scope := newScope(t)
	installCompleted(t, scope, t.TempDir(), baseDescriptor, "1.0.0")

	res, err := NewReconciler(scope, recommend("llama", "1.1.0", baseDescriptor), activityFlag(true)).Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.HasUpdate)
	assert.False(t, res.Applied)

	rec, err := scope.Record()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rec.CatalogVersion)
}

func TestCheck_MovesPartialData(t *testing.T) {
	scope := newScope(t)
	dir := t.TempDir()
	name := filename.Derive(&baseDescriptor, "1.0.0")
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(fsutil.PartialPath(path), []byte("half"), 0o600))
	require.NoError(t, scope.Update(func(tx *store.Tx) {
		tx.SetDescriptor(&baseDescriptor)
		tx.SetString(store.FieldCatalogVersion, "1.0.0")
		tx.SetString(store.FieldFilename, name)
		tx.SetString(store.FieldPath, path)
		tx.SetBool(store.FieldPaused, true)
	}))

	res, err := NewReconciler(scope, recommend("llama", "1.0.1", baseDescriptor), nil).Check(context.Background())
	require.NoError(t, err)
	require.True(t, res.Applied)

	rec, err := scope.Record()
	require.NoError(t, err)
	assert.NoFileExists(t, fsutil.PartialPath(path))
	assert.FileExists(t, fsutil.PartialPath(rec.Download.Path))
	assert.True(t, rec.Download.Paused)
}

func TestCheck_RecommenderError(t *testing.T) {
	scope := newScope(t)
	boom := errors.New("bundled catalog broken")
	r := NewReconciler(scope, recommenderFunc(func(context.Context) (catalog.Recommendation, error) {
		return catalog.Recommendation{}, boom
	}), nil)

	_, err := r.Check(context.Background())
	assert.ErrorIs(t, err, boom)
}
