package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testDescriptor() *Descriptor {
	return &Descriptor{
		Name:          "Llama 3.2 1B Instruct",
		SourceURL:     "https://example.com/llama-3.2-1b.gguf",
		SizeGB:        0.75,
		ParametersB:   1,
		RAMRequiredGB: 2,
		Config:        map[string]any{"template": "llama3", "ctx": float64(4096)},
	}
}

func TestDescriptorEqual(t *testing.T) {
	base := testDescriptor()

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
		want   bool
	}{
		{"identical", func(*Descriptor) {}, true},
		{"name changed", func(d *Descriptor) { d.Name = "other" }, false},
		{"url changed", func(d *Descriptor) { d.SourceURL = "https://example.com/b.gguf" }, false},
		{"parameters changed", func(d *Descriptor) { d.ParametersB = 3 }, false},
		{"config changed", func(d *Descriptor) { d.Config["ctx"] = float64(8192) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base.Clone()
			tt.mutate(other)
			assert.Equal(t, tt.want, base.Equal(other))
		})
	}
}

func TestDescriptorEqual_EmptyConfig(t *testing.T) {
	a := testDescriptor()
	a.Config = nil
	b := a.Clone()
	b.Config = map[string]any{}
	assert.True(t, a.Equal(b))

	var nilDesc *Descriptor
	assert.False(t, a.Equal(nilDesc))
	assert.True(t, nilDesc.Equal(nil))
}

func TestSameArtifact(t *testing.T) {
	a := testDescriptor()
	b := a.Clone()
	b.Name = "renamed"
	b.SizeGB = 9
	assert.True(t, a.SameArtifact(b))
	assert.False(t, a.SameArtifact(nil))
}

func TestDecodeDescriptor(t *testing.T) {
	assert.Nil(t, DecodeDescriptor(nil))
	assert.Nil(t, DecodeDescriptor([]byte("{not json")))

	d := DecodeDescriptor([]byte(`{"name":"x","url":"https://e/x.gguf","size_gb":1}`))
	if assert.NotNil(t, d) {
		assert.Equal(t, "https://e/x.gguf", d.SourceURL)
	}
}

func TestDownloadStatePhase(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		state DownloadState
		want  Phase
	}{
		{"empty", DownloadState{}, PhaseIdle},
		{"in flight", DownloadState{Filename: "a-v1.0.0-0123abcd.gguf"}, PhaseDownloading},
		{"paused", DownloadState{Filename: "a", Paused: true, ResumeToken: []byte("{}")}, PhasePaused},
		{"failed", DownloadState{Filename: "a", Paused: true, Error: "boom"}, PhaseFailed},
		{"completed", DownloadState{Filename: "a", CompletedAt: &now}, PhaseCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Phase())
		})
	}
}

func TestCatalogLookup(t *testing.T) {
	c := &Catalog{
		Version:     "1.0.0",
		DefaultID:   "b",
		Descriptors: map[string]Descriptor{"b": *testDescriptor(), "a": *testDescriptor()},
	}
	d, ok := c.Lookup("a")
	assert.True(t, ok)
	assert.NotNil(t, d)
	_, ok = c.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, c.IDs())
}

func TestCatalogLookup_ReturnsIndependentCopy(t *testing.T) {
	c := &Catalog{Version: "1.0.0", DefaultID: "a", Descriptors: map[string]Descriptor{"a": *testDescriptor()}}

	d, ok := c.Lookup("a")
	assert.True(t, ok)
	d.Config["ctx"] = float64(1)
	d.Name = "changed"

	again, _ := c.Lookup("a")
	assert.Equal(t, float64(4096), again.Config["ctx"])
	assert.Equal(t, "Llama 3.2 1B Instruct", again.Name)
}
