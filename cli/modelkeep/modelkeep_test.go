package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var err error
	out := testutil.CaptureStdout(t, func() {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		err = cmd.ExecuteContext(ctx)
	})
	return out, err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "modelkeep version")
}

func TestDownloadThenPath(t *testing.T) {
	data := []byte(strings.Repeat("weights", 4096))
	models := testutil.NewModelServer(t, data)
	catalogSrv := testutil.NewCatalogServer(t, testutil.SingleModelCatalog("1.0.0", models.ArtifactURL()))
	cfgPath := testutil.SetupTestConfig(t, catalogSrv.URL+"/catalog.json", nil)

	out, err := execute(t, "--config", cfgPath, "-o", "json", "download")
	require.NoError(t, err)

	var res struct {
		Outcome string `json:"outcome"`
		Status  struct {
			Phase string `json:"phase"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "completed", res.Outcome)
	assert.Equal(t, "completed", res.Status.Phase)

	out, err = execute(t, "--config", cfgPath, "path")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// A second download finds the file in place.
	out, err = execute(t, "--config", cfgPath, "-o", "json", "download")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "up_to_date", res.Outcome)
	assert.Equal(t, 1, models.Hits())
}

func TestDownload_InterruptedBeforeTransferStartsIsPaused(t *testing.T) {
	models := testutil.NewStallingModelServer(t, []byte(strings.Repeat("weights", 4096)))
	catalogSrv := testutil.NewCatalogServer(t, testutil.SingleModelCatalog("1.0.0", models.ArtifactURL()))
	cfgPath := testutil.SetupTestConfig(t, catalogSrv.URL+"/catalog.json", nil)

	// Cancelled before the catalog is even fetched.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := executeContext(t, ctx, "--config", cfgPath, "-o", "json", "download")
	require.NoError(t, err)

	var res struct {
		Outcome string `json:"outcome"`
		Status  struct {
			Phase string `json:"phase"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "paused", res.Outcome)
	assert.Equal(t, "paused", res.Status.Phase)
}

func TestCheckAfterDownload(t *testing.T) {
	models := testutil.NewModelServer(t, []byte("weights"))
	catalogSrv := testutil.NewCatalogServer(t, testutil.SingleModelCatalog("1.0.0", models.ArtifactURL()))
	cfgPath := testutil.SetupTestConfig(t, catalogSrv.URL+"/catalog.json", nil)

	_, err := execute(t, "--config", cfgPath, "--scope", "provider/acme", "download")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "--scope", "provider/acme", "-o", "json", "check")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, false, res["has_update"])

	// The global scope has nothing downloaded.
	_, err = execute(t, "--config", cfgPath, "path")
	require.Error(t, err)
}

func TestDownload_BundledCatalogWhenRemoteIsDown(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, "http://127.0.0.1:1/catalog.json", nil)

	out, err := execute(t, "--config", cfgPath, "-o", "json", "catalog")
	require.NoError(t, err)

	var res struct {
		Bundled     bool   `json:"bundled"`
		Recommended string `json:"recommended"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Bundled)
	assert.NotEmpty(t, res.Recommended)
}

func TestStatus_Idle(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, "", nil)

	out, err := execute(t, "--config", cfgPath, "-o", "json", "status")
	require.NoError(t, err)

	var st struct {
		Scope string `json:"scope"`
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "global", st.Scope)
	assert.Equal(t, "idle", st.Phase)
}

func TestStatus_InvalidScope(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, "", nil)
	_, err := execute(t, "--config", cfgPath, "--scope", "nope", "status")
	require.Error(t, err)
}

func TestResume_NothingToResume(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, "", nil)
	out, err := execute(t, "--config", cfgPath, "-o", "json", "resume")
	require.NoError(t, err)
	assert.Contains(t, out, `"outcome": "none"`)
}

func TestConfigSetGet(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, "", nil)

	_, err := execute(t, "--config", cfgPath, "config", "set", "device_ram_gb", "6")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "config", "get", "device_ram_gb")
	require.NoError(t, err)
	assert.Equal(t, "6", strings.TrimSpace(out))

	_, err = execute(t, "--config", cfgPath, "config", "set", "progress_interval", "0s")
	require.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "config", "init")
	require.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, "https://models.example.com/catalog.json", nil)

	out, err := execute(t, "--config", cfgPath, "-o", "json", "config", "show")
	require.NoError(t, err)

	var settings map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	assert.Equal(t, "https://models.example.com/catalog.json", settings["catalog_url"])
	assert.Equal(t, "10ms", settings["progress_interval"])
	assert.Equal(t, "json", settings["output_format"])

	out, err = execute(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "SETTING"))
	assert.True(t, strings.HasPrefix(lines[2], "catalog_url"), "keys are sorted")
}

func TestConfigInit(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	_, err := execute(t, "--config", cfgPath, "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, cfgPath)

	_, err = execute(t, "--config", cfgPath, "config", "init")
	require.ErrorIs(t, err, errutils.ErrConfigFileExists)

	_, err = execute(t, "--config", cfgPath, "config", "init", "--force")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "config", "get", "listen_addr")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7788", strings.TrimSpace(out))
}
