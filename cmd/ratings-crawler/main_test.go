package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/ratings-crawler/pkg/orchestrate"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", `
concurrency: 4
state_dir: "./state"
limits:
  extract: 25
`)

	cfg, warnings, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 25, cfg.Limits.Extract)
	assert.Equal(t, "./state", cfg.StateDir)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, _, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeFile(t, "bad.yaml", "{{invalid yaml")

	_, _, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestDoValidate_Valid(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", `
concurrency: 3
state_dir: "./state"
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK: [fetch] concurrency=3")
	assert.Contains(t, stdout.String(), "OK: [state] dir=./state")
	assert.Contains(t, stdout.String(), "WARN: [verify] no verifier configured")
	assert.Contains(t, stdout.String(), "Configuration valid")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_WithServices(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", `
millionverifier:
  enabled: true
  api_key: "mv-key"
apify:
  token: "apify-token"
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK: [verify] millionverifier")
	assert.Contains(t, stdout.String(), "OK: [social] apify:instagram-scraper")
	assert.NotContains(t, stdout.String(), "WARN: [social]")
}

func TestDoValidate_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent/config.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error:")
	assert.NotContains(t, stdout.String(), "Configuration valid")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for cmd := range stageCommands {
		assert.Contains(t, out, "  "+cmd+" ", "usage should list %q", cmd)
	}
	assert.Contains(t, out, "validate")
	assert.Contains(t, out, "version")
}

func TestParseStageFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := parseStageFlags("extract", nil, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "extract", opts.command)
		assert.Equal(t, "default", opts.profile)
		assert.Equal(t, 0, opts.limit)
		assert.Nil(t, opts.ids)
		assert.False(t, opts.reset)
	})

	t.Run("ids and limit", func(t *testing.T) {
		opts, err := parseStageFlags("resolve", []string{"-ids", " a, ,b ", "-limit", "7", "-profile", "nightly", "-reset"}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, opts.ids)
		assert.Equal(t, 7, opts.limit)
		assert.Equal(t, "nightly", opts.profile)
		assert.True(t, opts.reset)
	})

	t.Run("import requires seed", func(t *testing.T) {
		_, err := parseStageFlags("import", nil, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "-seed")
	})

	t.Run("export only on discover", func(t *testing.T) {
		opts, err := parseStageFlags("discover", []string{"-export", "urls.txt"}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "urls.txt", opts.export)

		_, err = parseStageFlags("extract", []string{"-export", "urls.txt"}, io.Discard)
		require.Error(t, err)
	})
}

func TestApp_ImportAndAggregate(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "state_dir: "+filepath.Join(t.TempDir(), "state")+"\n")
	seedPath := writeFile(t, "seed.yaml", `
merchants:
  - name: "Acme Apparel"
    domain: "acme.test"
    instagram: "@acme.apparel"
  - name: "Beta Goods"
`)

	cfg, _, err := loadConfig(cfgPath)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts, err := parseStageFlags("import", []string{"-seed", seedPath}, io.Discard)
	require.NoError(t, err)

	a, err := newApp(ctx, opts, cfg, log)
	require.NoError(t, err)
	defer a.close()

	run, err := a.execute(ctx, opts)
	require.NoError(t, err)
	imported := run.Stage(orchestrate.StageImport)
	require.NotNil(t, imported)
	assert.Equal(t, 2, imported.OK)

	// Importing the same file again only reports duplicates
	run, err = a.execute(ctx, opts)
	require.NoError(t, err)
	again := run.Stage(orchestrate.StageImport)
	require.NotNil(t, again)
	assert.Equal(t, 0, again.OK)
	assert.Equal(t, 2, again.Skipped)

	merchants, err := a.store.ListMerchants(ctx, nil)
	require.NoError(t, err)
	require.Len(t, merchants, 2)
	for _, m := range merchants {
		if m.Name == "Acme Apparel" {
			assert.Equal(t, "acme.apparel", m.Instagram)
		}
	}

	aggOpts, err := parseStageFlags("aggregate", nil, io.Discard)
	require.NoError(t, err)
	run, err = a.execute(ctx, aggOpts)
	require.NoError(t, err)
	agg := run.Stage(orchestrate.StageAggregate)
	require.NotNil(t, agg)
	assert.Equal(t, 0, agg.Processed)

	reportPath := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, run.WriteYAML(reportPath))
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage: aggregate")
}

func TestApp_ImportMissingSeed(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "state_dir: "+filepath.Join(t.TempDir(), "state")+"\n")
	cfg, _, err := loadConfig(cfgPath)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx := context.Background()

	opts, err := parseStageFlags("import", []string{"-seed", "/nonexistent/seed.yaml"}, io.Discard)
	require.NoError(t, err)

	a, err := newApp(ctx, opts, cfg, log)
	require.NoError(t, err)
	defer a.close()

	_, err = a.execute(ctx, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read seed file")
}
