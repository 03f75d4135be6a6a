package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadJSONResolvesLabelPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"server_address": ":9000", "max_concurrent_analyses": 2},
		"classifier": {"base_url": "http://model:8501", "models": {"Tomato": {"name": "tomato", "labels_path": "labels/tomato.txt"}}},
		"gateway": {"mode": "direct"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("PORT", "")
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.BasicConfig.ServerAddress)
	require.Equal(t, 2, cfg.BasicConfig.MaxConcurrentAnalyses)
	require.Equal(t, filepath.Join(dir, "labels", "tomato.txt"), cfg.Classifier.Models["Tomato"].LabelsPath)
	// defaults survive for keys the file does not mention
	require.Equal(t, "gemini", cfg.Explainer.Provider)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvest.yaml")
	body := "gateway:\n  mode: http\n  base_url: http://relay:10000\nlanguages:\n  Odia: or\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, GatewayHTTP, cfg.Gateway.Mode)
	require.Equal(t, "or", cfg.Languages["Odia"])
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("PORT", "8123")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8123", cfg.BasicConfig.ServerAddress)
	prov, ok := cfg.ExplainerProvider()
	require.True(t, ok)
	require.Equal(t, "gem-key", prov.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Gateway.Mode = "carrier-pigeon"
	require.ErrorIs(t, cfg.Validate(), ErrGatewayMode)

	cfg = Default()
	cfg.Gateway.Mode = GatewayHTTP
	require.ErrorIs(t, cfg.Validate(), ErrGatewayURL)

	cfg = Default()
	cfg.BasicConfig.MaxConcurrentAnalyses = 0
	require.ErrorIs(t, cfg.Validate(), ErrConcurrency)
}
