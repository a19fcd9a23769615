package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsEveryComponent(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "chromem", cfg.Vector.Provider)
	require.Equal(t, 0.75, cfg.Precedent.Threshold)
	require.Equal(t, 4, cfg.Planner.MaxDepth)
	require.True(t, cfg.Checkpoint.Enabled)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	cfg.Server.Port = -1
	cfg.LLM.APIKey = ""
	cfg.Vector.Provider = "unknown"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "server")
	require.Contains(t, err.Error(), "llm")
	require.Contains(t, err.Error(), "vector")
}

func TestExpandEnvVarsSubstitutesBracedReference(t *testing.T) {
	t.Setenv("GENESIS_TEST_KEY", "secret-value")
	require.Equal(t, "key=secret-value", expandEnvVars("key=${GENESIS_TEST_KEY}"))
}

func TestExpandEnvVarsFallsBackToDefault(t *testing.T) {
	require.Equal(t, "key=fallback", expandEnvVars("key=${GENESIS_UNSET_VAR:-fallback}"))
}

func TestLoadReadsYAMLAndExpandsEnv(t *testing.T) {
	t.Setenv("GENESIS_TEST_API_KEY", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: openai\n  api_key: ${GENESIS_TEST_API_KEY}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.LLM.APIKey)
	require.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFailsValidationWithoutAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: genesis\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsPluginMissingBinaryPath(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	cfg.LLM.APIKey = "key"
	cfg.Plugins = []PluginToolConfig{{Name: "ocr", InputType: "IMAGE", OutputType: "TEXT"}}

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "plugins[0]")
	require.Contains(t, err.Error(), "binary_path")
}

func TestLoadParsesPluginsSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	yamlContent := "llm:\n  api_key: key\nplugins:\n  - name: ocr\n    binary_path: ./bin/ocr-plugin\n    input_type: IMAGE\n    output_type: TEXT\n    parameters:\n      - name: language\n        type: string\n        required: true\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Plugins, 1)
	require.Equal(t, "ocr", cfg.Plugins[0].Name)
	require.Equal(t, "./bin/ocr-plugin", cfg.Plugins[0].BinaryPath)
	require.Len(t, cfg.Plugins[0].Parameters, 1)
	require.True(t, cfg.Plugins[0].Parameters[0].Required)
}
