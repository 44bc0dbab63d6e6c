package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "defai.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address: %q", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Gemini.Model != "gemini-1.5-flash" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Web3.ChainName != "flare-coston2" {
		t.Fatalf("unexpected chain: %q", cfg.Web3.ChainName)
	}
	if cfg.Session.Driver != "memory" || cfg.History.Driver != "memory" || cfg.Events.Driver != "noop" {
		t.Fatalf("unexpected driver defaults: %+v", cfg)
	}
}

func TestAPIKeyEnvIndirection(t *testing.T) {
	t.Setenv("DEFAI_TEST_GEMINI_KEY", "from-custom-env")
	path := writeConfig(t, `{"llm": {"gemini": {"api_key_env": "DEFAI_TEST_GEMINI_KEY"}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Gemini.APIKey != "from-custom-env" {
		t.Fatalf("api_key_env not honored: %q", cfg.LLM.Gemini.APIKey)
	}
}

func TestAPIKeyEnvDefaultsToGeminiAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-default-env")
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Gemini.APIKey != "from-default-env" {
		t.Fatalf("default env fallback not honored: %q", cfg.LLM.Gemini.APIKey)
	}
}

func TestExplicitAPIKeyWinsOverEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	path := writeConfig(t, `{"llm": {"gemini": {"api_key": "from-file"}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Gemini.APIKey != "from-file" {
		t.Fatalf("explicit key must win: %q", cfg.LLM.Gemini.APIKey)
	}
}

func TestRelativePathsJoinedToConfigDir(t *testing.T) {
	path := writeConfig(t, `{
		"llm": {"prompt_overrides": "prompts.yaml"},
		"web3": {"chains_file": "chains.yaml"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	baseDir := filepath.Dir(path)
	if cfg.LLM.PromptOverrides != filepath.Join(baseDir, "prompts.yaml") {
		t.Fatalf("prompt_overrides not joined: %q", cfg.LLM.PromptOverrides)
	}
	if cfg.Web3.ChainsFile != filepath.Join(baseDir, "chains.yaml") {
		t.Fatalf("chains_file not joined: %q", cfg.Web3.ChainsFile)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
