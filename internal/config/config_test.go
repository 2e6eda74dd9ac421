package config

import (
	"testing"
	"time"
)

func TestLoadPipelineDefaults(t *testing.T) {
	t.Setenv("PIPELINE_BUDGET", "")
	t.Setenv("PIPELINE_MARGIN", "")
	t.Setenv("CACHE_CAPACITY", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("PROMPT_VERSION", "")

	cfg := Load()
	if cfg.PipelineBudget != 280*time.Second {
		t.Fatalf("expected default budget 280s, got %s", cfg.PipelineBudget)
	}
	if cfg.PipelineMargin != 20*time.Second {
		t.Fatalf("expected default margin 20s, got %s", cfg.PipelineMargin)
	}
	if cfg.CacheCapacity != 20 {
		t.Fatalf("expected default cache capacity 20, got %d", cfg.CacheCapacity)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("expected default cache ttl 5m, got %s", cfg.CacheTTL)
	}
	if cfg.PromptVersion != "v2" {
		t.Fatalf("expected default prompt version v2, got %q", cfg.PromptVersion)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PIPELINE_BUDGET", "5m")
	t.Setenv("CHAT_TIMEOUT", "45")
	t.Setenv("OPENAI_RPS", "0.5")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")

	cfg := Load()
	if cfg.PipelineBudget != 5*time.Minute {
		t.Fatalf("expected budget 5m, got %s", cfg.PipelineBudget)
	}
	if cfg.ChatTimeout != 45*time.Second {
		t.Fatalf("expected bare-integer chat timeout 45s, got %s", cfg.ChatTimeout)
	}
	if cfg.OpenAIRPS != 0.5 {
		t.Fatalf("expected openai rps 0.5, got %f", cfg.OpenAIRPS)
	}
	if cfg.MaxUploadBytes != 1048576 {
		t.Fatalf("expected upload limit 1 MiB, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PIPELINE_BUDGET", "not-a-duration")
	t.Setenv("CACHE_CAPACITY", "lots")

	cfg := Load()
	if cfg.PipelineBudget != 280*time.Second {
		t.Fatalf("expected fallback budget, got %s", cfg.PipelineBudget)
	}
	if cfg.CacheCapacity != 20 {
		t.Fatalf("expected fallback cache capacity, got %d", cfg.CacheCapacity)
	}
}
