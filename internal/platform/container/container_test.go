package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsupport/guideline-rag/internal/infra/generation"
	"github.com/medsupport/guideline-rag/internal/infra/openai"
	"github.com/medsupport/guideline-rag/internal/platform/config"
	"github.com/medsupport/guideline-rag/internal/platform/database"
	"github.com/medsupport/guideline-rag/internal/platform/logger"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewContainerWithDB(t *testing.T) {
	cfg := loadConfig(t, nil)

	c, err := NewContainerWithDB(logger.Discard(), cfg, &database.Database{})
	require.NoError(t, err)

	assert.NotNil(t, c.SyncService)
	assert.NotNil(t, c.SearchService)
	assert.NotNil(t, c.AskService)
	assert.NotNil(t, c.Sessions)
	assert.NotNil(t, c.Documents)
	assert.Equal(t, cfg.Retrieval.Limit, c.SearchService.Limit())
	assert.Same(t, cfg, c.Config())
}

func TestNewGenerator(t *testing.T) {
	t.Run("disabled without endpoint", func(t *testing.T) {
		cfg := loadConfig(t, map[string]string{"GENERATION_SERVICE_URL": ""})
		g, err := newGenerator(cfg, logger.Discard(), nil)
		require.NoError(t, err)
		assert.Nil(t, g)
	})

	t.Run("http backend", func(t *testing.T) {
		cfg := loadConfig(t, map[string]string{"GENERATION_SERVICE_URL": "http://localhost:9000/generate"})
		g, err := newGenerator(cfg, logger.Discard(), nil)
		require.NoError(t, err)
		assert.IsType(t, &generation.Client{}, g)
	})

	t.Run("openai backend", func(t *testing.T) {
		cfg := loadConfig(t, map[string]string{
			"GENERATION_PROVIDER": "openai",
			"OPENAI_API_KEY":      "sk-test",
			"OPENAI_LLM_MODEL":    "gpt-4o",
			"OPENAI_TEMPERATURE":  "0.3",
		})
		g, err := newGenerator(cfg, logger.Discard(), nil)
		require.NoError(t, err)
		require.IsType(t, &openai.Generator{}, g)
		assert.Equal(t, "gpt-4o", g.(*openai.Generator).ModelName())
	})
}
