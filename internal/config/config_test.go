package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.RAG.ChunkSize)
	assert.Equal(t, 80, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 10, cfg.RAG.RowsPerBlock)
	assert.Equal(t, 4, cfg.RAG.RetrievalK)
	assert.Equal(t, "strict", cfg.RAG.RefusalPolicy)
	assert.Equal(t, 15, cfg.Storage.MaxFilesPerUser)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[app]
port = 9090

[rag]
retrieval_k = 10
refusal_policy = "partial"

[storage]
data_dir = "/var/lib/docmind"
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRIEVAL_K", "6")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 6, cfg.RAG.RetrievalK)
	assert.Equal(t, "partial", cfg.RAG.RefusalPolicy)
	assert.Equal(t, "/var/lib/docmind", cfg.Storage.DataDir)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.LLM.APIKey)
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "[app\nport ="))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize
	cfg.RAG.RefusalPolicy = "lenient"
	cfg.Storage.MaxFilesPerUser = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
	assert.Contains(t, err.Error(), "refusal_policy")
	assert.Contains(t, err.Error(), "max_files_per_user")
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.Password = "pw"
	assert.Equal(t, "root:pw@tcp(127.0.0.1:3306)/docmind?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
}
