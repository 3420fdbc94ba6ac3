package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: "9090"
remote_api:
  base_url: "https://api.example.com/dev/"
  user_id: "user-7"
  knowledge_base_id: "KB42"
  timeout: 3s
store:
  driver: "memory"
upload:
  max_concurrency: 3
sync:
  tie_policy: "prefer_server"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadReadsFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "https://api.example.com/dev", cfg.RemoteAPI.BaseURL)
	assert.Equal(t, "user-7", cfg.RemoteAPI.UserID)
	assert.Equal(t, "KB42", cfg.RemoteAPI.KnowledgeBaseID)
	assert.Equal(t, 3*time.Second, cfg.RemoteAPI.Timeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Upload.MaxConcurrency)
	assert.Equal(t, "prefer_server", cfg.Sync.TiePolicy)

	// 未出现在文件中的键使用默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, int64(50<<20), cfg.Upload.MaxFileBytes)
	assert.Equal(t, "ecoadvisor-gateway", cfg.Telemetry.ServiceName)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ECOADVISOR_REMOTE_API_USER_ID", "env-user")
	t.Setenv("ECOADVISOR_STORE_DRIVER", "redis")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.RemoteAPI.UserID)
	assert.Equal(t, "redis", cfg.Store.Driver)
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("ECOADVISOR_REMOTE_API_BASE_URL", "http://localhost:4000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", cfg.RemoteAPI.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.RemoteAPI.Timeout)
	assert.Equal(t, "bolt", cfg.Store.Driver)
}

func TestLoadRequiresBaseURL(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: \"1\"\n"))
	assert.Error(t, err)
}
