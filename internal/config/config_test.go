package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", c.HTTP.Addr)
	require.Equal(t, 4001, c.Mesh.ListenPort)
	require.Equal(t, 10, c.Rate.MaxRequests)
	require.Equal(t, time.Minute, c.RateWindow())
	require.Equal(t, 3, c.Call.MaxAttempts)
	require.Equal(t, 30*time.Second, c.CallTimeout())
	require.Equal(t, 100*time.Millisecond, c.CallBaseDelay())
	require.Equal(t, 24*time.Hour, c.JWTTTL())
	require.Equal(t, "memory", c.Storage.Driver)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: prod
  service: gateway
jwt:
  secret: from-yaml
rate:
  max_requests: 50
call:
  timeout: 5s
`), 0o644))

	t.Setenv("RATE_MAX_REQUESTS", "7")
	t.Setenv("MESH_BOOTSTRAP_PEERS", "/ip4/10.0.0.1/tcp/4001/p2p/QmA, /ip4/10.0.0.2/tcp/4001/p2p/QmB")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "prod", c.App.Env)
	require.Equal(t, "from-yaml", c.JWT.Secret)
	require.Equal(t, 7, c.Rate.MaxRequests, "env var wins over yaml")
	require.Equal(t, 5*time.Second, c.CallTimeout())
	require.Len(t, c.Mesh.BootstrapPeers, 2)
	require.Equal(t, "/ip4/10.0.0.2/tcp/4001/p2p/QmB", c.Mesh.BootstrapPeers[1])
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)
}
