package exporter_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8000", cfg.Server.HTTPAddr)
	require.Equal(t, "https://gitlab.com/api/v4/", cfg.GitLab.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Poll.Interval)
	require.Equal(t, 3, cfg.GitLab.TokenAttempts)
	require.Equal(t, "gitlab.ci.records", cfg.Kafka.Topic)
	require.False(t, cfg.Kafka.Enable)
	require.False(t, cfg.Archive.Enable)
	require.Zero(t, cfg.Poll.WatchMaxAge)
	require.False(t, cfg.GitLab.InsecureSkipVerify)
	require.ErrorIs(t, cfg.Validate(), ErrNoGroup)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("GROUP_ID", "1234")
	t.Setenv("PRIVATE_ACCESS_TOKEN", "glpat-a, glpat-b")
	t.Setenv("IGNORED_SUBGROUPS_PATH_LIST", "acme/legacy,acme/sandbox")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, int64(1234), cfg.Source.GroupID)
	require.Equal(t, []string{"glpat-a", "glpat-b"}, cfg.Source.Tokens)
	require.Equal(t, []string{"acme/legacy", "acme/sandbox"}, cfg.Source.IgnoredSubgroups)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NestedEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  group_id: 7
  tokens: [from-file]
poll:
  interval: 1m
  overlap_pages: 1
archive:
  enable: true
  db:
    dsn: postgres://localhost/ci
`), 0o600))
	t.Setenv("POLL_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(7), cfg.Source.GroupID)
	require.Equal(t, []string{"from-file"}, cfg.Source.Tokens)
	require.Equal(t, 45*time.Second, cfg.Poll.Interval)
	require.Equal(t, 1, cfg.Poll.OverlapPages)
	require.Equal(t, "postgres://localhost/ci", cfg.Archive.DB.URL)
	require.NoError(t, cfg.Validate())
}

func TestValidate_OptionalSinks(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Source.GroupID = 1
	cfg.Source.Tokens = []string{"t"}

	cfg.Kafka.Enable = true
	cfg.Kafka.Brokers = nil
	require.ErrorIs(t, cfg.Validate(), ErrBrokers)

	cfg.Kafka.Enable = false
	cfg.Archive.Enable = true
	require.ErrorIs(t, cfg.Validate(), ErrDSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
