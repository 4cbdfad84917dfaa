package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "threadgraph"}
	require.NoError(t, RegisterFlags(cmd))
	require.NoError(t, cmd.ParseFlags(args))
	return LoadConfig(cmd)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "enron.com", cfg.OrgDomain)
	assert.Equal(t, "*.", cfg.FilePattern)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Positive(t, cfg.Workers)
	assert.Len(t, cfg.Exclude, 30)
	assert.Equal(t, filepath.Join("output", "threadgraph.db"), cfg.DBPath)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tg.yaml")
	doc := "workers: 5\nbatch_size: 50\norg_domain: Example.COM\nexclude: []\nlog_level: WARNING\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := load(t, "--config", path, "--workers", "2", "--input", "data/maildir/")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers, "flag wins over file")
	assert.Equal(t, 50, cfg.BatchSize, "file wins over default")
	assert.Equal(t, "example.com", cfg.OrgDomain)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.Exclude)
	assert.Equal(t, filepath.Join("data", "maildir"), cfg.InputDir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad log level", []string{"--log-level", "loud"}},
		{"zero workers", []string{"--workers", "0"}},
		{"negative batch", []string{"--batch-size", "-1"}},
		{"empty db", []string{"--db", ""}},
		{"include and exclude", []string{"--include-body", "a", "--exclude-header", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestInputSource(t *testing.T) {
	t.Setenv("IMAP_PASS", "")

	cfg, err := load(t, "--input", "maildir")
	require.NoError(t, err)
	src, err := cfg.InputSource()
	require.NoError(t, err)
	assert.Equal(t, SourceDir, src)

	cfg, err = load(t, "--mbox", "a.mbox")
	require.NoError(t, err)
	src, err = cfg.InputSource()
	require.NoError(t, err)
	assert.Equal(t, SourceMbox, src)

	cfg, err = load(t)
	require.NoError(t, err)
	_, err = cfg.InputSource()
	assert.Error(t, err, "no source")

	cfg, err = load(t, "--input", "maildir", "--mbox", "a.mbox")
	require.NoError(t, err)
	_, err = cfg.InputSource()
	assert.Error(t, err, "two sources")

	cfg, err = load(t, "--imap-host", "mail.example.com", "--imap-user", "u")
	require.NoError(t, err)
	_, err = cfg.InputSource()
	assert.Error(t, err, "missing password")

	t.Setenv("IMAP_PASS", "secret")
	cfg, err = load(t, "--imap-host", "mail.example.com", "--imap-user", "u")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.IMAPPass)
	src, err = cfg.InputSource()
	require.NoError(t, err)
	assert.Equal(t, SourceIMAP, src)

	cfg, err = load(t, "--input", "maildir", "--pattern", "[")
	require.NoError(t, err)
	_, err = cfg.InputSource()
	assert.Error(t, err, "malformed pattern")
}
