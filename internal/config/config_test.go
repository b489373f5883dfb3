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
	path := filepath.Join(t.TempDir(), "rrrd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadInstances(t *testing.T) {
	path := writeConfig(t, `
hostname = "node-1"
data-dir = "/var/lib/rrrd"

[[instance]]
name = "reader"
module = "file_reader"
type = "source"
start_priority = 1

[[instance]]
name = "writer"
module = "mqtt_writer"
type = "deadend"
senders = ["reader"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-1", cfg.Hostname)
	require.Len(t, cfg.Instance, 2)
	assert.Equal(t, "reader", cfg.Instance[0].Name)
	assert.Equal(t, []string{"reader"}, cfg.Instance[1].Senders)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
hostname = "node-1"
no_such_key = true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	c := NewConfig()
	c.Instance = InstanceList{
		{Name: "a", Module: "m", Type: "source"},
		{Name: "a", Module: "m", Type: "source"},
	}
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownType(t *testing.T) {
	c := InstanceConfig{Name: "a", Module: "m", Type: "sink"}
	assert.Error(t, c.Validate())
}
