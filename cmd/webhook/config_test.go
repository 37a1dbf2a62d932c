package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardgateio/guardgate/internal/policy/criteria"
	"github.com/guardgateio/guardgate/internal/policy/ndots"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPolicyConfig_EmptyPath(t *testing.T) {
	cfg, err := loadPolicyConfig("")

	require.NoError(t, err)
	assert.Nil(t, cfg.Labels)
	assert.Nil(t, cfg.Annotations)
	assert.Nil(t, cfg.PodNdots)
}

func TestLoadPolicyConfig_FullConfig(t *testing.T) {
	path := writeConfigFile(t, `
labels:
  operator: containsAllOf
  values: ["team", "owner"]
annotations:
  operator: containsNoneOf
  values: ["debug"]
podNdots:
  ndots: 2
`)

	cfg, err := loadPolicyConfig(path)

	require.NoError(t, err)
	require.NotNil(t, cfg.Labels)
	assert.Equal(t, criteria.ContainsAllOf, cfg.Labels.Operator)
	assert.Equal(t, []string{"team", "owner"}, cfg.Labels.Values)
	require.NotNil(t, cfg.Annotations)
	assert.Equal(t, criteria.ContainsNoneOf, cfg.Annotations.Operator)
	require.NotNil(t, cfg.PodNdots)
	assert.Equal(t, 2, cfg.PodNdots.Value())
}

func TestLoadPolicyConfig_NdotsDefault(t *testing.T) {
	path := writeConfigFile(t, `
podNdots: {}
`)

	cfg, err := loadPolicyConfig(path)

	require.NoError(t, err)
	require.NotNil(t, cfg.PodNdots)
	assert.Equal(t, ndots.DefaultNdots, cfg.PodNdots.Value())
}

func TestLoadPolicyConfig_MissingFile(t *testing.T) {
	_, err := loadPolicyConfig(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestLoadPolicyConfig_Unparseable(t *testing.T) {
	path := writeConfigFile(t, "labels: [not: a: rule")

	_, err := loadPolicyConfig(path)

	assert.Error(t, err)
}
