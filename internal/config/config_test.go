package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrimony/backend/internal/matching"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.False(t, cfg.UseMongo())
	assert.Equal(t, "matrimony", cfg.Mongo.Database)
	assert.Equal(t, 200, cfg.Search.Limit)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 7*24*time.Hour, cfg.Matching.StandardTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Matching.PriorityTTL)
	assert.Equal(t, matching.DefaultVIPRules(), cfg.Matching.VIPRules)

	hour, minute, err := cfg.Worker.NightlyClock()
	require.NoError(t, err)
	assert.Equal(t, 2, hour)
	assert.Equal(t, 0, minute)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DB", "matches_test")
	t.Setenv("MATCHD_WORKER_CONCURRENCY", "9")
	t.Setenv("MATCHD_MATCHING_PRIORITY_WAIT", "750ms")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.UseMongo())
	assert.Equal(t, "matches_test", cfg.Mongo.Database)
	assert.Equal(t, 9, cfg.Worker.Concurrency)
	assert.Equal(t, 750*time.Millisecond, cfg.Matching.PriorityWait)
}

func TestLoadFileWithVIPRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matchd.yaml")
	content := `
worker:
  nightly-at: "03:30"
matching:
  vip-rules:
    - type: verified
    - type: max_age_gap
      params:
        years: 6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Len(t, cfg.Matching.VIPRules, 2)
	assert.Equal(t, matching.RuleVerified, cfg.Matching.VIPRules[0].Type)
	assert.Equal(t, matching.RuleMaxAgeGap, cfg.Matching.VIPRules[1].Type)
	assert.EqualValues(t, 6, cfg.Matching.VIPRules[1].Params["years"])

	hour, minute, err := cfg.Worker.NightlyClock()
	require.NoError(t, err)
	assert.Equal(t, 3, hour)
	assert.Equal(t, 30, minute)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{name: "zero workers", key: "worker.concurrency", val: 0},
		{name: "bad clock", key: "worker.nightly-at", val: "25h"},
		{name: "lease shorter than job", key: "worker.lease", val: "30s"},
		{name: "lease equal to job", key: "worker.lease", val: "1m"},
		{name: "job timeout longer than lease", key: "worker.job-timeout", val: "5m"},
		{name: "no job timeout", key: "worker.job-timeout", val: "0s"},
		{name: "unknown vip rule", key: "matching.vip-rules", val: []map[string]interface{}{{"type": "astrology"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}
