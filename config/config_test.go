package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"SUPABASE_URL": "https://abc.supabase.co/",
	}))
	require.NoError(t, err)

	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, ":5200", cfg.ListenAddr())
	assert.Equal(t, "auto", cfg.StorageRegion)
	assert.Equal(t, "mission_proofs", cfg.EvidenceBucket)
	assert.Equal(t, "avatars", cfg.AvatarBucket)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.OrphanSweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.OrphanGracePeriod)
	assert.Equal(t, 2*time.Second, cfg.FeedPollInterval)
	assert.Equal(t, "https://abc.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "https://abc.supabase.co/storage/v1/s3", cfg.StorageEndpoint)
	assert.Equal(t, "https://abc.supabase.co/storage/v1/object/public", cfg.StoragePublicBaseURL)
}

func TestFromEnvParsesLists(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"ALLOWED_ORIGINS":       " https://painel.eco , ,http://localhost:3000",
		"ORPHAN_SWEEP_INTERVAL": "15m",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://painel.eco", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.OrphanSweepInterval)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{
		"PORT":               "http",
		"FEED_POLL_INTERVAL": "-1s",
		"LOG_FORMAT":         "xml",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "FEED_POLL_INTERVAL")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestValidateListsEveryMissingVariable(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{}))
	require.NoError(t, err)

	err = cfg.Validate(NeedDatabase)
	require.Error(t, err)
	assert.Equal(t, "missing required environment variables: DATABASE_URL", err.Error())

	err = cfg.Validate(NeedServer)
	require.Error(t, err)
	for _, key := range []string{"DATABASE_URL", "SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_SERVICE_ROLE_KEY", "STORAGE_ACCESS_KEY_ID"} {
		assert.Contains(t, err.Error(), key)
	}

	cfg.DatabaseURL = "postgres://x"
	assert.NoError(t, cfg.Validate(NeedDatabase))
}
