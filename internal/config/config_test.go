package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_TOKEN", "tok")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7070", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, time.Second, cfg.ReconnectBase)
	assert.Equal(t, 2.0, cfg.ReconnectFactor)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMax)
	assert.Equal(t, 10, cfg.ReconnectAttempts)
	assert.Equal(t, 5, cfg.SendRetryCeiling)
	assert.Equal(t, 5*time.Minute, cfg.InactivityTimeout)
	assert.Equal(t, 50, cfg.PageSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_TOKEN", "tok")
	t.Setenv("ACK_TIMEOUT", "3s")
	t.Setenv("PAGE_SIZE", "20")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/mmsync")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.AckTimeout)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, "postgres", cfg.StorageDriver)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no token", map[string]string{}, "AUTH_TOKEN"},
		{"bad duration", map[string]string{"AUTH_TOKEN": "t", "ACK_TIMEOUT": "soon"}, "ACK_TIMEOUT"},
		{"bad number", map[string]string{"AUTH_TOKEN": "t", "PAGE_SIZE": "many"}, "PAGE_SIZE"},
		{"page too big", map[string]string{"AUTH_TOKEN": "t", "PAGE_SIZE": "1000"}, "PAGE_SIZE"},
		{"unknown driver", map[string]string{"AUTH_TOKEN": "t", "STORAGE_DRIVER": "mongo"}, "STORAGE_DRIVER"},
		{"postgres without dsn", map[string]string{"AUTH_TOKEN": "t", "STORAGE_DRIVER": "postgres"}, "POSTGRES_DSN"},
		{"max below base", map[string]string{"AUTH_TOKEN": "t", "RECONNECT_BASE": "1m", "RECONNECT_MAX": "1s"}, "RECONNECT_BASE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
