package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 5*time.Minute, cfg.RosterTTL)
	assert.Equal(t, 3*time.Minute, cfg.DetailTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SESSION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("STORE", "memory")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ROSTER_TTL", "90s")
	t.Setenv("WRITE_BURST", "not-a-number")
	t.Setenv("FAULT_RATE", "0.25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 90*time.Second, cfg.RosterTTL)
	assert.Equal(t, 20, cfg.WriteBurst)
	assert.Equal(t, 0.25, cfg.FaultRate)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing session key", map[string]string{"SESSION_KEY": ""}},
		{"unknown store", map[string]string{"STORE": "mongo"}},
		{"rest without url", map[string]string{"STORE": "rest", "REST_URL": "", "REST_KEY": "k"}},
		{"fault rate out of range", map[string]string{"FAULT_RATE": "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SESSION_KEY", "0123456789abcdef0123456789abcdef")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
