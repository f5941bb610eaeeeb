package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BIOSTAR_TIMEOUT", "")
	t.Setenv("CAMPUS_UTC_OFFSET", "")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.BiostarTimeout)
	assert.Equal(t, 5*time.Second, cfg.BiostarRetryDelay)
	assert.Equal(t, 3, cfg.BiostarMaxAttempts)
	assert.Equal(t, 8, cfg.CampusUTCOffset)
	assert.Equal(t, 30*time.Minute, cfg.AdmissionWindow)
	assert.Equal(t, 10*time.Minute, cfg.RegistryTTL)
	assert.Equal(t, "sqlserver", cfg.SourceDriver)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("BIOSTAR_TIMEOUT", "10s")
	t.Setenv("BIOSTAR_MAX_ATTEMPTS", "five")
	t.Setenv("BIOSTAR_INSECURE_TLS", "true")
	t.Setenv("SYNC_SLOT1_TIME", "07:30")

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.BiostarTimeout)
	assert.Equal(t, 3, cfg.BiostarMaxAttempts)
	assert.True(t, cfg.BiostarInsecureTLS)
	assert.Equal(t, "07:30", cfg.Slot1Time)
}
