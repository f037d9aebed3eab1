package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.JoinTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.AttendanceDelay)
	assert.Equal(t, "meet.jit.si", cfg.JitsiDomain)
	assert.Equal(t, "classhub", cfg.RoomPrefix)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("JOIN_TOKEN_TTL", "90s")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("JITSI_DOMAIN", "meet.example.org")

	cfg := Load()
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 90*time.Second, cfg.JoinTokenTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.Equal(t, "meet.example.org", cfg.JitsiDomain)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("JOIN_TOKEN_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.JoinTokenTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}
