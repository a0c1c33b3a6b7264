package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearServerEnv(t *testing.T) {
	for _, k := range []string{"PORT", "MAX_USERS_PER_ROOM", "ROOM_TIMEOUT", "CLEANUP_INTERVAL", "KEEP_EMPTY_ROOMS"} {
		t.Setenv(k, "")
	}
}

func clearClientEnv(t *testing.T) {
	for _, k := range []string{"VANISH_SERVER", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD", "VANISH_RELAY_ONLY", "VANISH_DELETE_AFTER"} {
		t.Setenv(k, "")
	}
}

func TestLoadServerDefaults(t *testing.T) {
	clearServerEnv(t)

	cfg, err := LoadServer(ServerOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, 3, cfg.MaxUsers)
	assert.Equal(t, 24*time.Hour, cfg.RoomTimeout)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.False(t, cfg.KeepEmptyRooms)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadServerPriority(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("MAX_USERS_PER_ROOM", "5")
	t.Setenv("ROOM_TIMEOUT", "60000")
	t.Setenv("CLEANUP_INTERVAL", "5m")
	t.Setenv("KEEP_EMPTY_ROOMS", "true")

	cfg, err := LoadServer(ServerOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, 5, cfg.MaxUsers)
	assert.Equal(t, time.Minute, cfg.RoomTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.True(t, cfg.KeepEmptyRooms)

	cfg, err = LoadServer(ServerOptions{Port: 5000, MaxUsers: 2, RoomTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 2, cfg.MaxUsers)
	assert.Equal(t, time.Second, cfg.RoomTimeout)
}

func TestLoadServerRejectsBadValues(t *testing.T) {
	clearServerEnv(t)

	_, err := LoadServer(ServerOptions{MaxUsers: 1})
	assert.Error(t, err)

	t.Setenv("PORT", "http")
	_, err = LoadServer(ServerOptions{})
	assert.Error(t, err)

	t.Setenv("PORT", "70000")
	_, err = LoadServer(ServerOptions{})
	assert.Error(t, err)

	t.Setenv("PORT", "")
	t.Setenv("KEEP_EMPTY_ROOMS", "maybe")
	_, err = LoadServer(ServerOptions{})
	assert.Error(t, err)

	t.Setenv("KEEP_EMPTY_ROOMS", "true")
	for _, v := range []string{"0", "-5", "-1s"} {
		t.Setenv("CLEANUP_INTERVAL", v)
		_, err = LoadServer(ServerOptions{})
		assert.ErrorContains(t, err, "cleanup interval", v)
	}
	t.Setenv("CLEANUP_INTERVAL", "")

	_, err = LoadServer(ServerOptions{CleanupInterval: -time.Second})
	assert.ErrorContains(t, err, "cleanup interval")

	t.Setenv("ROOM_TIMEOUT", "0")
	_, err = LoadServer(ServerOptions{})
	assert.ErrorContains(t, err, "room timeout")

	_, err = LoadServer(ServerOptions{RoomTimeout: -time.Minute})
	assert.ErrorContains(t, err, "room timeout")
}

func TestLoadClientDefaults(t *testing.T) {
	clearClientEnv(t)

	cfg, err := LoadClient(ClientOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
	assert.False(t, cfg.RelayOnly)
	assert.Zero(t, cfg.DeleteAfter)
	assert.Equal(t, "http://localhost:3000/api/server-info", cfg.InfoURL())
}

func TestLoadClientEnvAndFlags(t *testing.T) {
	clearClientEnv(t)
	t.Setenv("VANISH_SERVER", "https://chat.example.com")
	t.Setenv("TURN_SERVER", "turn.example.com")
	t.Setenv("TURN_USERNAME", "user")
	t.Setenv("TURN_PASSWORD", "pass")
	t.Setenv("VANISH_RELAY_ONLY", "1")
	t.Setenv("VANISH_DELETE_AFTER", "30")

	cfg, err := LoadClient(ClientOptions{})
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.ServerURL)
	assert.Equal(t, "https://chat.example.com/api/server-info", cfg.InfoURL())
	assert.True(t, cfg.RelayOnly)
	assert.Equal(t, 30*time.Second, cfg.DeleteAfter)
	assert.Len(t, cfg.GetTURNServers(), 3)
	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "user", user)
	assert.Equal(t, "pass", pass)

	cfg, err = LoadClient(ClientOptions{
		ServerURL:   "192.168.1.5:3000",
		TURNServer:  "turn:relay.example.com:3478",
		DeleteAfter: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.1.5:3000/ws", cfg.ServerURL)
	assert.Equal(t, []string{"turn:relay.example.com:3478"}, cfg.GetTURNServers())
	assert.Equal(t, 5*time.Second, cfg.DeleteAfter)
}

func TestLoadClientRejectsBadURL(t *testing.T) {
	clearClientEnv(t)

	_, err := LoadClient(ClientOptions{ServerURL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = LoadClient(ClientOptions{DeleteAfter: -time.Second})
	assert.Error(t, err)
}
