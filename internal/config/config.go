// Package config resolves server and client settings.
//
// Every value is read with the same priority:
//  1. command-line flags (passed in via Options)
//  2. environment variables
//  3. built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server defaults.
const (
	DefaultPort            = 3000
	DefaultMaxUsers        = 3
	DefaultRoomTimeout     = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
	DefaultShutdownTimeout = 10 * time.Second
)

// Client defaults.
const (
	DefaultServerURL = "ws://localhost:3000/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Server holds the coordinating service's configuration.
type Server struct {
	Port            int
	MaxUsers        int
	RoomTimeout     time.Duration
	CleanupInterval time.Duration
	KeepEmptyRooms  bool
	ShutdownTimeout time.Duration
}

// ServerOptions carries flag values. Zero values mean "not set".
type ServerOptions struct {
	Port            int
	MaxUsers        int
	RoomTimeout     time.Duration
	CleanupInterval time.Duration
	KeepEmptyRooms  bool
	ShutdownTimeout time.Duration
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// LoadServer resolves the server configuration.
func LoadServer(opts ServerOptions) (*Server, error) {
	port, err := intSetting(opts.Port, "PORT", DefaultPort)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	maxUsers, err := intSetting(opts.MaxUsers, "MAX_USERS_PER_ROOM", DefaultMaxUsers)
	if err != nil {
		return nil, err
	}
	if maxUsers < 2 {
		return nil, fmt.Errorf("max users per room must be at least 2, got %d", maxUsers)
	}

	timeout, err := durationSetting(opts.RoomTimeout, "ROOM_TIMEOUT", DefaultRoomTimeout, time.Millisecond)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("room timeout must be positive, got %s", timeout)
	}
	interval, err := durationSetting(opts.CleanupInterval, "CLEANUP_INTERVAL", DefaultCleanupInterval, time.Millisecond)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("cleanup interval must be positive, got %s", interval)
	}
	keep, err := boolSetting(opts.KeepEmptyRooms, "KEEP_EMPTY_ROOMS")
	if err != nil {
		return nil, err
	}

	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = DefaultShutdownTimeout
	}

	return &Server{
		Port:            port,
		MaxUsers:        maxUsers,
		RoomTimeout:     timeout,
		CleanupInterval: interval,
		KeepEmptyRooms:  keep,
		ShutdownTimeout: shutdown,
	}, nil
}

// Client holds the chat client's configuration.
type Client struct {
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// RelayOnly never dials direct channels; every message goes via the server.
	RelayOnly bool

	// ForceTURN restricts ICE to relay candidates.
	ForceTURN bool

	// DeleteAfter is the default self-destruct timer for sent messages.
	DeleteAfter time.Duration
}

// ClientOptions carries flag values. Zero values mean "not set".
type ClientOptions struct {
	ServerURL   string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	RelayOnly   bool
	ForceTURN   bool
	DeleteAfter time.Duration
}

// LoadClient resolves the client configuration.
func LoadClient(opts ClientOptions) (*Client, error) {
	serverURL, err := normalizeServerURL(stringSetting(opts.ServerURL, "VANISH_SERVER", DefaultServerURL))
	if err != nil {
		return nil, err
	}

	relayOnly, err := boolSetting(opts.RelayOnly, "VANISH_RELAY_ONLY")
	if err != nil {
		return nil, err
	}

	deleteAfter, err := durationSetting(opts.DeleteAfter, "VANISH_DELETE_AFTER", 0, time.Second)
	if err != nil {
		return nil, err
	}
	if deleteAfter < 0 {
		return nil, fmt.Errorf("delete-after must not be negative, got %s", deleteAfter)
	}

	return &Client{
		ServerURL:   serverURL,
		STUNServer:  stringSetting(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:  stringSetting(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:    stringSetting(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:    stringSetting(opts.TURNPass, "TURN_PASSWORD", ""),
		RelayOnly:   relayOnly,
		ForceTURN:   opts.ForceTURN,
		DeleteAfter: deleteAfter,
	}, nil
}

// GetSTUNServers returns STUN server URLs.
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare host expands
// to the usual UDP, TCP and TLS endpoints.
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.HasPrefix(c.TURNServer, "turn:") || strings.HasPrefix(c.TURNServer, "turns:") {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password.
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// InfoURL is the server's informational endpoint derived from ServerURL.
func (c *Client) InfoURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/api/server-info"
	u.RawQuery = ""
	return u.String()
}

// normalizeServerURL accepts ws(s):// and http(s):// URLs as well as a bare
// host[:port], and returns the websocket endpoint.
func normalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func stringSetting(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func intSetting(flag int, env string, def int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		return n, nil
	}
	return def, nil
}

// durationSetting accepts Go durations ("90s", "24h") in the environment, or
// a plain number counted in unit.
func durationSetting(flag time.Duration, env string, def, unit time.Duration) (time.Duration, error) {
	if flag != 0 {
		return flag, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	return d, nil
}

func boolSetting(flag bool, env string) (bool, error) {
	if flag {
		return true, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	return b, nil
}
