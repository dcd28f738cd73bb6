package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every externally supplied knob.
type Config struct {
	Store     *StoreConfig     `json:"store"`
	Session   *SessionConfig   `json:"session"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
}

// StoreConfig configures the session document store.
type StoreConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// SessionConfig configures document expiration and the inactivity sweep.
type SessionConfig struct {
	TTL                 time.Duration `json:"ttl"`
	InactivityThreshold time.Duration `json:"inactivity_threshold"`
	SweepInterval       time.Duration `json:"sweep_interval"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// WebSocketConfig configures the transport heartbeat and buffering.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteBuffer  int           `json:"write_buffer"`
}

// DefaultConfig returns the design defaults: 24h document expiration, 10
// minute inactivity threshold, sweep once per minute.
func DefaultConfig() *Config {
	return &Config{
		Store: &StoreConfig{
			Path:    "./pointcast.db",
			Timeout: 30 * time.Second,
		},
		Session: &SessionConfig{
			TTL:                 24 * time.Hour,
			InactivityThreshold: 10 * time.Minute,
			SweepInterval:       time.Minute,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteBuffer:  100,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Store == nil || c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.InactivityThreshold <= 0 {
		return fmt.Errorf("inactivity threshold must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteBuffer <= 0 {
		return fmt.Errorf("WebSocket write buffer must be positive")
	}

	return nil
}

// LoadFromEnv overlays POINTCAST_* environment variables onto the defaults.
// Unparseable values fall back silently.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if path := os.Getenv("POINTCAST_STORE_PATH"); path != "" {
		config.Store.Path = path
	}
	setDuration(&config.Store.Timeout, "POINTCAST_STORE_TIMEOUT")
	setDuration(&config.Session.TTL, "POINTCAST_SESSION_TTL")
	setDuration(&config.Session.InactivityThreshold, "POINTCAST_INACTIVITY_THRESHOLD")
	setDuration(&config.Session.SweepInterval, "POINTCAST_SWEEP_INTERVAL")

	if host := os.Getenv("POINTCAST_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("POINTCAST_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	setDuration(&config.HTTP.ReadTimeout, "POINTCAST_HTTP_READ_TIMEOUT")
	setDuration(&config.HTTP.WriteTimeout, "POINTCAST_HTTP_WRITE_TIMEOUT")

	setDuration(&config.WebSocket.PingInterval, "POINTCAST_WEBSOCKET_PING_INTERVAL")
	setDuration(&config.WebSocket.ReadTimeout, "POINTCAST_WEBSOCKET_READ_TIMEOUT")
	if buffer := os.Getenv("POINTCAST_WEBSOCKET_WRITE_BUFFER"); buffer != "" {
		if b, err := strconv.Atoi(buffer); err == nil {
			config.WebSocket.WriteBuffer = b
		}
	}

	return config
}

func setDuration(target *time.Duration, envVar string) {
	if value := os.Getenv(envVar); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*target = d
		}
	}
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Store *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"store"`
	Session *struct {
		TTL                 string `json:"ttl"`
		InactivityThreshold string `json:"inactivity_threshold"`
		SweepInterval       string `json:"sweep_interval"`
	} `json:"session"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteBuffer  int    `json:"write_buffer"`
	} `json:"websocket"`
}

// LoadFromFile parses a JSON config file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if file.Store != nil {
		if file.Store.Path != "" {
			config.Store.Path = file.Store.Path
		}
		parseDuration(&config.Store.Timeout, file.Store.Timeout)
	}
	if file.Session != nil {
		parseDuration(&config.Session.TTL, file.Session.TTL)
		parseDuration(&config.Session.InactivityThreshold, file.Session.InactivityThreshold)
		parseDuration(&config.Session.SweepInterval, file.Session.SweepInterval)
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		parseDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		parseDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.WebSocket != nil {
		parseDuration(&config.WebSocket.PingInterval, file.WebSocket.PingInterval)
		parseDuration(&config.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		if file.WebSocket.WriteBuffer > 0 {
			config.WebSocket.WriteBuffer = file.WebSocket.WriteBuffer
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func parseDuration(target *time.Duration, value string) {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*target = d
		}
	}
}

// Load resolves configuration with precedence: file > environment > defaults.
func Load(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
