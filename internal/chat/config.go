package chat

import (
	"os"
	"strconv"
	"time"
	"unicode/utf8"
)

// Config holds the runtime knobs for the chat server.
type Config struct {
	Addr                 string
	MetricsAddr          string
	WriteTimeout         time.Duration
	MaxLineLength        int
	MaxWriteBuffer       int
	BroadcastConcurrency int
}

const (
	defaultAddr                 = "127.0.0.1:6969"
	defaultWriteTimeout         = 5 * time.Second
	defaultMaxLineLength        = 4096
	defaultMaxWriteBuffer       = 64 * 1024
	defaultBroadcastConcurrency = 32

	// "<name>: " plus "\n" for the longest accepted name in 4-byte runes.
	maxFrameOverhead = (maxNameLen-1)*utf8.UTFMax + len(": ") + len("\n")
)

func DefaultConfig() Config {
	return Config{
		Addr:                 defaultAddr,
		WriteTimeout:         defaultWriteTimeout,
		MaxLineLength:        defaultMaxLineLength,
		MaxWriteBuffer:       defaultMaxWriteBuffer,
		BroadcastConcurrency: defaultBroadcastConcurrency,
	}
}

// ConfigFromEnv starts from DefaultConfig and applies any CHAT_* variables
// that are set. Unparseable or non-positive values keep the default.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if addr := os.Getenv("CHAT_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if v := os.Getenv("CHAT_WRITE_TIMEOUT"); v != "" {
		cfg.WriteTimeout = time.Duration(parseIntValue(v, int(defaultWriteTimeout/time.Second))) * time.Second
	}
	if v := os.Getenv("CHAT_MAX_LINE"); v != "" {
		cfg.MaxLineLength = parseIntValue(v, cfg.MaxLineLength)
	}
	if v := os.Getenv("CHAT_MAX_WRITE_BUFFER"); v != "" {
		cfg.MaxWriteBuffer = parseIntValue(v, cfg.MaxWriteBuffer)
	}
	if v := os.Getenv("CHAT_BROADCAST_CONCURRENCY"); v != "" {
		cfg.BroadcastConcurrency = parseIntValue(v, cfg.BroadcastConcurrency)
	}

	return cfg
}

func (c Config) sanitize() Config {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = defaultMaxLineLength
	}
	if c.MaxWriteBuffer <= 0 {
		c.MaxWriteBuffer = defaultMaxWriteBuffer
	}
	// The write buffer must hold the largest chat frame the worker can build.
	if floor := c.MaxLineLength + maxFrameOverhead; c.MaxWriteBuffer < floor {
		c.MaxWriteBuffer = floor
	}
	if c.BroadcastConcurrency <= 0 {
		c.BroadcastConcurrency = defaultBroadcastConcurrency
	}
	return c
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
