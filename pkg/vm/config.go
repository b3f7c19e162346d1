package vm

import (
	"os"
	"strconv"
)

// Config holds the tunable policy constants of the shape and IC runtime.
// Defaults can be overridden through environment variables.
type Config struct {
	// MaxPolymorphicEntries controls how many classes a site tracks before going megamorphic.
	MaxPolymorphicEntries int
	// MaxFastProperties is the largest property count kept in fast (layout) mode.
	MaxFastProperties uint32
	// DefaultInlineProps is the inline slot count of plain object roots.
	DefaultInlineProps uint32
	// DetailedCacheStats enables per-state hit counters.
	DetailedCacheStats bool
	// DebugAssertions makes logic assertions fatal.
	DebugAssertions bool
}

// DefaultConfig returns the configuration derived from the environment.
func DefaultConfig() Config {
	return Config{
		MaxPolymorphicEntries: getEnvInt("PASERATI_MAX_POLY_ENTRIES", 4),
		MaxFastProperties:     uint32(getEnvInt("PASERATI_MAX_FAST_PROPS", 128)),
		DefaultInlineProps:    uint32(getEnvInt("PASERATI_DEFAULT_INLINE_PROPS", 4)),
		DetailedCacheStats:    getEnvBool("PASERATI_DETAILED_CACHE_STATS", false),
		DebugAssertions:       getEnvBool("PASERATI_DEBUG_ASSERT", false),
	}
}

func (c Config) normalize() Config {
	if c.MaxPolymorphicEntries < 1 {
		c.MaxPolymorphicEntries = 1
	}
	if c.MaxFastProperties == 0 {
		c.MaxFastProperties = 128
	}
	if c.MaxFastProperties > MaxOffset {
		c.MaxFastProperties = MaxOffset
	}
	return c
}

// getEnvBool reads a boolean environment variable with a default value
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvInt reads an integer environment variable with a default value
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i >= 0 {
			return i
		}
	}
	return defaultVal
}
