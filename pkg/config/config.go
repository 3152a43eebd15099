// Package config holds the single Config value an Engine is built from.
// Nothing in the rest of the module reads a process global or an
// environment variable directly — paths, thresholds and the logger all
// flow through here, created once at startup.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/walog"
)

// Config is the Engine's full configuration: directory layout, block
// sealing thresholds, durability policy and logging. Build one with New,
// which validates and sanitizes as required before the Engine ever opens
// a file.
type Config struct {
	// BufferDir holds the Write Buffer's WAL segments.
	BufferDir string
	// DatabaseDir holds the three sealed block families (cpb/csb/ctb).
	DatabaseDir string

	// DefaultEnvironment backs Sanitize's fallback when the requested
	// environment name sanitizes to empty.
	DefaultEnvironment string

	// BlockRecordThreshold seals the current block once it holds this
	// many records. Zero selects DefaultBlockRecordThreshold.
	BlockRecordThreshold int
	// SyncPolicy governs how aggressively the buffer fsyncs.
	SyncPolicy walog.SyncPolicy

	// Logger is the base logger every component derives a child from via
	// zerolog's With().Str("component", ...).
	Logger zerolog.Logger
}

// DefaultBlockRecordThreshold is the number of records a block family
// accumulates in memory before it is sealed to disk.
const DefaultBlockRecordThreshold = 4096

// Option mutates a Config under construction.
type Option func(*Config)

// WithBlockRecordThreshold overrides DefaultBlockRecordThreshold.
func WithBlockRecordThreshold(n int) Option {
	return func(c *Config) { c.BlockRecordThreshold = n }
}

// WithSyncPolicy overrides the buffer's default sync policy.
func WithSyncPolicy(p walog.SyncPolicy) Option {
	return func(c *Config) { c.SyncPolicy = p }
}

// WithLogOutput replaces the default stderr console writer.
func WithLogOutput(w io.Writer) Option {
	return func(c *Config) {
		c.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

// New validates bufferDir, databaseDir and defaultEnvironment and builds
// a Config. It fails fast — as a ConfigurationError — on any layout or
// environment-name problem so the Engine never opens a single file
// against an invalid configuration.
func New(bufferDir, databaseDir, defaultEnvironment string, opts ...Option) (*Config, error) {
	bufferDir = filepath.Clean(bufferDir)
	databaseDir = filepath.Clean(databaseDir)

	if bufferDir == databaseDir {
		return nil, &lerrors.ConfigurationError{Reason: "bufferDir and databaseDir must be distinct"}
	}
	if isAncestor(bufferDir, databaseDir) || isAncestor(databaseDir, bufferDir) {
		return nil, &lerrors.ConfigurationError{Reason: fmt.Sprintf("bufferDir %q and databaseDir %q must not be prefixes of one another", bufferDir, databaseDir)}
	}

	sanitizedDefault := Sanitize(defaultEnvironment)
	if sanitizedDefault == "" {
		return nil, &lerrors.ConfigurationError{Reason: fmt.Sprintf("defaultEnvironment %q sanitizes to empty", defaultEnvironment)}
	}

	cfg := &Config{
		BufferDir:            bufferDir,
		DatabaseDir:          databaseDir,
		DefaultEnvironment:   sanitizedDefault,
		BlockRecordThreshold: DefaultBlockRecordThreshold,
		SyncPolicy:           walog.SyncEveryWrite,
		Logger:               zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// isAncestor reports whether base is base-or-ancestor-of target.
func isAncestor(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// Sanitize keeps only [A-Za-z0-9_] from x, dropping everything else, per
// the environment-name rule: "$_%&test_@envir==--onment*_*" becomes
// "_test_environment_". An empty or all-dropped input yields "".
func Sanitize(x string) string {
	var b strings.Builder
	b.Grow(len(x))
	for _, r := range x {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Environment sanitizes name, falling back to cfg.DefaultEnvironment
// (itself already sanitized and verified non-empty by New) when name
// sanitizes to empty.
func (c *Config) Environment(name string) string {
	if s := Sanitize(name); s != "" {
		return s
	}
	return c.DefaultEnvironment
}

// ComponentLogger returns a child logger tagged with component, the way
// every package in the module identifies its log lines.
func (c *Config) ComponentLogger(component string) zerolog.Logger {
	return c.Logger.With().Str("component", component).Logger()
}
