package main

import (
	"path/filepath"

	"github.com/lattice-db/lattice/pkg/config"
	"github.com/lattice-db/lattice/pkg/engine"
)

// openEngine builds the Config for the named environment (buffer/database
// directories namespaced under a sanitized subdirectory, per the
// specification's "named, isolated instance" environment model) and
// opens an Engine against it.
func openEngine() (*engine.Engine, error) {
	env := config.Sanitize(flagEnvironment)
	if env == "" {
		env = "default"
	}
	cfg, err := config.New(
		filepath.Join(flagBufferDir, env),
		filepath.Join(flagDatabaseDir, env),
		env,
	)
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg)
}
