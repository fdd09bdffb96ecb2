package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/cmdpanel/internal/commands"
)

const seedFileVersion = 1

// seedFile is the TOML layout of a command definitions file.
type seedFile struct {
	Version  int             `toml:"version"`
	Commands []commands.Seed `toml:"commands"`
}

// LoadSeedFile reads command definitions from path. A missing file yields no
// seeds and no error.
func LoadSeedFile(path string) ([]commands.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f seedFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if f.Version > seedFileVersion {
		return nil, fmt.Errorf("unsupported seed file version %d", f.Version)
	}
	return f.Commands, nil
}

// SaveSeedFile writes command definitions to path.
func SaveSeedFile(path string, seeds []commands.Seed) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create seed file directory: %w", err)
	}

	data, err := toml.Marshal(seedFile{Version: seedFileVersion, Commands: seeds})
	if err != nil {
		return fmt.Errorf("failed to marshal seed file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write seed file: %w", err)
	}
	return nil
}
