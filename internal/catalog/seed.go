package catalog

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type seedFile struct {
	Stores []Store `toml:"stores"`
}

// LoadSeed reads a TOML file of stores with their models.
func LoadSeed(path string) ([]Store, error) {
	var raw seedFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load seed: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load seed: unknown key %q", undecoded[0].String())
	}

	seen := make(map[string]bool, len(raw.Stores))
	for _, s := range raw.Stores {
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("load seed: %w", err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("load seed: duplicate store %q", s.ID)
		}
		seen[s.ID] = true
	}
	return raw.Stores, nil
}
