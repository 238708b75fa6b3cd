package configs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SaveTOML saves a struct to a TOML file. The file is written to a temporary
// sibling first and renamed into place, so readers never observe a partial
// document. Files are created 0600.
func SaveTOML(filePath string, data interface{}) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, ".tmp-*.toml")
	if err != nil {
		return err
	}
	tmpName := file.Name()
	defer os.Remove(tmpName)

	if err := toml.NewEncoder(file).Encode(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(filePath), err)
	}
	if err := file.Chmod(0600); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, filePath)
}

// LoadTOML loads a TOML file into a struct.
func LoadTOML(filePath string, data interface{}) error {
	_, err := toml.DecodeFile(filePath, data)
	return err
}
