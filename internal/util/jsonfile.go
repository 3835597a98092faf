package util

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WriteJSONFile marshals v as indented JSON and writes it to path,
// creating parent directories as needed.
func WriteJSONFile(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
