// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/auricle/auricle/internal/util"
)

type Config struct {
	Viewer Viewer `json:"viewer"`
	Audio  Audio  `json:"audio"`
	Window Window `json:"window"`
}

// Viewer controls the loopback relay's diagnostic surface.
type Viewer struct {
	Debug bool `json:"debug"`
}

// Audio controls preload sizing, default volume, and device exclusion.
type Audio struct {
	DefaultVolumePercent int      `json:"default_volume_percent"`
	PreloadBytes         int      `json:"preload_bytes"`
	DeviceExclusionIDs   []string `json:"device_exclusion_ids"`
}

// Window controls the embedded desktop shell.
type Window struct {
	Title string `json:"title"`
}

const defaultPreloadBytes = 512 * 1024

func Default() Config {
	return Config{
		Viewer: Viewer{
			Debug: false,
		},
		Audio: Audio{
			DefaultVolumePercent: 100,
			PreloadBytes:         defaultPreloadBytes,
			DeviceExclusionIDs:   []string{"openal"},
		},
		Window: Window{
			Title: "Auricle",
		},
	}
}

func (c *Config) Validate() error {
	if c.Audio.DefaultVolumePercent < 0 || c.Audio.DefaultVolumePercent > 100 {
		return errors.New("audio.default_volume_percent must be 0..100")
	}
	if c.Audio.PreloadBytes <= 0 {
		return errors.New("audio.preload_bytes must be > 0")
	}
	for i, id := range c.Audio.DeviceExclusionIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("audio.device_exclusion_ids[%d] is empty", i)
		}
	}
	if strings.TrimSpace(c.Window.Title) == "" {
		return errors.New("window.title is required")
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
