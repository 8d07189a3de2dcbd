// Package config holds the tube generation settings and loads them from
// JSON, YAML or TOML files.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// maxFileSize caps config files at 1 MiB.
const maxFileSize = 1 * 1024 * 1024

// Config is the full set of generation settings. Field names on disk are
// the camelCase keys below in every format.
type Config struct {
	// Decimation angle threshold in degrees. 0 disables decimation; above
	// 180 every line is reduced to its endpoints.
	DecimationAngleDeg float64 `json:"decimationAngleDeg" yaml:"decimationAngleDeg" toml:"decimationAngleDeg"`
	// Scale multiplies every mesh vertex, radius included.
	Scale float64 `json:"scale" yaml:"scale" toml:"scale"`
	// BaseRadius is the tube radius before LOD widening.
	BaseRadius float64 `json:"baseRadius" yaml:"baseRadius" toml:"baseRadius"`
	// SidesPerRing is the number of vertices around each ring, at least 3.
	SidesPerRing int `json:"sidesPerRing" yaml:"sidesPerRing" toml:"sidesPerRing"`
	// VoxelResolution is the number of voxels per unit of normalized space.
	VoxelResolution int `json:"voxelResolution" yaml:"voxelResolution" toml:"voxelResolution"`
	// LODEnabled turns on voxel grouping and bundle merging.
	LODEnabled bool `json:"lodEnabled" yaml:"lodEnabled" toml:"lodEnabled"`
	// ThreadCount is the requested worker count per phase, capped at the
	// number of CPUs. 0 or less runs every phase inline.
	ThreadCount int `json:"threadCount" yaml:"threadCount" toml:"threadCount"`
	// PerTickDispatchBudget caps completion actions run per host tick.
	PerTickDispatchBudget int `json:"perTickDispatchBudget" yaml:"perTickDispatchBudget" toml:"perTickDispatchBudget"`
	// NormalizeInput maps loaded tracts into the unit cube.
	NormalizeInput bool `json:"normalizeInput" yaml:"normalizeInput" toml:"normalizeInput"`

	// SymmetricVoxelKeys groups a tract with its reverse-direction twin.
	SymmetricVoxelKeys bool `json:"symmetricVoxelKeys" yaml:"symmetricVoxelKeys" toml:"symmetricVoxelKeys"`
	// CenterlinePolicy is "first" or "average".
	CenterlinePolicy string `json:"centerlinePolicy" yaml:"centerlinePolicy" toml:"centerlinePolicy"`
	// Material names the render material handed to the target.
	Material string `json:"material" yaml:"material" toml:"material"`
	// ColorStart and ColorEnd are #RRGGBB colours lerped across tracts.
	ColorStart string `json:"colorStart" yaml:"colorStart" toml:"colorStart"`
	ColorEnd   string `json:"colorEnd" yaml:"colorEnd" toml:"colorEnd"`
}

// Default returns the stock settings.
func Default() Config {
	return Config{
		DecimationAngleDeg:    0,
		Scale:                 1,
		BaseRadius:            1,
		SidesPerRing:          3,
		VoxelResolution:       100,
		LODEnabled:            false,
		ThreadCount:           1,
		PerTickDispatchBudget: 10000,
		NormalizeInput:        true,
		CenterlinePolicy:      "first",
		Material:              "default",
		ColorStart:            "#FFFFFF",
		ColorEnd:              "#FFFFFF",
	}
}

// Load reads a config file, choosing the format from the extension
// (.json, .yaml, .yml, .toml). Keys missing from the file keep their
// Default values, so partial configs are safe.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config: file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := Default()
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if err := Decode(data, ext, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid configuration in %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Decode parses data in the format named by ext into cfg, leaving fields
// absent from data untouched.
func Decode(data []byte, ext string, cfg *Config) error {
	var err error
	switch ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("config: unsupported config extension %q (want .json, .yaml, .yml or .toml)", ext)
	}
	if err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", strings.TrimPrefix(ext, "."), err)
	}
	return nil
}

// Encode renders cfg in the format named by ext.
func Encode(cfg Config, ext string) ([]byte, error) {
	switch ext {
	case ".json":
		return json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	case ".toml":
		return toml.Marshal(cfg)
	}
	return nil, fmt.Errorf("config: unsupported config extension %q", ext)
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	if !finite(c.DecimationAngleDeg) {
		return fmt.Errorf("decimationAngleDeg must be finite, got %g", c.DecimationAngleDeg)
	}
	if !(c.Scale > 0) || !finite(c.Scale) {
		return fmt.Errorf("scale must be positive, got %g", c.Scale)
	}
	if !(c.BaseRadius > 0) || !finite(c.BaseRadius) {
		return fmt.Errorf("baseRadius must be positive, got %g", c.BaseRadius)
	}
	if c.SidesPerRing < 3 {
		return fmt.Errorf("sidesPerRing must be at least 3, got %d", c.SidesPerRing)
	}
	if c.VoxelResolution < 1 {
		return fmt.Errorf("voxelResolution must be at least 1, got %d", c.VoxelResolution)
	}
	if c.PerTickDispatchBudget < 1 {
		return fmt.Errorf("perTickDispatchBudget must be at least 1, got %d", c.PerTickDispatchBudget)
	}
	switch c.CenterlinePolicy {
	case "", "first", "average":
	default:
		return fmt.Errorf("centerlinePolicy must be first or average, got %q", c.CenterlinePolicy)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
