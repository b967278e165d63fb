package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/internal/logging"
)

// maxMemoryPages is the wasm32 limit of 4GiB in 64KiB pages.
const maxMemoryPages = 65536

// Config holds runtime configuration. It can be loaded from a TOML file.
type Config struct {
	Env map[string]string `toml:"env"`

	LogLevel string   `toml:"log_level"`
	Args     []string `toml:"args"`

	// GCThreshold collects after this many allocations. 0 disables
	// automatic collection.
	GCThreshold int `toml:"gc_threshold"`

	// MaxHeapCells bounds the number of live heap cells. 0 means unbounded.
	MaxHeapCells int `toml:"max_heap_cells"`

	// MaxRoots bounds the number of live roots. 0 means unbounded.
	MaxRoots int `toml:"max_roots"`

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`

	// WASI serves wasi_snapshot_preview1 imports that the imports object
	// does not provide.
	WASI bool `toml:"wasi"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		GCThreshold: 1024,
		LogLevel:    "error",
	}
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	switch {
	case c.GCThreshold < 0:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("gc_threshold must not be negative, got %d", c.GCThreshold))
	case c.MaxHeapCells < 0:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("max_heap_cells must not be negative, got %d", c.MaxHeapCells))
	case c.MaxRoots < 0:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("max_roots must not be negative, got %d", c.MaxRoots))
	case c.MemoryLimitPages > maxMemoryPages:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("memory_limit_pages exceeds %d, got %d", maxMemoryPages, c.MemoryLimitPages))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}
	return nil
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Load("read config "+path, err)
	}
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode "+path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
