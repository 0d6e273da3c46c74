package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesail/internal/decode"
	"github.com/srg/blesail/internal/lua"
)

// ScriptPrefix marks a decoder implemented by a Lua script, e.g. "lua:wind_tenths.lua"
const ScriptPrefix = "lua:"

// Decoders resolves decoder names: the built-in fixed-point decoders and
// lua:<file> scripts. Relative script paths are resolved against BaseDir.
// Each script is loaded once and shared by every source naming it.
type Decoders struct {
	BaseDir string

	logger  *logrus.Logger
	mu      sync.Mutex
	scripts map[string]*lua.ScriptDecoder
}

// NewDecoders creates a resolver
func NewDecoders(baseDir string, logger *logrus.Logger) *Decoders {
	if logger == nil {
		logger = logrus.New()
	}
	return &Decoders{
		BaseDir: baseDir,
		logger:  logger,
		scripts: make(map[string]*lua.ScriptDecoder),
	}
}

// IsScript reports whether name refers to a Lua decoder
func IsScript(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), ScriptPrefix)
}

func (d *Decoders) scriptPath(name string) string {
	path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), ScriptPrefix))
	if !filepath.IsAbs(path) && d.BaseDir != "" {
		path = filepath.Join(d.BaseDir, path)
	}
	return path
}

// Validate checks that name can be resolved, without loading scripts
func (d *Decoders) Validate(name string) error {
	if !IsScript(name) {
		_, err := decode.Lookup(name)
		return err
	}

	path := d.scriptPath(name)
	if path == "" {
		return fmt.Errorf("decoder %q: empty script path", name)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("decoder %q: %w", name, err)
	}
	return nil
}

// Resolve returns the decode function for name
func (d *Decoders) Resolve(name string) (decode.Func, error) {
	if !IsScript(name) {
		return decode.Lookup(name)
	}

	path := d.scriptPath(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if dec, ok := d.scripts[path]; ok {
		return dec.Decode, nil
	}

	dec, err := lua.NewScriptDecoder(path, d.logger)
	if err != nil {
		return nil, fmt.Errorf("decoder %q: %w", name, err)
	}
	d.scripts[path] = dec

	d.logger.WithField("script", path).Debug("Loaded Lua decoder")
	return dec.Decode, nil
}

// Close releases all loaded scripts
func (d *Decoders) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, dec := range d.scripts {
		dec.Close()
		delete(d.scripts, path)
	}
}
