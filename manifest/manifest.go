// Package manifest handles dml.toml engine configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/dml/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "dml.toml"

// Manifest represents a dml.toml configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Engine   Engine   `toml:"engine"`
	Screen   Screen   `toml:"screen"`
	Script   Script   `toml:"script"`
	Trace    Trace    `toml:"trace"`
	Snapshot Snapshot `toml:"snapshot"`

	// Dir is the directory containing the dml.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Engine configures the simulation.
type Engine struct {
	Delta     float64 `toml:"delta"` // tick length in milliseconds
	BulletCap int     `toml:"bullet-cap"`
	Seed      uint64  `toml:"seed"`
}

// Screen sets the resolution used by ScreenCenter and KillIfOffscreen.
type Screen struct {
	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`
}

// Script names the entry script and how long the CLI runs it.
type Script struct {
	Entry string `toml:"entry"`
	Ticks int    `toml:"ticks"`
}

// Trace configures the SQLite tick recorder. An empty Path disables it.
type Trace struct {
	Path        string `toml:"path"`
	SampleEvery int    `toml:"sample-every"` // per-bullet samples every N ticks, 0 for none
}

// Snapshot configures where the CLI writes the final snapshot.
type Snapshot struct {
	Path string `toml:"path"`
}

// Default returns a manifest with the engine defaults filled in.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	d := vm.DefaultOptions()
	if m.Engine.Delta <= 0 {
		m.Engine.Delta = d.Delta
	}
	if m.Engine.BulletCap <= 0 {
		m.Engine.BulletCap = d.BulletCap
	}
	if m.Engine.Seed == 0 {
		m.Engine.Seed = d.Seed
	}
	if m.Screen.Width <= 0 || m.Screen.Height <= 0 {
		m.Screen.Width, m.Screen.Height = d.Width, d.Height
	}
	if m.Script.Entry == "" {
		m.Script.Entry = "main.dml"
	}
	if m.Script.Ticks <= 0 {
		m.Script.Ticks = 600
	}
}

// Load parses a dml.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s in %s", undecoded[0], path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a dml.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Write encodes m as dir/dml.toml.
func Write(dir string, m *Manifest) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Options converts the engine and screen settings into vm.Options.
func (m *Manifest) Options() vm.Options {
	return vm.Options{
		Delta:     m.Engine.Delta,
		BulletCap: m.Engine.BulletCap,
		Width:     m.Screen.Width,
		Height:    m.Screen.Height,
		Seed:      m.Engine.Seed,
	}
}

// ScriptPath returns the absolute path of the entry script.
func (m *Manifest) ScriptPath() string { return m.resolve(m.Script.Entry) }

// TracePath returns the absolute trace database path, or "" when tracing
// is off.
func (m *Manifest) TracePath() string { return m.resolve(m.Trace.Path) }

// SnapshotPath returns the absolute snapshot path, or "" when none is set.
func (m *Manifest) SnapshotPath() string { return m.resolve(m.Snapshot.Path) }

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
