// DML CLI - compiles and runs bullet pattern scripts
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tliron/commonlog"

	"github.com/chazu/dml/compiler"
	"github.com/chazu/dml/compiler/hash"
	"github.com/chazu/dml/manifest"
	"github.com/chazu/dml/server"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("dml.cli")

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	configDir := flag.String("config", "", "Directory containing dml.toml (default: search upwards from .)")
	ticks := flag.Int("ticks", 0, "Ticks to run (overrides [script] ticks)")
	seed := flag.Uint64("seed", 0, "Random seed (overrides [engine] seed)")
	tracePath := flag.String("trace", "", "SQLite trace database (overrides [trace] path)")
	sampleEvery := flag.Int("sample-every", -1, "Record every bullet each N ticks (overrides [trace] sample-every)")
	snapshotPath := flag.String("snapshot", "", "Write the final state to this file (overrides [snapshot] path)")
	restorePath := flag.String("restore", "", "Resume from a snapshot written by -snapshot")
	dump := flag.Bool("dump", false, "Print the compiled program and exit")
	printHash := flag.Bool("hash", false, "Print the program hash and exit")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	initMode := flag.Bool("init", false, "Write a default dml.toml and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dml [options] [script.dml]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a DML script and runs it for a number of ticks.\n")
		fmt.Fprintf(os.Stderr, "Settings come from dml.toml; flags override them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dml                          # Run [script] entry from dml.toml\n")
		fmt.Fprintf(os.Stderr, "  dml -ticks 120 spiral.dml    # Run a script for 120 ticks\n")
		fmt.Fprintf(os.Stderr, "  dml -dump spiral.dml         # Disassemble\n")
		fmt.Fprintf(os.Stderr, "  dml -snapshot s.cbor x.dml   # Save the final state\n")
		fmt.Fprintf(os.Stderr, "  dml -restore s.cbor x.dml    # Continue from it\n")
		fmt.Fprintf(os.Stderr, "  dml -lsp                     # Language server for editors\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *initMode {
		dir := *configDir
		if dir == "" {
			dir = "."
		}
		if err := initManifest(dir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if *seed != 0 {
		m.Engine.Seed = *seed
	}

	if *lspMode {
		if err := server.NewLSP(m.Options()).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	script := m.ScriptPath()
	if flag.NArg() > 0 {
		script = flag.Arg(0)
	}

	if *dump || *printHash {
		prog, err := compiler.CompileFile(script)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", script, err)
			os.Exit(1)
		}
		if *printHash {
			fmt.Println(hash.Hex(hash.Program(prog)))
		}
		if *dump {
			dumpProgram(os.Stdout, prog)
		}
		return
	}

	cfg := runConfig{
		Script:       script,
		Options:      m.Options(),
		Ticks:        m.Script.Ticks,
		TracePath:    m.TracePath(),
		SampleEvery:  m.Trace.SampleEvery,
		SnapshotPath: m.SnapshotPath(),
		RestorePath:  *restorePath,
		Out:          os.Stdout,
	}
	if *ticks > 0 {
		cfg.Ticks = *ticks
	}
	if *tracePath != "" {
		cfg.TracePath = *tracePath
	}
	if *sampleEvery >= 0 {
		cfg.SampleEvery = *sampleEvery
	}
	if *snapshotPath != "" {
		cfg.SnapshotPath = *snapshotPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", script, err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, res)
	if res.Interrupted {
		os.Exit(130)
	}
}

// loadManifest loads dir/dml.toml, or the nearest dml.toml above the working
// directory when dir is empty. Without one, the defaults apply relative to
// the working directory.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		if m.Dir, err = filepath.Abs("."); err != nil {
			return nil, err
		}
		log.Debug("no dml.toml found, using defaults")
	}
	return m, nil
}

// initManifest writes a default dml.toml into dir, refusing to overwrite one.
func initManifest(dir string) error {
	path := filepath.Join(dir, manifest.FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	m := manifest.Default()
	m.Project.Name = filepath.Base(mustAbs(dir))
	m.Project.Version = "0.1.0"
	if err := manifest.Write(dir, m); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func mustAbs(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}
