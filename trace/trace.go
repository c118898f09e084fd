// Package trace records simulation runs into a SQLite database: one row per
// tick plus optional per-bullet samples.
package trace

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/dml/compiler/hash"
	"github.com/chazu/dml/vm"
)

var log = commonlog.GetLogger("dml.trace")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	script       TEXT NOT NULL,
	program_hash TEXT NOT NULL,
	seed         INTEGER NOT NULL,
	delta        REAL NOT NULL,
	started      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ticks (
	run_id  INTEGER NOT NULL REFERENCES runs(id),
	tick    INTEGER NOT NULL,
	time    REAL NOT NULL,
	bullets INTEGER NOT NULL,
	PRIMARY KEY (run_id, tick)
);
CREATE TABLE IF NOT EXISTS samples (
	run_id  INTEGER NOT NULL REFERENCES runs(id),
	tick    INTEGER NOT NULL,
	bullet  TEXT NOT NULL,
	factory TEXT NOT NULL,
	x       REAL NOT NULL,
	y       REAL NOT NULL,
	speed   REAL NOT NULL,
	dir_x   REAL NOT NULL,
	dir_y   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_tick ON samples (run_id, tick);
`

// Recorder writes runs to a trace database. It is safe for concurrent use.
type Recorder struct {
	db          *sql.DB
	sampleEvery int
	mu          sync.Mutex
}

// Tick is one recorded tick: the system state after Tick updates.
type Tick struct {
	Tick    int
	Time    float64
	Bullets int
}

// Sample is one bullet's state at a sampled tick.
type Sample struct {
	Bullet    string
	Factory   string
	X, Y      float64
	Speed     float64
	Direction vm.Vector
}

// Run identifies a recorded run.
type Run struct {
	ID          int64
	Script      string
	ProgramHash string
	Seed        uint64
	Delta       float64
}

// Open opens or creates the trace database at path. sampleEvery > 0 also
// records every bullet on ticks divisible by it.
func Open(path string, sampleEvery int) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	// One connection: sqlite serializes writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Recorder{db: db, sampleEvery: sampleEvery}, nil
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// BeginRun registers a run of prog, compiled from script, and returns its id.
func (r *Recorder) BeginRun(script string, prog *vm.Program, opts vm.Options) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(
		"INSERT INTO runs (script, program_hash, seed, delta, started) VALUES (?, ?, ?, ?, ?)",
		script, hash.Hex(hash.Program(prog)), int64(opts.Seed), opts.Delta, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	log.Infof("trace run %d: %s", id, script)
	return id, nil
}

// Record stores the current state of sys for run.
func (r *Recorder) Record(run int64, sys *vm.System) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("recording tick: %w", err)
	}
	defer tx.Rollback()

	tick := sys.Tick()
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO ticks (run_id, tick, time, bullets) VALUES (?, ?, ?, ?)",
		run, tick, sys.GlobalTime(), sys.Len(),
	); err != nil {
		return fmt.Errorf("recording tick: %w", err)
	}

	if r.sampleEvery > 0 && tick%r.sampleEvery == 0 {
		stmt, err := tx.Prepare(
			"INSERT INTO samples (run_id, tick, bullet, factory, x, y, speed, dir_x, dir_y) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("recording samples: %w", err)
		}
		defer stmt.Close()
		for _, b := range sys.Bullets() {
			factory := ""
			if b.Factory != nil {
				factory = b.Factory.Name
			}
			p := b.Position()
			if _, err := stmt.Exec(run, tick, b.ID.String(), factory, p.X, p.Y, b.Speed, b.Direction.X, b.Direction.Y); err != nil {
				return fmt.Errorf("recording samples: %w", err)
			}
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Runs returns every recorded run, oldest first.
func (r *Recorder) Runs() ([]Run, error) {
	rows, err := r.db.Query("SELECT id, script, program_hash, seed, delta FROM runs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var seed int64
		if err := rows.Scan(&run.ID, &run.Script, &run.ProgramHash, &seed, &run.Delta); err != nil {
			return nil, fmt.Errorf("querying runs: %w", err)
		}
		run.Seed = uint64(seed)
		out = append(out, run)
	}
	return out, rows.Err()
}

// Ticks returns the recorded ticks of run in order.
func (r *Recorder) Ticks(run int64) ([]Tick, error) {
	rows, err := r.db.Query("SELECT tick, time, bullets FROM ticks WHERE run_id = ? ORDER BY tick", run)
	if err != nil {
		return nil, fmt.Errorf("querying ticks: %w", err)
	}
	defer rows.Close()

	var out []Tick
	for rows.Next() {
		var t Tick
		if err := rows.Scan(&t.Tick, &t.Time, &t.Bullets); err != nil {
			return nil, fmt.Errorf("querying ticks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Samples returns the bullets sampled at tick of run, in arena order.
func (r *Recorder) Samples(run int64, tick int) ([]Sample, error) {
	rows, err := r.db.Query(
		"SELECT bullet, factory, x, y, speed, dir_x, dir_y FROM samples WHERE run_id = ? AND tick = ? ORDER BY rowid",
		run, tick)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.Bullet, &s.Factory, &s.X, &s.Y, &s.Speed, &s.Direction.X, &s.Direction.Y); err != nil {
			return nil, fmt.Errorf("querying samples: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PeakBullets returns the highest bullet count recorded for run and the
// first tick it was reached.
func (r *Recorder) PeakBullets(run int64) (tick, bullets int, err error) {
	err = r.db.QueryRow(
		"SELECT tick, bullets FROM ticks WHERE run_id = ? ORDER BY bullets DESC, tick ASC LIMIT 1", run,
	).Scan(&tick, &bullets)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("querying peak: %w", err)
	}
	return tick, bullets, nil
}
