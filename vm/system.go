package vm

import (
	"io"
	"os"
	"sort"

	"github.com/tliron/commonlog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var log = commonlog.GetLogger("dml.system")

// ---------------------------------------------------------------------------
// Options and programs
// ---------------------------------------------------------------------------

// Options configures a System.
type Options struct {
	Delta     float64 // tick length in milliseconds
	BulletCap int     // live bullets beyond which spawns are dropped
	Width     float64 // screen resolution, used by ScreenCenter and KillIfOffscreen
	Height    float64
	Seed      uint64

	// OnSprite, when set, is called whenever a script assigns $Sprite.
	OnSprite func(id BulletID, sprite string)

	// Console receives ConsoleOutput. Defaults to standard output.
	Console io.Writer
}

// DefaultOptions returns 16 ms ticks, a 5000 bullet cap, a 1280x720 screen
// and seed 1.
func DefaultOptions() Options {
	return Options{
		Delta:     16,
		BulletCap: 5000,
		Width:     1280,
		Height:    720,
		Seed:      1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Delta <= 0 {
		o.Delta = d.Delta
	}
	if o.BulletCap <= 0 {
		o.BulletCap = d.BulletCap
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.Console == nil {
		o.Console = os.Stdout
	}
	return o
}

// Program is a compiled script.
type Program struct {
	Global    *CodeBlock
	Timeline  *Timeline
	Factories map[string]*Factory
}

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

type pendingSpawn struct {
	bullet *Bullet
	parent BulletID
}

// System owns the globals, bullets and clock of one running script. A
// System is not safe for concurrent use.
type System struct {
	Globals map[string]Value

	global     *CodeBlock
	setup      *CodeBlock // timeline-level code
	timeline   *Timeline
	timestamps []*Timestamp // the program's timeline, for Restore
	factories  map[string]*Factory

	bullets arena
	pending []pendingSpawn
	dropped int

	time  float64
	tick  int
	begun bool

	src  *rand.PCGSource
	opts Options
}

// NewSystem prepares prog for running. Every factory is bound as a global
// under its name.
func NewSystem(prog *Program, opts Options) *System {
	opts = opts.withDefaults()
	src := &rand.PCGSource{}
	src.Seed(opts.Seed)
	s := &System{
		Globals:   make(map[string]Value),
		global:    EmptyCodeBlock(),
		timeline:  NewTimeline(),
		factories: make(map[string]*Factory),
		opts:      opts,
		src:       src,
	}
	if prog != nil {
		if prog.Global != nil {
			s.global = prog.Global
		}
		if prog.Timeline != nil {
			// Timelines carry activation state, so each system gets its own.
			s.setup = prog.Timeline.Setup()
			s.timestamps = prog.Timeline.Timestamps()
			s.timeline.pending = prog.Timeline.Timestamps()
		}
		for name, f := range prog.Factories {
			s.factories[name] = f
			s.Globals[name] = FactoryRef{Factory: f}
		}
	}
	return s
}

func (s *System) Options() Options     { return s.opts }
func (s *System) Delta() float64       { return s.opts.Delta }
func (s *System) GlobalTime() float64  { return s.time }
func (s *System) Tick() int            { return s.tick }
func (s *System) Begun() bool          { return s.begun }
func (s *System) Timeline() *Timeline  { return s.timeline }
func (s *System) Len() int             { return s.bullets.len() }
func (s *System) Pending() int         { return len(s.pending) }
func (s *System) Resolution() Vector   { return Vector{s.opts.Width, s.opts.Height} }
func (s *System) ScreenCenter() Vector { return s.Resolution().Scale(0.5) }

// Uniform draws from [lo, hi) with the system's generator. A nil System
// uses the package generator.
func (s *System) Uniform(lo, hi float64) float64 {
	if lo == hi {
		return lo
	}
	u := distuv.Uniform{Min: lo, Max: hi}
	if s != nil {
		u.Src = s.src
	}
	return u.Rand()
}

// Factory returns a registered bullet factory.
func (s *System) Factory(name string) (*Factory, bool) {
	f, ok := s.factories[name]
	return f, ok
}

// FactoryNames returns the registered factory names, sorted.
func (s *System) FactoryNames() []string {
	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bullet resolves a handle. It returns nil for removed bullets.
func (s *System) Bullet(id BulletID) *Bullet { return s.bullets.get(id) }

// Bullets returns the live bullets in arena order.
func (s *System) Bullets() []*Bullet {
	out := make([]*Bullet, 0, s.bullets.len())
	s.bullets.each(func(b *Bullet) error {
		out = append(out, b)
		return nil
	})
	return out
}

// AddBullet adds b to the system as a child of parent, which may be
// NoBullet. Before Begin the bullet is inserted immediately; afterwards it
// joins at the end of the current tick. Bullets are dropped when the system
// is at its bullet cap; AddBullet reports whether b was accepted.
func (s *System) AddBullet(b *Bullet, parent BulletID) bool {
	if s.bullets.len() >= s.opts.BulletCap {
		s.dropped++
		return false
	}
	if s.begun {
		s.pending = append(s.pending, pendingSpawn{bullet: b, parent: parent})
		return true
	}
	s.insert(b, parent)
	return true
}

func (s *System) insert(b *Bullet, parent BulletID) {
	id := s.bullets.insert(b)
	b.Parent = NoBullet
	if p := s.bullets.get(parent); p != nil {
		b.Parent = parent
		p.Children = append(p.Children, id)
	}
	if b.Sprite != "" {
		s.notifySprite(b)
	}
}

func (s *System) notifySprite(b *Bullet) {
	if s != nil && s.opts.OnSprite != nil {
		s.opts.OnSprite(b.ID, b.Sprite)
	}
}

// Begin runs the global code, then the timeline setup code, and starts the
// timeline. It is a no-op on a system that has already begun.
func (s *System) Begin() error {
	if s.begun {
		return nil
	}
	if err := s.global.Execute(nil, s); err != nil {
		return err
	}
	if s.setup != nil {
		if err := s.setup.Execute(nil, s); err != nil {
			return err
		}
	}
	s.begun = true
	s.timeline.begin()
	log.Debugf("system begun: %d globals, %d factories, %d bullets, %d timestamps",
		len(s.Globals), len(s.factories), s.bullets.len(), s.timeline.Len())
	return nil
}

// Update advances the system by one tick: timeline, bullets, spawns, then
// removal of dead bullets. It does nothing before Begin.
func (s *System) Update() error {
	if !s.begun {
		return nil
	}
	if err := s.timeline.update(s); err != nil {
		return err
	}
	err := s.bullets.each(func(b *Bullet) error {
		if b.Dead {
			return nil
		}
		return b.update(s)
	})
	if err != nil {
		return err
	}

	for _, p := range s.pending {
		if s.bullets.len() >= s.opts.BulletCap {
			s.dropped++
			continue
		}
		s.insert(p.bullet, p.parent)
	}
	clear(s.pending)
	s.pending = s.pending[:0]

	removed := s.removeDead()
	if s.dropped > 0 {
		log.Warningf("tick %d: bullet cap %d reached, dropped %d spawn(s)", s.tick, s.opts.BulletCap, s.dropped)
		s.dropped = 0
	}
	log.Debugf("tick %d: %d bullets, %d removed", s.tick, s.bullets.len(), removed)

	s.time += s.opts.Delta
	s.tick++
	return nil
}

// removeDead drops dead bullets. Their children become top-level bullets.
func (s *System) removeDead() int {
	var dead []*Bullet
	s.bullets.each(func(b *Bullet) error {
		if b.Dead {
			dead = append(dead, b)
		}
		return nil
	})
	for _, b := range dead {
		for _, cid := range b.Children {
			if c := s.bullets.get(cid); c != nil {
				c.Parent = NoBullet
			}
		}
		if p := s.bullets.get(b.Parent); p != nil && !p.Dead {
			p.Children = removeID(p.Children, b.ID)
		}
		s.bullets.remove(b.ID)
	}
	return len(dead)
}

func removeID(ids []BulletID, id BulletID) []BulletID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Run begins the system if needed and advances it n ticks.
func (s *System) Run(n int) error {
	if err := s.Begin(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := s.Update(); err != nil {
			return err
		}
	}
	return nil
}
