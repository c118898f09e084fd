// Package snapshot saves and restores the running state of a DML system as
// canonical CBOR. A snapshot records the content hash of the program it was
// taken from and can only be restored against that program.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/dml/compiler/hash"
	"github.com/chazu/dml/vm"
)

var log = commonlog.GetLogger("dml.snapshot")

// FormatVersion is written into every snapshot. Snapshots of another
// version are rejected.
const FormatVersion = 1

// Snapshot is the wire form of a system's dynamic state.
type Snapshot struct {
	Version     int              `cbor:"1,keyasint"`
	ProgramHash [32]byte         `cbor:"2,keyasint"`
	Time        float64          `cbor:"3,keyasint"`
	Tick        int              `cbor:"4,keyasint"`
	Begun       bool             `cbor:"5,keyasint"`
	Globals     map[string]Value `cbor:"6,keyasint,omitempty"`
	Bullets     []Bullet         `cbor:"7,keyasint,omitempty"`
	Generations []int            `cbor:"8,keyasint,omitempty"`
	Free        []int            `cbor:"9,keyasint,omitempty"`
	Rand        []byte           `cbor:"10,keyasint"`
}

// Bullet is the wire form of one bullet.
type Bullet struct {
	ID         Handle           `cbor:"1,keyasint"`
	Parent     Handle           `cbor:"2,keyasint,omitempty"`
	Children   []Handle         `cbor:"3,keyasint,omitempty"`
	Factory    string           `cbor:"4,keyasint,omitempty"`
	Origin     [2]float64       `cbor:"5,keyasint"`
	Relative   [2]float64       `cbor:"6,keyasint"`
	Direction  [2]float64       `cbor:"7,keyasint"`
	Speed      float64          `cbor:"8,keyasint"`
	Colour     [4]float64       `cbor:"9,keyasint"`
	Sprite     string           `cbor:"10,keyasint,omitempty"`
	LocalTime  float64          `cbor:"11,keyasint"`
	Dead       bool             `cbor:"12,keyasint,omitempty"`
	Vars       map[string]Value `cbor:"13,keyasint,omitempty"`
	Components []Component      `cbor:"14,keyasint,omitempty"`
}

// Handle is the wire form of a vm.BulletID. The zero Handle is NoBullet.
type Handle struct {
	Index int `cbor:"1,keyasint"`
	Gen   int `cbor:"2,keyasint"`
}

// Component is the wire form of an in-progress transition.
type Component struct {
	Kind    string     `cbor:"1,keyasint"`
	EndTime float64    `cbor:"2,keyasint"`
	End     [2]float64 `cbor:"3,keyasint"`
	Inc     [2]float64 `cbor:"4,keyasint"`
}

func handleOf(id vm.BulletID) Handle {
	if !id.Valid() {
		return Handle{}
	}
	return Handle{Index: id.Index(), Gen: id.Generation()}
}

func (h Handle) id() vm.BulletID {
	if h.Gen == 0 {
		return vm.NoBullet
	}
	return vm.NewBulletID(h.Index, h.Gen)
}

// ---------------------------------------------------------------------------
// Capture
// ---------------------------------------------------------------------------

// Capture records the state of sys, which must be running prog.
func Capture(sys *vm.System, prog *vm.Program) (*Snapshot, error) {
	st, err := sys.State()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Version:     FormatVersion,
		ProgramHash: hash.Program(prog),
		Time:        st.Time,
		Tick:        st.Tick,
		Begun:       st.Begun,
		Generations: st.Gens,
		Free:        st.Free,
		Rand:        st.Rand,
	}

	if len(st.Globals) > 0 {
		snap.Globals = make(map[string]Value, len(st.Globals))
		for name, v := range st.Globals {
			// Factories are bound as globals by NewSystem.
			if ref, ok := v.(vm.FactoryRef); ok && prog.Factories[name] == ref.Factory {
				continue
			}
			wv, err := encodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("global %s: %w", name, err)
			}
			snap.Globals[name] = wv
		}
	}

	for _, b := range st.Bullets {
		wb, err := encodeBullet(b)
		if err != nil {
			return nil, fmt.Errorf("bullet %s: %w", b.ID, err)
		}
		snap.Bullets = append(snap.Bullets, wb)
	}
	log.Debugf("captured tick %d: %d bullets, %d globals", snap.Tick, len(snap.Bullets), len(snap.Globals))
	return snap, nil
}

func encodeBullet(b *vm.Bullet) (Bullet, error) {
	wb := Bullet{
		ID:        handleOf(b.ID),
		Parent:    handleOf(b.Parent),
		Origin:    [2]float64{b.Origin.X, b.Origin.Y},
		Relative:  [2]float64{b.RelativePosition.X, b.RelativePosition.Y},
		Direction: [2]float64{b.Direction.X, b.Direction.Y},
		Speed:     b.Speed,
		Colour:    [4]float64{b.Colour.R, b.Colour.G, b.Colour.B, b.Colour.A},
		Sprite:    b.Sprite,
		LocalTime: b.LocalTime,
		Dead:      b.Dead,
	}
	if b.Factory != nil {
		wb.Factory = b.Factory.Name
	}
	for _, c := range b.Children {
		wb.Children = append(wb.Children, handleOf(c))
	}
	if len(b.Vars) > 0 {
		wb.Vars = make(map[string]Value, len(b.Vars))
		for name, v := range b.Vars {
			wv, err := encodeValue(v)
			if err != nil {
				return wb, fmt.Errorf("$%s: %w", name, err)
			}
			wb.Vars[name] = wv
		}
	}
	for _, cs := range b.ComponentStates() {
		wb.Components = append(wb.Components, Component{
			Kind:    cs.Kind,
			EndTime: cs.EndTime,
			End:     [2]float64{cs.End.X, cs.End.Y},
			Inc:     [2]float64{cs.Inc.X, cs.Inc.Y},
		})
	}
	return wb, nil
}

// ---------------------------------------------------------------------------
// Restore
// ---------------------------------------------------------------------------

// Restore creates a system running prog in the state recorded by snap.
func Restore(snap *Snapshot, prog *vm.Program, opts vm.Options) (*vm.System, error) {
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", snap.Version)
	}
	if got := hash.Program(prog); got != snap.ProgramHash {
		return nil, fmt.Errorf("snapshot: program hash mismatch: snapshot %s, program %s",
			hash.Hex(snap.ProgramHash), hash.Hex(got))
	}

	sys := vm.NewSystem(prog, opts)
	st := &vm.State{
		Time:    snap.Time,
		Tick:    snap.Tick,
		Begun:   snap.Begun,
		Globals: make(map[string]vm.Value, len(snap.Globals)+len(prog.Factories)),
		Gens:    snap.Generations,
		Free:    snap.Free,
		Rand:    snap.Rand,
	}
	for name, f := range prog.Factories {
		st.Globals[name] = vm.FactoryRef{Factory: f}
	}

	names := make([]string, 0, len(snap.Globals))
	for name := range snap.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := decodeValue(snap.Globals[name], prog, sys)
		if err != nil {
			return nil, fmt.Errorf("snapshot: global %s: %w", name, err)
		}
		st.Globals[name] = v
	}

	for _, wb := range snap.Bullets {
		b, err := decodeBullet(wb, prog, sys)
		if err != nil {
			return nil, fmt.Errorf("snapshot: bullet %d.%d: %w", wb.ID.Index, wb.ID.Gen, err)
		}
		st.Bullets = append(st.Bullets, b)
	}

	if err := sys.Restore(st); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return sys, nil
}

func decodeBullet(wb Bullet, prog *vm.Program, sys *vm.System) (*vm.Bullet, error) {
	b := &vm.Bullet{
		ID:               wb.ID.id(),
		Parent:           wb.Parent.id(),
		Origin:           vm.Vector{X: wb.Origin[0], Y: wb.Origin[1]},
		RelativePosition: vm.Vector{X: wb.Relative[0], Y: wb.Relative[1]},
		Direction:        vm.Vector{X: wb.Direction[0], Y: wb.Direction[1]},
		Speed:            wb.Speed,
		Colour:           vm.Colour{R: wb.Colour[0], G: wb.Colour[1], B: wb.Colour[2], A: wb.Colour[3]},
		Sprite:           wb.Sprite,
		LocalTime:        wb.LocalTime,
		Dead:             wb.Dead,
		Vars:             make(map[string]vm.Value, len(wb.Vars)),
	}
	if !b.ID.Valid() {
		return nil, fmt.Errorf("missing id")
	}
	if wb.Factory != "" {
		f, ok := prog.Factories[wb.Factory]
		if !ok {
			return nil, fmt.Errorf("unknown factory @%s", wb.Factory)
		}
		b.Factory = f
	}
	for _, h := range wb.Children {
		b.Children = append(b.Children, h.id())
	}
	for name, wv := range wb.Vars {
		v, err := decodeValue(wv, prog, sys)
		if err != nil {
			return nil, fmt.Errorf("$%s: %w", name, err)
		}
		b.Vars[name] = v
	}
	for _, c := range wb.Components {
		err := b.RestoreComponent(vm.ComponentState{
			Kind:    c.Kind,
			EndTime: c.EndTime,
			End:     vm.Vector{X: c.End[0], Y: c.End[1]},
			Inc:     vm.Vector{X: c.Inc[0], Y: c.Inc[1]},
		})
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}
