package vm

import (
	"math"
	"testing"
)

func behave(t *testing.T, name string, params ...string) Instruction {
	t.Helper()
	b, err := ConfigureBehaviour(name, params)
	if err != nil {
		t.Fatalf("ConfigureBehaviour(%s) failed: %v", name, err)
	}
	return Behave(b)
}

// counter increments global name each time it runs.
func counter(t *testing.T, name string) *CodeBlock {
	return mustBlock(t,
		Named(OpLoadGlobal, name), Const(Number(1)), Op(OpAdd), Named(OpStoreGlobal, name),
	)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestInitOnceUpdateEveryTick(t *testing.T) {
	f := NewFactory("Counter", counter(t, "inits"), counter(t, "updates"))
	sys := NewSystem(&Program{
		Global:    mustBlock(t, Const(Number(0)), Named(OpStoreGlobal, "inits"), Const(Number(0)), Named(OpStoreGlobal, "updates")),
		Factories: map[string]*Factory{"Counter": f},
	}, DefaultOptions())
	if err := sys.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	b, err := f.Instantiate(Vector{}, sys)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	sys.AddBullet(b, NoBullet)
	for i := 0; i < 3; i++ {
		if err := sys.Update(); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	if sys.Globals["inits"] != Number(1) {
		t.Errorf("inits = %v, want 1", sys.Globals["inits"])
	}
	// Spawned after Begin, so it joined at the end of the first tick.
	if sys.Globals["updates"] != Number(2) {
		t.Errorf("updates = %v, want 2", sys.Globals["updates"])
	}
	if sys.Tick() != 3 || sys.GlobalTime() != 48 {
		t.Errorf("tick = %d time = %v, want 3 and 48", sys.Tick(), sys.GlobalTime())
	}
}

func TestUpdateBeforeBeginIsNoop(t *testing.T) {
	sys := NewSystem(nil, DefaultOptions())
	if err := sys.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if sys.Tick() != 0 {
		t.Errorf("tick = %d, want 0", sys.Tick())
	}
}

func TestFactoriesAreGlobals(t *testing.T) {
	f := NewFactory("Orb", nil, nil)
	sys := NewSystem(&Program{Factories: map[string]*Factory{"Orb": f}}, DefaultOptions())
	ref, ok := sys.Globals["Orb"].(FactoryRef)
	if !ok || ref.Factory != f {
		t.Errorf("global Orb = %v, want the factory", sys.Globals["Orb"])
	}
	if names := sys.FactoryNames(); len(names) != 1 || names[0] != "Orb" {
		t.Errorf("FactoryNames = %v", names)
	}
}

func TestBulletMovesEachTick(t *testing.T) {
	f := NewFactory("Mover", mustBlock(t,
		Const(Number(2)), StoreIntrinsic(IntrinsicSpeed),
		Const(Vector{1, 0}), StoreIntrinsic(IntrinsicDirection),
	), nil)
	sys := NewSystem(nil, DefaultOptions())
	b, err := f.Instantiate(Vector{10, 10}, sys)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	sys.AddBullet(b, NoBullet)
	if err := sys.Run(5); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if b.Position() != (Vector{20, 10}) {
		t.Errorf("position = %v, want (20, 10)", b.Position())
	}
	if b.LocalTime != 80 {
		t.Errorf("local time = %v, want 80", b.LocalTime)
	}
}

// ---------------------------------------------------------------------------
// Kill, children and the arena
// ---------------------------------------------------------------------------

func TestKillRemovesBulletOnce(t *testing.T) {
	visits := 0
	kill := behave(t, "Kill")
	f := NewFactory("Doomed", nil, mustBlock(t, kill))
	sys := NewSystem(nil, DefaultOptions())
	b, _ := f.Instantiate(Vector{}, sys)
	sys.AddBullet(b, NoBullet)
	id := b.ID

	if err := sys.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	err := f.Update.Trace(b, sys, func(_ int, in Instruction) {
		if in.Op == OpBehave {
			visits++
		}
	})
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	if visits != 1 {
		t.Errorf("Kill performed %d times, want 1", visits)
	}
	if err := sys.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if sys.Len() != 0 {
		t.Errorf("live bullets = %d, want 0", sys.Len())
	}
	if sys.Bullet(id) != nil {
		t.Error("stale handle still resolves")
	}
}

func TestArenaHandlesAreGenerational(t *testing.T) {
	var a arena
	b1 := &Bullet{}
	id1 := a.insert(b1)
	a.remove(id1)
	b2 := &Bullet{}
	id2 := a.insert(b2)

	if id1.Index() != id2.Index() {
		t.Fatalf("slot not reused: %v vs %v", id1, id2)
	}
	if a.get(id1) != nil {
		t.Error("old handle resolves after reuse")
	}
	if a.get(id2) != b2 {
		t.Error("new handle does not resolve")
	}
	if a.get(NoBullet) != nil {
		t.Error("NoBullet resolves")
	}
}

func TestSpawnLinksChildrenAndReparentsOnDeath(t *testing.T) {
	child := NewFactory("Child", nil, nil)
	spawn := behave(t, "Spawn", "BulletType")
	parentFactory := NewFactory("Parent", mustBlock(t,
		Named(OpLoadGlobal, "Child"), spawn,
	), nil)

	sys := NewSystem(&Program{Factories: map[string]*Factory{"Child": child, "Parent": parentFactory}}, DefaultOptions())
	if err := sys.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	p, err := parentFactory.Instantiate(Vector{5, 5}, sys)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	// The parent's Init spawned before the parent had an ID, so it queued
	// with no parent. Spawn again from update code to link a child.
	sys.AddBullet(p, NoBullet)
	if err := sys.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	link := mustBlock(t, Named(OpLoadGlobal, "Child"), spawn)
	if err := link.Execute(p, sys); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if err := sys.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(p.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(p.Children))
	}
	c := sys.Bullet(p.Children[0])
	if c == nil || c.Parent != p.ID {
		t.Fatalf("child not linked to parent")
	}
	if c.Position() != (Vector{5, 5}) {
		t.Errorf("child position = %v, want parent position (5, 5)", c.Position())
	}

	p.Kill()
	if err := sys.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if c.Parent != NoBullet {
		t.Errorf("orphan parent = %v, want none", c.Parent)
	}
	if sys.Bullet(c.ID) != c {
		t.Error("child removed with its parent")
	}
}

func TestBulletCapDropsSpawns(t *testing.T) {
	opts := DefaultOptions()
	opts.BulletCap = 3
	f := NewFactory("B", nil, nil)
	sys := NewSystem(nil, opts)
	accepted := 0
	for i := 0; i < 5; i++ {
		b, _ := f.Instantiate(Vector{}, sys)
		if sys.AddBullet(b, NoBullet) {
			accepted++
		}
	}
	if accepted != 3 || sys.Len() != 3 {
		t.Errorf("accepted %d, live %d, want 3 and 3", accepted, sys.Len())
	}
}

// ---------------------------------------------------------------------------
// Behaviours
// ---------------------------------------------------------------------------

func TestConfigureBehaviourValidation(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		ok     bool
	}{
		{"Spawn", []string{"BulletType"}, true},
		{"Spawn", []string{"BulletType", "Origin", "AngleD", "Speed", "Param", "Param"}, true},
		{"Spawn", []string{"Origin"}, false},
		{"Spawn", []string{"BulletType", "Angle", "Direction"}, false},
		{"Spawn", []string{"BulletType", "Speed", "Speed"}, false},
		{"Spawn", []string{"BulletType", "Colour"}, false},
		{"RotateAround", []string{"Point"}, false},
		{"RotateAround", []string{"Point", "Angle", "AngleD"}, false},
		{"RotateAround", []string{"Point", "AngleD"}, true},
		{"RadialSpawn", []string{"BulletType", "Streams", "Speed", "AngleOffset", "AngleOffsetD"}, false},
		{"MultiSpawn", []string{"BulletType", "Origin", "Origins"}, false},
		{"Kill", nil, true},
		{"Kill", []string{"Param"}, false},
		{"Teleport", nil, false},
	}
	for _, tt := range tests {
		_, err := ConfigureBehaviour(tt.name, tt.params)
		if (err == nil) != tt.ok {
			t.Errorf("ConfigureBehaviour(%s, %v) error = %v, want ok=%v", tt.name, tt.params, err, tt.ok)
		}
	}
}

func TestBehaviourParamsBindByName(t *testing.T) {
	// Speed is written before BulletType: values bind to names, not positions.
	spawn := behave(t, "Spawn", "Speed", "BulletType", "Param")
	f := NewFactory("Orb", nil, nil)
	sys := NewSystem(&Program{Factories: map[string]*Factory{"Orb": f}}, DefaultOptions())
	cb := mustBlock(t,
		Const(Number(4)),
		Named(OpLoadGlobal, "Orb"),
		Const(List{String("hp"), Number(3)}),
		spawn,
	)
	if err := cb.Execute(nil, sys); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	bullets := sys.Bullets()
	if len(bullets) != 1 {
		t.Fatalf("bullets = %d, want 1", len(bullets))
	}
	b := bullets[0]
	if b.Speed != 4 || b.Vars["hp"] != Number(3) {
		t.Errorf("speed = %v hp = %v, want 4 and 3", b.Speed, b.Vars["hp"])
	}
	if b.Position() != sys.ScreenCenter() {
		t.Errorf("position = %v, want the screen centre", b.Position())
	}
}

func TestRadialSpawn(t *testing.T) {
	f := NewFactory("Orb", nil, nil)
	sys := NewSystem(&Program{Factories: map[string]*Factory{"Orb": f}}, DefaultOptions())
	cb := mustBlock(t,
		Named(OpLoadGlobal, "Orb"), Const(Number(4)), Const(Number(2)), Const(Vector{0, 0}),
		behave(t, "RadialSpawn", "BulletType", "Streams", "Speed", "Origin"),
	)
	if err := cb.Execute(nil, sys); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	bullets := sys.Bullets()
	if len(bullets) != 4 {
		t.Fatalf("bullets = %d, want 4", len(bullets))
	}
	want := []Vector{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	for i, b := range bullets {
		if !approx(b.Direction.X, want[i].X) || !approx(b.Direction.Y, want[i].Y) || b.Speed != 2 {
			t.Errorf("bullet %d direction %v speed %v, want %v and 2", i, b.Direction, b.Speed, want[i])
		}
	}
}

func TestBurstSpawnStaysInRange(t *testing.T) {
	f := NewFactory("Orb", nil, nil)
	sys := NewSystem(&Program{Factories: map[string]*Factory{"Orb": f}}, DefaultOptions())
	cb := mustBlock(t,
		Named(OpLoadGlobal, "Orb"), Const(Number(20)), Const(List{Number(1), Number(2)}),
		Const(List{Number(0), Number(90)}),
		behave(t, "BurstSpawn", "BulletType", "Amount", "SpeedRange", "AngleRangeD"),
	)
	if err := cb.Execute(nil, sys); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sys.Len() != 20 {
		t.Fatalf("bullets = %d, want 20", sys.Len())
	}
	for _, b := range sys.Bullets() {
		if b.Speed < 1 || b.Speed >= 2 {
			t.Errorf("speed %v outside [1, 2)", b.Speed)
		}
		if b.Direction.X < -1e-9 || b.Direction.Y < -1e-9 {
			t.Errorf("direction %v outside the first quadrant", b.Direction)
		}
	}
}

func TestMultiSpawnLengthMismatch(t *testing.T) {
	f := NewFactory("Orb", nil, nil)
	sys := NewSystem(&Program{Factories: map[string]*Factory{"Orb": f}}, DefaultOptions())
	ms := behave(t, "MultiSpawn", "BulletType", "Origins", "Speeds")

	ok := mustBlock(t, Named(OpLoadGlobal, "Orb"),
		Const(List{Vector{0, 0}, Vector{1, 1}}), Const(List{Number(1), Number(2)}), ms)
	if err := ok.Execute(nil, sys); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sys.Len() != 2 {
		t.Errorf("bullets = %d, want 2", sys.Len())
	}

	bad := mustBlock(t, Named(OpLoadGlobal, "Orb"),
		Const(List{Vector{0, 0}}), Const(List{Number(1), Number(2)}), ms)
	if err := bad.Execute(nil, sys); err == nil {
		t.Error("mismatched list lengths should fail")
	}
}

func TestUniformDistributionParameter(t *testing.T) {
	f := NewFactory("Orb", nil, nil)
	sys := NewSystem(&Program{Factories: map[string]*Factory{"Orb": f}}, DefaultOptions())
	cb := mustBlock(t,
		Named(OpLoadGlobal, "Orb"),
		Const(Option{Name: "UniformDistribution", Fields: map[string]Value{"Min": Number(3), "Max": Number(5)}}),
		behave(t, "Spawn", "BulletType", "Speed"),
	)
	for i := 0; i < 10; i++ {
		if err := cb.Execute(nil, sys); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}
	for _, b := range sys.Bullets() {
		if b.Speed < 3 || b.Speed > 5 {
			t.Errorf("sampled speed %v outside [3, 5]", b.Speed)
		}
	}
}

func TestMotionBehaviours(t *testing.T) {
	sys := NewSystem(nil, DefaultOptions())
	b := newBullet(Vector{0, 0}, nil)
	b.Direction = Vector{1, 0}

	rot := mustBlock(t, Const(Number(90)), behave(t, "RotateDirection", "AngleD"))
	if err := rot.Execute(b, sys); err != nil {
		t.Fatalf("RotateDirection failed: %v", err)
	}
	if !approx(b.Direction.X, 0) || !approx(b.Direction.Y, 1) {
		t.Errorf("direction = %v, want (0, 1)", b.Direction)
	}

	grav := mustBlock(t, Const(Vector{100, 0}), Const(Number(1)), behave(t, "Gravity", "Direction", "Weight"))
	if err := grav.Execute(b, sys); err != nil {
		t.Fatalf("Gravity failed: %v", err)
	}
	if !approx(b.Direction.X, 1) || !approx(b.Direction.Y, 1) {
		t.Errorf("direction = %v, want (1, 1)", b.Direction)
	}

	b.RelativePosition = Vector{2, 0}
	around := mustBlock(t, Const(Vector{1, 0}), Const(Number(math.Pi)), behave(t, "RotateAround", "Point", "Angle"))
	if err := around.Execute(b, sys); err != nil {
		t.Fatalf("RotateAround failed: %v", err)
	}
	if !approx(b.Position().X, 0) || !approx(b.Position().Y, 0) {
		t.Errorf("position = %v, want (0, 0)", b.Position())
	}

	if err := mustBlock(t, behave(t, "Kill")).Execute(nil, sys); err == nil {
		t.Error("Kill without a bullet should fail")
	}
}

func TestKillIfOffscreen(t *testing.T) {
	sys := NewSystem(nil, DefaultOptions())
	kill := mustBlock(t, Const(Number(10)), behave(t, "KillIfOffscreen", "Leeway"))

	inside := newBullet(Vector{-5, 100}, nil)
	if err := kill.Execute(inside, sys); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if inside.Dead {
		t.Error("bullet within the leeway was killed")
	}

	outside := newBullet(Vector{1300, 100}, nil)
	if err := kill.Execute(outside, sys); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !outside.Dead {
		t.Error("offscreen bullet survived")
	}
}

func TestTransitionSpeedComponent(t *testing.T) {
	f := NewFactory("Slow", mustBlock(t,
		Const(Number(10)), Const(Number(160)), behave(t, "TransitionSpeed", "End", "Duration"),
	), nil)
	sys := NewSystem(nil, DefaultOptions())
	b, err := f.Instantiate(Vector{}, sys)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	sys.AddBullet(b, NoBullet)
	if b.Components() != 1 {
		t.Fatalf("components = %d, want 1", b.Components())
	}
	if err := sys.Run(1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !approx(b.Speed, 1) {
		t.Errorf("speed after one tick = %v, want 1", b.Speed)
	}
	if err := sys.Run(10); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if b.Speed != 10 || b.Components() != 0 {
		t.Errorf("speed = %v components = %d, want 10 and 0", b.Speed, b.Components())
	}
}

func TestMoveToComponent(t *testing.T) {
	f := NewFactory("Mover", mustBlock(t,
		Const(Vector{100, 50}), Const(Number(32)), Const(Bool(true)),
		behave(t, "MoveTo", "End", "Duration", "AbsolutePosition"),
	), nil)
	sys := NewSystem(nil, DefaultOptions())
	b, err := f.Instantiate(Vector{20, 10}, sys)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	sys.AddBullet(b, NoBullet)
	if err := sys.Run(3); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if b.Position() != (Vector{100, 50}) {
		t.Errorf("position = %v, want (100, 50)", b.Position())
	}
	if b.Components() != 0 {
		t.Errorf("components = %d, want 0", b.Components())
	}
}
