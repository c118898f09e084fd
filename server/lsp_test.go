package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/dml/vm"
)

const orbScript = `Assign @count 0;
Bullet @Orb <
  Init < Assign $Speed 2; >
  Update < After(64) < Kill | ; > >
>
Timeline <
  At(0) < RadialSpawn | %BulletType @Orb, %Streams 4, %Speed 2; >
>
`

func newTestLSP(t *testing.T) *LspServer {
	t.Helper()
	ws := NewWorkspace(vm.DefaultOptions())
	s := &LspServer{
		worker: NewWorker(ws),
		docs:   make(map[string]string),
	}
	t.Cleanup(s.worker.Stop)
	return s
}

func openDoc(t *testing.T, s *LspServer, uri, text string) *Document {
	t.Helper()
	result, err := s.worker.Do(func(ws *Workspace) any {
		return ws.Update(uri, text)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()
	return result.(*Document)
}

func labels(items []protocol.CompletionItem) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item.Label] = true
	}
	return out
}

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"Assign x Ma", protocol.Position{Line: 0, Character: 11}, "Ma"},
		{"Spa", protocol.Position{Line: 0, Character: 3}, "Spa"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"first\nsecond\nRad", protocol.Position{Line: 2, Character: 3}, "Rad"},
		{"hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"Assign $Spe", protocol.Position{Line: 0, Character: 11}, "Spe"},
		{"short", protocol.Position{Line: 0, Character: 99}, "short"},
	}
	for _, tc := range tests {
		if got := extractPrefix(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestCompletionContext(t *testing.T) {
	tests := []struct {
		text   string
		col    uint32
		sigil  byte
		prefix string
	}{
		{"Spawn | %Bul", 12, '%', "Bul"},
		{"Spawn | %", 9, '%', ""},
		{"Assign $Sp", 10, '$', "Sp"},
		{"Assign @ co", 11, '@', "co"},
		{"Assign x Ma", 11, 0, "Ma"},
		{"", 0, 0, ""},
	}
	for _, tc := range tests {
		sigil, prefix := completionContext(tc.text, protocol.Position{Line: 0, Character: tc.col})
		if sigil != tc.sigil || prefix != tc.prefix {
			t.Errorf("completionContext(%q) = (%q, %q), want (%q, %q)", tc.text, sigil, prefix, tc.sigil, tc.prefix)
		}
	}
}

func TestSigilWord(t *testing.T) {
	tests := []struct {
		text  string
		col   uint32
		sigil byte
		word  string
	}{
		{"hello world", 3, 0, "hello"},
		{"hello world", 5, 0, "hello"},
		{"hello world", 8, 0, "world"},
		{"my_var", 3, 0, "my_var"},
		{"Spawn | %BulletType @Orb", 12, '%', "BulletType"},
		{"Spawn | %BulletType @Orb", 22, '@', "Orb"},
		{"Assign $Speed 2;", 9, '$', "Speed"},
		{"", 0, 0, ""},
		{"a + b", 2, 0, ""},
	}
	for _, tc := range tests {
		sigil, word := sigilWord(tc.text, protocol.Position{Line: 0, Character: tc.col})
		if sigil != tc.sigil || word != tc.word {
			t.Errorf("sigilWord(%q, %d) = (%q, %q), want (%q, %q)", tc.text, tc.col, sigil, word, tc.sigil, tc.word)
		}
	}
	if got := extractWord("first\nObject", protocol.Position{Line: 1, Character: 3}); got != "Object" {
		t.Errorf("extractWord on second line = %q, want Object", got)
	}
	if got := extractWord("single line", protocol.Position{Line: 5}); got != "" {
		t.Errorf("extractWord beyond doc = %q, want empty string", got)
	}
}

func TestLineRange(t *testing.T) {
	text := "one\r\nthree\n"
	r := lineRange(text, 2)
	if r.Start.Line != 1 || r.Start.Character != 0 || r.End.Line != 1 || r.End.Character != 5 {
		t.Errorf("lineRange(2) = %+v, want line 1 chars 0-5", r)
	}
	r = lineRange(text, 1)
	if r.End.Character != 3 {
		t.Errorf("lineRange(1) end = %d, want 3 (carriage return trimmed)", r.End.Character)
	}
	for _, n := range []int{0, -1, 10} {
		if r := lineRange(text, n); r != (protocol.Range{}) {
			t.Errorf("lineRange(%d) = %+v, want zero range", n, r)
		}
	}
}

func TestLastBehaviour(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"At(0) < RadialSpawn | %BulletType @Orb, %", "RadialSpawn"},
		{"Spawn | ; TransitionSpeed | %", "TransitionSpeed"},
		{"Assign x 1;", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := lastBehaviour(tc.line); got != tc.want {
			t.Errorf("lastBehaviour(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Error("boolPtr(true) should point at true")
	}
	if p := boolPtr(false); p == nil || *p {
		t.Error("boolPtr(false) should point at false")
	}
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestCompleteNames(t *testing.T) {
	s := newTestLSP(t)
	got := labels(s.complete(nil, 0, "Ra", ""))
	for _, want := range []string{"Range", "RadialSpawn", "Random"} {
		if !got[want] {
			t.Errorf("complete(Ra) missing %s: %v", want, got)
		}
	}
	if got["Assign"] {
		t.Error("complete(Ra) should filter by prefix")
	}

	items := s.complete(nil, 0, "Spawn", "")
	for _, item := range items {
		if item.Label == "Spawn" && (item.Kind == nil || *item.Kind != protocol.CompletionItemKindMethod) {
			t.Error("Spawn completion should have Kind=Method")
		}
	}
}

func TestCompleteParams(t *testing.T) {
	s := newTestLSP(t)

	got := labels(s.complete(nil, '%', "", "At(0) < RadialSpawn | %"))
	want := vm.BehaviourParams("RadialSpawn")
	if len(got) != len(want) {
		t.Errorf("RadialSpawn params = %v, want %v", got, want)
	}
	for _, p := range want {
		if !got[p] {
			t.Errorf("RadialSpawn completion missing %%%s", p)
		}
	}

	got = labels(s.complete(nil, '%', "Bul", "Assign x 1; %"))
	if !got["BulletType"] {
		t.Errorf("params without a behaviour should include BulletType, got %v", got)
	}
}

func TestCompleteIntrinsics(t *testing.T) {
	s := newTestLSP(t)
	got := labels(s.complete(nil, '$', "", "Assign $"))
	for _, want := range vm.IntrinsicNames() {
		if !got[want] {
			t.Errorf("$ completion missing %s", want)
		}
	}
	if got["Spawn"] {
		t.Error("$ completion should not offer behaviours")
	}
}

func TestCompleteDeclarations(t *testing.T) {
	s := newTestLSP(t)
	doc := openDoc(t, s, "file:///orb.dml", orbScript)

	items := s.complete(doc, '@', "", "")
	got := labels(items)
	if !got["count"] || !got["Orb"] {
		t.Fatalf("@ completion = %v, want count and Orb", got)
	}
	for _, item := range items {
		if item.Label == "Orb" && *item.Kind != protocol.CompletionItemKindClass {
			t.Error("Orb completion should have Kind=Class")
		}
		if item.Label == "count" && *item.Kind != protocol.CompletionItemKindVariable {
			t.Error("count completion should have Kind=Variable")
		}
	}
	if items := s.complete(nil, '@', "", ""); len(items) != 0 {
		t.Errorf("@ completion without a document = %d items, want 0", len(items))
	}
}

func TestCompleteLimit(t *testing.T) {
	s := newTestLSP(t)
	if items := s.complete(nil, 0, "", ""); len(items) > maxCompletionItems {
		t.Errorf("complete returned %d items, limit %d", len(items), maxCompletionItems)
	}
}

// ---------------------------------------------------------------------------
// Hover and definition
// ---------------------------------------------------------------------------

func hoverText(t *testing.T, h *protocol.Hover) string {
	t.Helper()
	if h == nil {
		t.Fatal("hover returned nil")
	}
	mc, ok := h.Contents.(protocol.MarkupContent)
	if !ok {
		t.Fatal("hover contents should be MarkupContent")
	}
	if mc.Kind != protocol.MarkupKindMarkdown {
		t.Errorf("hover markup kind = %q, want %q", mc.Kind, protocol.MarkupKindMarkdown)
	}
	return mc.Value
}

func TestHover(t *testing.T) {
	s := newTestLSP(t)
	doc := openDoc(t, s, "file:///orb.dml", orbScript)

	tests := []struct {
		sigil byte
		word  string
		want  string
	}{
		{0, "RadialSpawn", "%Streams"},
		{0, "Max", "Max"},
		{0, "Range", "inclusive"},
		{'%', "Streams", "RadialSpawn"},
		{'$', "Speed", "Distance moved per tick."},
		{'$', "hits", "Bullet variable."},
		{'@', "Orb", "Declared on line 2."},
		{'@', "count", "first assigned on line 1"},
	}
	for _, tc := range tests {
		got := hoverText(t, s.hover(doc, tc.sigil, tc.word))
		if !strings.Contains(got, tc.want) {
			t.Errorf("hover(%q, %s) = %q, want it to contain %q", tc.sigil, tc.word, got, tc.want)
		}
	}
}

func TestHoverUnknown(t *testing.T) {
	s := newTestLSP(t)
	doc := openDoc(t, s, "file:///orb.dml", orbScript)
	for _, tc := range []struct {
		sigil byte
		word  string
	}{
		{0, "NoSuchThing99"},
		{'%', "NoSuchParam"},
		{'@', "missing"},
	} {
		if h := s.hover(doc, tc.sigil, tc.word); h != nil {
			t.Errorf("hover(%q, %s) = %v, want nil", tc.sigil, tc.word, h)
		}
	}
	if h := s.hover(nil, '@', "Orb"); h != nil {
		t.Error("@ hover without a document should return nil")
	}
}

func TestDefinition(t *testing.T) {
	s := newTestLSP(t)
	doc := openDoc(t, s, "file:///orb.dml", orbScript)

	locs := s.definition(doc, "Orb")
	if len(locs) != 1 {
		t.Fatalf("definition(Orb) = %d locations, want 1", len(locs))
	}
	if locs[0].URI != "file:///orb.dml" || locs[0].Range.Start.Line != 1 {
		t.Errorf("definition(Orb) = %+v, want line 1 of orb.dml", locs[0])
	}
	if locs := s.definition(doc, "missing"); len(locs) != 0 {
		t.Errorf("definition(missing) = %v, want none", locs)
	}
}

func TestSymbols(t *testing.T) {
	s := newTestLSP(t)
	doc := openDoc(t, s, "file:///orb.dml", orbScript)

	syms := s.symbols(doc, doc.Text)
	if len(syms) != 2 {
		t.Fatalf("symbols = %d, want 2", len(syms))
	}
	if syms[0].Name != "@count" || syms[0].Kind != protocol.SymbolKindVariable {
		t.Errorf("symbols[0] = %s (%v), want @count variable", syms[0].Name, syms[0].Kind)
	}
	if syms[1].Name != "@Orb" || syms[1].Kind != protocol.SymbolKindClass {
		t.Errorf("symbols[1] = %s (%v), want @Orb class", syms[1].Name, syms[1].Kind)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnose(t *testing.T) {
	s := newTestLSP(t)

	if got := diagnose(openDoc(t, s, "file:///ok.dml", orbScript)); len(got) != 0 {
		t.Errorf("diagnostics for a valid script = %v, want none", got)
	}

	got := diagnose(openDoc(t, s, "file:///bad.dml", "Assign @a 1;\nAssign @x (1 + 2;\n"))
	if len(got) != 1 {
		t.Fatalf("compile error diagnostics = %d, want 1", len(got))
	}
	d := got[0]
	if d.Range.Start.Line != 1 {
		t.Errorf("compile error on line %d, want 1", d.Range.Start.Line)
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Error("compile error should have error severity")
	}
	if strings.HasPrefix(d.Message, "An error occurred") || strings.HasPrefix(d.Message, "runtime:") {
		t.Errorf("compile error message = %q, want the bare message", d.Message)
	}

	got = diagnose(openDoc(t, s, "file:///rt.dml", "Assign @x @missing + 1;\n"))
	if len(got) != 1 {
		t.Fatalf("runtime error diagnostics = %d, want 1", len(got))
	}
	if want := "runtime: " + vm.UndefinedVariable("global", "missing").Msg; got[0].Message != want {
		t.Errorf("runtime diagnostic = %q, want %q", got[0].Message, want)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestSimulationCommands(t *testing.T) {
	s := newTestLSP(t)
	openDoc(t, s, "file:///orb.dml", orbScript)

	run := func(cmd string, args ...any) (any, error) {
		return s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{Command: cmd, Arguments: args})
	}

	v, err := run(CommandSimulate, "file:///orb.dml")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	id, ok := v.(string)
	if !ok || id == "" {
		t.Fatalf("simulate returned %v, want an id", v)
	}

	v, err = run(CommandStep, id, float64(1))
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	st := v.(SimulationStatus)
	if st.Tick != 1 || st.Bullets != 4 {
		t.Errorf("after 1 tick: %+v, want tick 1 with 4 bullets", st)
	}

	v, err = run(CommandStep, id, float64(9))
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if st := v.(SimulationStatus); st.Tick != 10 || st.Bullets != 0 || st.Time != 160 {
		t.Errorf("after 10 ticks: %+v, want tick 10, time 160, 0 bullets", st)
	}

	if _, err := run(CommandRelease, id); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := run(CommandStep, id); err == nil {
		t.Error("step after release should fail")
	}
}

func TestCommandErrors(t *testing.T) {
	s := newTestLSP(t)
	openDoc(t, s, "file:///bad.dml", "Assign @x (1;")

	tests := []struct {
		cmd  string
		args []any
	}{
		{"dml.nope", nil},
		{CommandSimulate, nil},
		{CommandSimulate, []any{42.0}},
		{CommandSimulate, []any{"file:///unopened.dml"}},
		{CommandSimulate, []any{"file:///bad.dml"}},
		{CommandStep, []any{"sim-999"}},
		{CommandStep, []any{"sim-1", "ten"}},
		{CommandStep, []any{"sim-1", -1.0}},
	}
	for _, tc := range tests {
		_, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{Command: tc.cmd, Arguments: tc.args})
		if err == nil {
			t.Errorf("%s %v succeeded, want an error", tc.cmd, tc.args)
		}
	}
}

func TestCloseReleasesSimulations(t *testing.T) {
	s := newTestLSP(t)
	openDoc(t, s, "file:///orb.dml", orbScript)

	if _, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command: CommandSimulate, Arguments: []any{"file:///orb.dml"},
	}); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	n, _ := s.worker.Do(func(ws *Workspace) any {
		ws.Close("file:///orb.dml")
		return ws.Simulations().Len()
	})
	if n != 0 {
		t.Errorf("simulations after close = %v, want 0", n)
	}
}
