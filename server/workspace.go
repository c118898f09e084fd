package server

import (
	"errors"
	"io"
	"sort"

	"github.com/chazu/dml/compiler"
	"github.com/chazu/dml/compiler/hash"
	"github.com/chazu/dml/vm"
)

// checkTicks is how many ticks a document is simulated for after it
// compiles, to surface runtime errors as diagnostics.
const checkTicks = 60

// Document is one open script and the result of compiling it.
type Document struct {
	URI     string
	Text    string
	Program *vm.Program // nil when Err is a compile error
	Err     error       // compile error, or the first runtime error within checkTicks
	Hash    [32]byte

	decls map[string]Declaration
}

// Declaration is where a global or factory is first defined.
type Declaration struct {
	Name    string
	Line    int // 1-based
	Factory bool
}

// Declarations returns the document's declarations sorted by line.
func (d *Document) Declarations() []Declaration {
	out := make([]Declaration, 0, len(d.decls))
	for _, decl := range d.decls {
		out = append(out, decl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Declaration looks up a global or factory by name.
func (d *Document) Declaration(name string) (Declaration, bool) {
	decl, ok := d.decls[name]
	return decl, ok
}

// Workspace holds the open documents. It is owned by a Worker goroutine
// and must not be touched from anywhere else.
type Workspace struct {
	Options vm.Options

	docs map[string]*Document
	sims *SimulationStore
}

// NewWorkspace creates an empty workspace whose systems use opts.
func NewWorkspace(opts vm.Options) *Workspace {
	return &Workspace{
		Options: opts,
		docs:    make(map[string]*Document),
		sims:    NewSimulationStore(),
	}
}

// Simulations returns the workspace's running simulations.
func (ws *Workspace) Simulations() *SimulationStore { return ws.sims }

// Update replaces the text of uri, recompiles it and checks it.
func (ws *Workspace) Update(uri, text string) *Document {
	doc := &Document{URI: uri, Text: text}
	ws.docs[uri] = doc

	tokens, err := compiler.Tokenize(text)
	if err != nil {
		doc.Err = err
		return doc
	}
	doc.decls = declarations(tokens)

	prog, err := compiler.CompileTokens(tokens)
	if err != nil {
		doc.Err = err
		return doc
	}
	doc.Program = prog
	doc.Hash = hash.Program(prog)

	opts := ws.Options
	opts.Console = io.Discard
	opts.OnSprite = nil
	if err := vm.NewSystem(prog, opts).Run(checkTicks); err != nil {
		doc.Err = err
	}
	log.Debugf("checked %s: %s", uri, hash.Hex(doc.Hash)[:12])
	return doc
}

// Get returns the open document for uri.
func (ws *Workspace) Get(uri string) (*Document, bool) {
	doc, ok := ws.docs[uri]
	return doc, ok
}

// Close forgets uri and releases its simulations.
func (ws *Workspace) Close(uri string) {
	delete(ws.docs, uri)
	ws.sims.ReleaseDocument(uri)
}

// URIs returns the open document URIs, sorted.
func (ws *Workspace) URIs() []string {
	out := make([]string, 0, len(ws.docs))
	for uri := range ws.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Start creates a fresh system for uri's program.
func (ws *Workspace) Start(uri string) (*vm.System, error) {
	doc, ok := ws.docs[uri]
	if !ok {
		return nil, errors.New("document not open: " + uri)
	}
	if doc.Program == nil {
		return nil, doc.Err
	}
	return vm.NewSystem(doc.Program, ws.Options), nil
}

// declarations scans for `Assign @name` and `Bullet @name` at the top
// level and inside blocks. The first assignment of a global wins; a later
// Bullet declaration replaces an earlier one, as it does when compiling.
func declarations(tokens []compiler.Token) map[string]Declaration {
	decls := make(map[string]Declaration)
	for i := 0; i+2 < len(tokens); i++ {
		kw, at, name := tokens[i], tokens[i+1], tokens[i+2]
		if !at.Is(compiler.TokenAt) || !name.Is(compiler.TokenName) {
			continue
		}
		var factory bool
		switch {
		case kw.Is(compiler.TokenBullet):
			factory = true
		case kw.Is(compiler.TokenAssign):
		default:
			continue
		}
		if prev, ok := decls[name.Literal]; !ok || (factory && prev.Factory) {
			decls[name.Literal] = Declaration{Name: name.Literal, Line: name.Line, Factory: factory}
		}
	}
	return decls
}
