package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/dml/compiler"
	"github.com/chazu/dml/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("dml.server")

const lspName = "dml-lsp"

// Commands served through workspace/executeCommand.
const (
	CommandSimulate = "dml.simulate" // [uri] -> simulation id
	CommandStep     = "dml.step"     // [id, ticks] -> SimulationStatus
	CommandRelease  = "dml.release"  // [id]
)

const (
	simulationTTL      = 10 * time.Minute
	sweepInterval      = time.Minute
	maxStepTicks       = 100000
	maxCompletionItems = 100
)

// SimulationStatus reports a simulation's clock after a step.
type SimulationStatus struct {
	ID      string  `json:"id"`
	Tick    int     `json:"tick"`
	Time    float64 `json:"time"`
	Bullets int     `json:"bullets"`
}

// LspServer bridges LSP editor features to the compiler and systems via
// Worker.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler     protocol.Handler
	server      *glspserver.Server
	version     string
	stopSweeper func()
}

// NewLSP creates a new LSP server whose simulations use opts.
func NewLSP(opts vm.Options) *LspServer {
	ws := NewWorkspace(opts)
	s := &LspServer{
		worker:  NewWorker(ws),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,

		WorkspaceExecuteCommand: s.workspaceExecuteCommand,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)
	s.stopSweeper = ws.Simulations().StartSweeper(sweepInterval, simulationTTL)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	defer s.stop()
	return s.server.RunStdio()
}

func (s *LspServer) stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.stopSweeper = nil
	}
	s.worker.Stop()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("DML LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"%", "$", "@"},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.DocumentSymbolProvider = true
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandSimulate, CommandStep, CommandRelease},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.worker.Do(func(ws *Workspace) any {
		ws.Close(string(uri))
		return nil
	})

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) text(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	sigil, prefix := completionContext(text, params.Position)
	if sigil == 0 && prefix == "" {
		return nil, nil
	}
	line := lineAt(text, params.Position)

	return s.worker.Do(func(ws *Workspace) any {
		doc, _ := ws.Get(string(uri))
		return s.complete(doc, sigil, prefix, line)
	})
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	sigil, word := sigilWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *Workspace) any {
		doc, _ := ws.Get(string(uri))
		return s.hover(doc, sigil, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	sigil, word := sigilWord(text, params.Position)
	if sigil != '@' || word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *Workspace) any {
		doc, ok := ws.Get(string(uri))
		if !ok {
			return nil
		}
		return s.definition(doc, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LspServer) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	return s.worker.Do(func(ws *Workspace) any {
		doc, ok := ws.Get(string(uri))
		if !ok {
			return nil
		}
		return s.symbols(doc, text)
	})
}

func (s *LspServer) workspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	result, err := s.worker.Do(func(ws *Workspace) any {
		v, err := s.execute(ws, params.Command, params.Arguments)
		if err != nil {
			return err
		}
		return v
	})
	if err != nil {
		return nil, err
	}
	if err, ok := result.(error); ok {
		return nil, err
	}
	return result, nil
}

// --- Workspace-backed logic (called on worker goroutine) ---

var keywordDocs = map[string]string{
	"Assign":   "`Assign name expr;` stores into a local, `@global` or `$property`.",
	"Range":    "`Range i a...b\\>step < ... >` runs its body for each value from a to b inclusive.",
	"Bullet":   "`Bullet @Name < Init < ... > Update < ... > >` declares a bullet factory.",
	"Pattern":  "Reserved.",
	"Timeline": "`Timeline < ... >` holds the time commands run against the global clock, plus Assign and Range setup that runs once.",
	"Init":     "Runs once when a bullet is created.",
	"Update":   "Runs once per tick for every live bullet.",
	"Children": "Reserved.",
	"Lambda":   "Reserved.",
	"True":     "Boolean true.",
	"False":    "Boolean false.",
	"Null":     "The null value.",
}

var intrinsicDocs = map[string]string{
	"Direction": "Unit vector the bullet travels along.",
	"Speed":     "Distance moved per tick.",
	"Colour":    "The bullet's colour.",
	"Origin":    "Point the bullet's position is relative to.",
	"Position":  "Origin plus relative position.",
	"Velocity":  "Direction times speed. Read only.",
	"Time":      "Milliseconds since the bullet was created, or global time outside a bullet. Read only.",
	"Sprite":    "Sprite name reported to the host.",
}

func (s *LspServer) complete(doc *Document, sigil byte, prefix, line string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(strings.ToLower(label), lowerPrefix) {
			return
		}
		labelCopy, detailCopy := label, detail
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detailCopy,
			InsertText: &labelCopy,
		})
	}

	switch sigil {
	case '%':
		behaviour := lastBehaviour(line)
		var params []string
		if behaviour != "" {
			params = vm.BehaviourParams(behaviour)
		} else {
			params = allParams()
		}
		detail := "parameter"
		if behaviour != "" {
			detail = "parameter of " + behaviour
		}
		for _, p := range params {
			add(p, protocol.CompletionItemKindProperty, detail)
		}

	case '$':
		for _, name := range vm.IntrinsicNames() {
			add(name, protocol.CompletionItemKindField, "property")
		}

	case '@':
		if doc != nil {
			for _, d := range doc.Declarations() {
				if d.Factory {
					add(d.Name, protocol.CompletionItemKindClass, "bullet")
				} else {
					add(d.Name, protocol.CompletionItemKindVariable, "global")
				}
			}
		}

	default:
		for _, kw := range compiler.Keywords() {
			add(kw, protocol.CompletionItemKindKeyword, "keyword")
		}
		for _, name := range vm.BehaviourNames() {
			add(name, protocol.CompletionItemKindMethod, "behaviour")
		}
		for _, name := range vm.BuiltinNames() {
			builtin, _ := vm.LookupBuiltin(name, nil)
			if _, ok := builtin.(vm.Func); ok {
				add(name, protocol.CompletionItemKindFunction, "builtin")
			} else {
				add(name, protocol.CompletionItemKindConstant, "builtin")
			}
		}
	}

	if len(items) > maxCompletionItems {
		items = items[:maxCompletionItems]
	}
	return items
}

func (s *LspServer) hover(doc *Document, sigil byte, word string) *protocol.Hover {
	var b strings.Builder

	switch sigil {
	case '%':
		var users []string
		for _, name := range vm.BehaviourNames() {
			for _, p := range vm.BehaviourParams(name) {
				if p == word {
					users = append(users, name)
					break
				}
			}
		}
		if len(users) == 0 {
			return nil
		}
		fmt.Fprintf(&b, "**%%%s**\n\nParameter of %s.", word, strings.Join(users, ", "))

	case '$':
		if text, ok := intrinsicDocs[word]; ok {
			fmt.Fprintf(&b, "**$%s**\n\n%s", word, text)
		} else {
			fmt.Fprintf(&b, "**$%s**\n\nBullet variable.", word)
		}

	case '@':
		if doc == nil {
			return nil
		}
		d, ok := doc.Declaration(word)
		if !ok {
			return nil
		}
		if d.Factory {
			fmt.Fprintf(&b, "**Bullet @%s**\n\nDeclared on line %d.", word, d.Line)
			if doc.Program != nil {
				if f, ok := doc.Program.Factories[word]; ok {
					fmt.Fprintf(&b, "\n\nInit: %d instructions, Update: %d instructions",
						f.Init.Len(), f.Update.Len())
				}
			}
		} else {
			fmt.Fprintf(&b, "**@%s**\n\nGlobal, first assigned on line %d.", word, d.Line)
		}

	default:
		switch {
		case vm.IsBehaviour(word):
			fmt.Fprintf(&b, "**%s** (behaviour)\n\n%s", word, vm.BehaviourDoc(word))
		case vm.BuiltinDoc(word) != "":
			fmt.Fprintf(&b, "**%s**\n\n%s", word, vm.BuiltinDoc(word))
		case keywordDocs[word] != "":
			fmt.Fprintf(&b, "**%s**\n\n%s", word, keywordDocs[word])
		default:
			return nil
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func (s *LspServer) definition(doc *Document, word string) []protocol.Location {
	d, ok := doc.Declaration(word)
	if !ok {
		return nil
	}
	return []protocol.Location{{
		URI:   protocol.DocumentUri(doc.URI),
		Range: lineRange(doc.Text, d.Line),
	}}
}

func (s *LspServer) symbols(doc *Document, text string) []protocol.DocumentSymbol {
	var out []protocol.DocumentSymbol
	for _, d := range doc.Declarations() {
		kind := protocol.SymbolKindVariable
		detail := "global"
		if d.Factory {
			kind = protocol.SymbolKindClass
			detail = "bullet"
		}
		r := lineRange(text, d.Line)
		detailCopy := detail
		out = append(out, protocol.DocumentSymbol{
			Name:           "@" + d.Name,
			Detail:         &detailCopy,
			Kind:           kind,
			Range:          r,
			SelectionRange: r,
		})
	}
	return out
}

func (s *LspServer) execute(ws *Workspace, command string, args []any) (any, error) {
	switch command {
	case CommandSimulate:
		uri, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		sys, err := ws.Start(uri)
		if err != nil {
			return nil, err
		}
		if err := sys.Begin(); err != nil {
			return nil, err
		}
		return ws.Simulations().Create(uri, sys), nil

	case CommandStep:
		id, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		ticks := 1
		if len(args) > 1 {
			n, ok := args[1].(float64)
			if !ok || n < 0 || n > maxStepTicks {
				return nil, fmt.Errorf("%s: tick count must be a number from 0 to %d", command, maxStepTicks)
			}
			ticks = int(n)
		}
		sys, ok := ws.Simulations().Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown simulation %q", id)
		}
		if err := sys.Run(ticks); err != nil {
			return nil, err
		}
		return SimulationStatus{
			ID:      id,
			Tick:    sys.Tick(),
			Time:    sys.GlobalTime(),
			Bullets: sys.Len(),
		}, nil

	case CommandRelease:
		id, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		ws.Simulations().Release(id)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a string", i+1)
	}
	return s, nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(ws *Workspace) any {
		return diagnose(ws.Update(string(uri), text))
	})
	if err != nil {
		log.Errorf("checking %s: %s", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// diagnose reports a document's compile or runtime error on the line it
// names, or on the first line when the error has no line.
func diagnose(doc *Document) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	if doc.Err == nil {
		return diagnostics
	}

	line := 0
	msg := doc.Err.Error()
	var e *vm.Error
	if errors.As(doc.Err, &e) {
		line, msg = e.Line, e.Msg
	}
	if doc.Program != nil {
		msg = "runtime: " + msg
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	diagnostics = append(diagnostics, protocol.Diagnostic{
		Range:    lineRange(doc.Text, line),
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	})
	return diagnostics
}

// --- Text extraction helpers ---

// lineRange spans the whole of 1-based line n. Lines outside the text,
// and n == 0, map to the start of the document.
func lineRange(text string, n int) protocol.Range {
	lines := strings.Split(text, "\n")
	if n < 1 || n > len(lines) {
		return protocol.Range{}
	}
	end := len(strings.TrimRight(lines[n-1], "\r"))
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(n - 1), Character: 0},
		End:   protocol.Position{Line: protocol.UInteger(n - 1), Character: protocol.UInteger(end)},
	}
}

// lineAt returns the text of the cursor's line up to the cursor.
func lineAt(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line[:col]
}

func isNameChar(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)) || ch == '_'
}

func isSigil(ch byte) bool {
	return ch == '%' || ch == '$' || ch == '@'
}

// extractPrefix returns the name fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line := lineAt(text, pos)

	// Walk backwards from cursor to find the start of the name
	start := len(line)
	for start > 0 && isNameChar(line[start-1]) {
		start--
	}
	return line[start:]
}

// completionContext returns the sigil immediately before the name fragment
// at the cursor, or 0, and the fragment itself.
func completionContext(text string, pos protocol.Position) (byte, string) {
	line := lineAt(text, pos)
	prefix := extractPrefix(text, pos)
	i := len(line) - len(prefix) - 1
	// `@ Name` is valid DML, so skip blanks between sigil and name.
	for i >= 0 && line[i] == ' ' {
		i--
	}
	if i >= 0 && isSigil(line[i]) {
		return line[i], prefix
	}
	return 0, prefix
}

// extractWord returns the full name under the cursor.
func extractWord(text string, pos protocol.Position) string {
	_, word := sigilWord(text, pos)
	return word
}

// sigilWord returns the name under the cursor and the sigil before it.
func sigilWord(text string, pos protocol.Position) (byte, string) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return 0, ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isNameChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isNameChar(line[end]) {
		end++
	}
	if start == end {
		return 0, ""
	}

	i := start - 1
	for i >= 0 && line[i] == ' ' {
		i--
	}
	if i >= 0 && isSigil(line[i]) {
		return line[i], line[start:end]
	}
	return 0, line[start:end]
}

// lastBehaviour returns the last behaviour name in line, or "".
func lastBehaviour(line string) string {
	found := ""
	for _, field := range strings.FieldsFunc(line, func(r rune) bool {
		return r > unicode.MaxASCII || !isNameChar(byte(r))
	}) {
		if vm.IsBehaviour(field) {
			found = field
		}
	}
	return found
}

// allParams returns every behaviour parameter name, sorted.
func allParams() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range vm.BehaviourNames() {
		for _, p := range vm.BehaviourParams(name) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

func boolPtr(b bool) *bool {
	return &b
}
