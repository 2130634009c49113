// symtab.go implements the identifier table, the string table and the scope
// stack. Identifiers are referred to by opaque integer identifiers into a
// flat table; scoping is a stack of name maps resolved top down.

package ir

import "rvcc/src/util"

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// IdentID is an opaque reference to an entry in the identifier table.
type IdentID int

// BuiltinKind selects the built-in behaviour of a predeclared function.
type BuiltinKind int

// Ident is a single entry of the identifier table.
type Ident struct {
	Name    string      // Spelling of the identifier.
	Typ     TypeID      // Declared type.
	Builtin BuiltinKind // Built-in behaviour, BuiltinNone for user identifiers.
	Global  bool        // True if declared at file scope.
}

// IdentTable holds every declared identifier of a translation unit.
type IdentTable struct {
	idents []Ident
}

// StringTable holds the interned string literals of a translation unit.
type StringTable struct {
	St []string // String literals in order of interning.
}

// symTab is one scope's name map.
type symTab struct {
	entries map[string]IdentID
}

// ---------------------
// ----- Constants -----
// ---------------------

// Built-in function kinds. Built-ins are identified by name when the global
// scope is seeded, never by identifier number.
const (
	BuiltinNone BuiltinKind = iota
	BuiltinPrintf
	BuiltinPrintid
	BuiltinPrint
	BuiltinStrcat
	BuiltinStrncpy
	BuiltinAsin
	BuiltinCos
	BuiltinSin
	BuiltinExp
	BuiltinLog
	BuiltinLog10
	BuiltinSqrt
	BuiltinAbs
	BuiltinFabs
)

// ---------------------
// ----- Functions -----
// ---------------------

// Amount returns the number of declared identifiers.
func (it *IdentTable) Amount() int {
	return len(it.idents)
}

// Name returns the spelling of identifier id.
func (it *IdentTable) Name(id IdentID) string {
	return it.idents[id].Name
}

// TypeOf returns the declared type of identifier id.
func (it *IdentTable) TypeOf(id IdentID) TypeID {
	return it.idents[id].Typ
}

// Builtin returns the built-in kind of identifier id.
func (it *IdentTable) Builtin(id IdentID) BuiltinKind {
	return it.idents[id].Builtin
}

// IsGlobal reports whether identifier id was declared at file scope.
func (it *IdentTable) IsGlobal(id IdentID) bool {
	return it.idents[id].Global
}

// add appends a new identifier entry and returns its id.
func (it *IdentTable) add(e Ident) IdentID {
	it.idents = append(it.idents, e)
	return IdentID(len(it.idents) - 1)
}

// Add interns the string literal s and returns its index.
func (st *StringTable) Add(s string) int {
	st.St = append(st.St, s)
	return len(st.St) - 1
}

// Amount returns the number of interned string literals.
func (st *StringTable) Amount() int {
	return len(st.St)
}

// Get returns string literal number i.
func (st *StringTable) Get(i int) string {
	return st.St[i]
}

// PushScope opens a new innermost scope.
func (ctx *Context) PushScope() {
	ctx.scopes.Push(&symTab{entries: map[string]IdentID{}})
}

// PopScope closes the innermost scope. Identifier entries survive in the
// flat table; only the name binding is dropped.
func (ctx *Context) PopScope() {
	ctx.scopes.Pop()
}

// Declare binds name to a fresh identifier of the given type in the
// innermost scope. The second return value is false if the name is already
// bound in that scope.
func (ctx *Context) Declare(name string, typ TypeID) (IdentID, bool) {
	s := ctx.scopes.Peek().(*symTab)
	if _, ok := s.entries[name]; ok {
		return 0, false
	}
	id := ctx.Idents.add(Ident{Name: name, Typ: typ, Global: ctx.scopes.Size() == 1})
	s.entries[name] = id
	return id, true
}

// Lookup resolves name through the scope stack, innermost scope first.
func (ctx *Context) Lookup(name string) (IdentID, bool) {
	for i1 := 1; i1 <= ctx.scopes.Size(); i1++ {
		if s := ctx.scopes.Get(i1).(*symTab); s != nil {
			if id, ok := s.entries[name]; ok {
				return id, true
			}
		}
	}
	return 0, false
}

// declareBuiltins seeds the global scope with the predeclared functions.
func (ctx *Context) declareBuiltins() {
	tt := ctx.Types
	str := tt.Array(Integer)
	builtins := []struct {
		name string
		kind BuiltinKind
		typ  TypeID
	}{
		// printf is the sole variadic; the declared type carries the format
		// parameter only. The builder checks the kind of each trailing
		// argument; nothing checks them against the format string.
		{"printf", BuiltinPrintf, tt.Function(Integer, []TypeID{str})},
		{"printid", BuiltinPrintid, tt.Function(Void, []TypeID{Integer})},
		{"print", BuiltinPrint, tt.Function(Void, []TypeID{Integer})},
		{"strcat", BuiltinStrcat, tt.Function(str, []TypeID{str, str})},
		{"strncpy", BuiltinStrncpy, tt.Function(str, []TypeID{str, str, Integer})},
		{"asin", BuiltinAsin, tt.Function(Floating, []TypeID{Floating})},
		{"cos", BuiltinCos, tt.Function(Floating, []TypeID{Floating})},
		{"sin", BuiltinSin, tt.Function(Floating, []TypeID{Floating})},
		{"exp", BuiltinExp, tt.Function(Floating, []TypeID{Floating})},
		{"log", BuiltinLog, tt.Function(Floating, []TypeID{Floating})},
		{"log10", BuiltinLog10, tt.Function(Floating, []TypeID{Floating})},
		{"sqrt", BuiltinSqrt, tt.Function(Floating, []TypeID{Floating})},
		{"abs", BuiltinAbs, tt.Function(Integer, []TypeID{Integer})},
		{"fabs", BuiltinFabs, tt.Function(Floating, []TypeID{Floating})},
	}
	s := ctx.scopes.Peek().(*symTab)
	for _, e1 := range builtins {
		id := ctx.Idents.add(Ident{Name: e1.name, Typ: e1.typ, Builtin: e1.kind, Global: true})
		s.entries[e1.name] = id
	}
}

// Context owns the tables, the reporter and the AST arena of one
// translation unit. It is threaded through every compiler stage; there is
// no module level state.
type Context struct {
	Types   *TypeTable
	Idents  *IdentTable
	Strings *StringTable
	Rep     *Reporter
	Nodes   *Arena

	scopes util.Stack // Stack of *symTab for identifier lookup.
}

// NewContext returns a context with seeded type table, built-in
// declarations and an empty arena.
func NewContext() *Context {
	ctx := &Context{
		Types:   NewTypeTable(),
		Idents:  &IdentTable{},
		Strings: &StringTable{},
		Rep:     NewReporter(),
		Nodes:   newArena(),
	}
	ctx.PushScope() // Global scope.
	ctx.declareBuiltins()
	return ctx
}
