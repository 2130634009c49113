// node.go implements the syntax tree as an arena of node records indexed by
// integer handles. Handle 0 is the broken node: it carries no type, is its
// own subtree and propagates error state without further diagnostics.
// Records are never removed, so handles stay referentially stable across
// constant folding; a folded unary or binary operator yields the handle of a
// fresh literal record, while ternary and comma folding yield the handle of
// the operand they keep.

package ir

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Node is a handle into the arena.
type Node int

// NodeKind differentiates the kinds of nodes in the syntax tree.
type NodeKind int

// Category is the value category of an expression: an object with
// addressable storage (lvalue) or a plain value (rvalue).
type Category int

// Loc is a position in the source code.
type Loc struct {
	Line int // Line in source code, one indexed.
	Pos  int // Position on the line, one indexed.
}

// UnaryOp enumerates the unary operators.
type UnaryOp int

// BinaryOp enumerates the binary operators, including assignments and the
// comma operator.
type BinaryOp int

// record is a single arena entry.
type record struct {
	Kind     NodeKind
	Typ      TypeID
	Cat      Category
	Begin    Loc
	End      Loc
	Op       int     // Unary or binary operator.
	Ident    IdentID // Referenced identifier.
	IVal     int     // Integer literal value, also case values.
	FVal     float64 // Floating literal value.
	StrIndex int     // Index into the string table.
	Member   int     // Member index of member expressions, also bound counts.
	Arrow    bool    // True for '->' member access and for declarations with initializer.
	Params   []IdentID
	Children []Node
}

// Arena holds the node records of one translation unit.
type Arena struct {
	records []record
}

// ---------------------
// ----- Constants -----
// ---------------------

// Broken is the error sentinel handle.
const Broken Node = 0

// Value categories.
const (
	LValue Category = iota + 1
	RValue
)

// Node kinds.
const (
	NodeBroken NodeKind = iota

	ExprIdentifier
	ExprLiteral
	ExprSubscript
	ExprMember
	ExprCall
	ExprUpb
	ExprUnary
	ExprBinary
	ExprTernary
	ExprCast
	ExprInitList

	StmtCompound
	StmtDecl
	StmtNull
	StmtIf
	StmtWhile
	StmtDo
	StmtFor
	StmtSwitch
	StmtCase
	StmtDefault
	StmtBreak
	StmtContinue
	StmtReturn

	DeclVar
	DeclFunc
	Unit
)

// Unary operators.
const (
	UnPostInc UnaryOp = iota
	UnPostDec
	UnPreInc
	UnPreDec
	UnAddress
	UnIndirection
	UnPlus
	UnMinus
	UnNot
	UnLogNot
	UnAbs
)

// Binary operators.
const (
	BinMul BinaryOp = iota
	BinDiv
	BinRem
	BinAdd
	BinSub
	BinShl
	BinShr
	BinLt
	BinGt
	BinLe
	BinGe
	BinEq
	BinNe
	BinAnd
	BinXor
	BinOr
	BinLogAnd
	BinLogOr
	BinAssign
	BinMulAssign
	BinDivAssign
	BinRemAssign
	BinAddAssign
	BinSubAssign
	BinShlAssign
	BinShrAssign
	BinAndAssign
	BinXorAssign
	BinOrAssign
	BinComma
)

// binOpNames provides print friendly operator spellings for diagnostics.
var binOpNames = [...]string{
	"*", "/", "%", "+", "-", "<<", ">>",
	"<", ">", "<=", ">=", "==", "!=",
	"&", "^", "|", "&&", "||",
	"=", "*=", "/=", "%=", "+=", "-=", "<<=", ">>=", "&=", "^=", "|=",
	",",
}

// unOpNames provides print friendly operator spellings for diagnostics.
var unOpNames = [...]string{
	"++", "--", "++", "--", "&", "*", "+", "-", "~", "!", "abs",
}

// ---------------------
// ----- Functions -----
// ---------------------

// String returns the operator spelling.
func (op BinaryOp) String() string {
	return binOpNames[op]
}

// String returns the operator spelling.
func (op UnaryOp) String() string {
	return unOpNames[op]
}

// IsAssignment reports whether op is plain or compound assignment.
func (op BinaryOp) IsAssignment() bool {
	return op >= BinAssign && op <= BinOrAssign
}

// Underlying returns the arithmetic operation of a compound assignment.
func (op BinaryOp) Underlying() BinaryOp {
	switch op {
	case BinMulAssign:
		return BinMul
	case BinDivAssign:
		return BinDiv
	case BinRemAssign:
		return BinRem
	case BinAddAssign:
		return BinAdd
	case BinSubAssign:
		return BinSub
	case BinShlAssign:
		return BinShl
	case BinShrAssign:
		return BinShr
	case BinAndAssign:
		return BinAnd
	case BinXorAssign:
		return BinXor
	case BinOrAssign:
		return BinOr
	}
	return op
}

// newArena returns an arena holding only the broken node.
func newArena() *Arena {
	return &Arena{records: []record{{Kind: NodeBroken}}}
}

// add appends a record and returns its handle.
func (a *Arena) add(r record) Node {
	a.records = append(a.records, r)
	return Node(len(a.records) - 1)
}

// get returns the record of n.
func (a *Arena) get(n Node) *record {
	return &a.records[n]
}

// IsBroken reports whether n is the broken sentinel.
func (a *Arena) IsBroken(n Node) bool {
	return n == Broken
}

// Kind returns the node kind of n.
func (a *Arena) Kind(n Node) NodeKind {
	return a.records[n].Kind
}

// TypeOf returns the expression type of n.
func (a *Arena) TypeOf(n Node) TypeID {
	return a.records[n].Typ
}

// CategoryOf returns the value category of n.
func (a *Arena) CategoryOf(n Node) Category {
	return a.records[n].Cat
}

// IsLvalue reports whether n is an lvalue expression.
func (a *Arena) IsLvalue(n Node) bool {
	return a.records[n].Cat == LValue
}

// Begin returns the begin location of n.
func (a *Arena) Begin(n Node) Loc {
	return a.records[n].Begin
}

// End returns the end location of n.
func (a *Arena) End(n Node) Loc {
	return a.records[n].End
}

// ChildAmount returns the number of children of n.
func (a *Arena) ChildAmount(n Node) int {
	return len(a.records[n].Children)
}

// Child returns child i of n.
func (a *Arena) Child(n Node, i int) Node {
	return a.records[n].Children[i]
}

// IdentOf returns the identifier referenced by an identifier expression or
// a declaration.
func (a *Arena) IdentOf(n Node) IdentID {
	return a.records[n].Ident
}

// IsLiteral reports whether n is a literal expression.
func (a *Arena) IsLiteral(n Node) bool {
	return a.records[n].Kind == ExprLiteral
}

// IntValue returns the value of an integer literal, or a case value.
func (a *Arena) IntValue(n Node) int {
	return a.records[n].IVal
}

// FloatValue returns the value of a floating literal.
func (a *Arena) FloatValue(n Node) float64 {
	return a.records[n].FVal
}

// StringIndex returns the string table index of a string literal.
func (a *Arena) StringIndex(n Node) int {
	return a.records[n].StrIndex
}

// UnaryOpOf returns the operator of a unary expression.
func (a *Arena) UnaryOpOf(n Node) UnaryOp {
	return UnaryOp(a.records[n].Op)
}

// BinaryOpOf returns the operator of a binary expression.
func (a *Arena) BinaryOpOf(n Node) BinaryOp {
	return BinaryOp(a.records[n].Op)
}

// MemberIndex returns the member index of a member expression.
func (a *Arena) MemberIndex(n Node) int {
	return a.records[n].Member
}

// IsArrow reports whether a member expression uses '->'.
func (a *Arena) IsArrow(n Node) bool {
	return a.records[n].Arrow
}

// ----- Statement and declaration constructors; used by the parser -----

// NewCompound creates a compound statement node.
func (a *Arena) NewCompound(children []Node, begin, end Loc) Node {
	return a.add(record{Kind: StmtCompound, Begin: begin, End: end, Children: children})
}

// NewDeclList groups the declarators of one declaration statement. Unlike
// a compound statement it opens no scope.
func (a *Arena) NewDeclList(decls []Node, begin Loc) Node {
	return a.add(record{Kind: StmtDecl, Begin: begin, Children: decls})
}

// NewNull creates a null statement node.
func (a *Arena) NewNull(loc Loc) Node {
	return a.add(record{Kind: StmtNull, Begin: loc, End: loc})
}

// NewIf creates an if statement. els is 0 when there is no else branch.
func (a *Arena) NewIf(cond, then, els Node, begin Loc) Node {
	return a.add(record{Kind: StmtIf, Begin: begin, Children: []Node{cond, then, els}})
}

// NewWhile creates a while statement.
func (a *Arena) NewWhile(cond, body Node, begin Loc) Node {
	return a.add(record{Kind: StmtWhile, Begin: begin, Children: []Node{cond, body}})
}

// NewDo creates a do-while statement.
func (a *Arena) NewDo(body, cond Node, begin Loc) Node {
	return a.add(record{Kind: StmtDo, Begin: begin, Children: []Node{body, cond}})
}

// NewFor creates a for statement. Any of init, cond and incr may be 0.
func (a *Arena) NewFor(init, cond, incr, body Node, begin Loc) Node {
	return a.add(record{Kind: StmtFor, Begin: begin, Children: []Node{init, cond, incr, body}})
}

// NewSwitch creates a switch statement. body is a compound statement.
func (a *Arena) NewSwitch(cond, body Node, begin Loc) Node {
	return a.add(record{Kind: StmtSwitch, Begin: begin, Children: []Node{cond, body}})
}

// NewCase creates a case statement with the given constant value.
func (a *Arena) NewCase(value int, substmt Node, begin Loc) Node {
	return a.add(record{Kind: StmtCase, IVal: value, Begin: begin, Children: []Node{substmt}})
}

// NewDefault creates a default statement.
func (a *Arena) NewDefault(substmt Node, begin Loc) Node {
	return a.add(record{Kind: StmtDefault, Begin: begin, Children: []Node{substmt}})
}

// NewBreak creates a break statement.
func (a *Arena) NewBreak(loc Loc) Node {
	return a.add(record{Kind: StmtBreak, Begin: loc, End: loc})
}

// NewContinue creates a continue statement.
func (a *Arena) NewContinue(loc Loc) Node {
	return a.add(record{Kind: StmtContinue, Begin: loc, End: loc})
}

// NewReturn creates a return statement. expr is 0 for a bare return.
func (a *Arena) NewReturn(expr Node, begin Loc) Node {
	return a.add(record{Kind: StmtReturn, Begin: begin, Children: []Node{expr}})
}

// NewVarDecl creates a variable declaration. bounds holds one expression
// per array dimension; init is 0 when there is no initializer.
func (a *Arena) NewVarDecl(id IdentID, bounds []Node, init Node, begin Loc) Node {
	children := make([]Node, 0, len(bounds)+1)
	children = append(children, bounds...)
	children = append(children, init)
	return a.add(record{
		Kind:     DeclVar,
		Ident:    id,
		Member:   len(bounds),
		Arrow:    init != 0,
		Begin:    begin,
		Children: children,
	})
}

// NewFuncDecl creates a function definition node.
func (a *Arena) NewFuncDecl(id IdentID, params []IdentID, body Node, begin Loc) Node {
	return a.add(record{Kind: DeclFunc, Ident: id, Params: params, Begin: begin, Children: []Node{body}})
}

// NewUnit creates the translation unit node.
func (a *Arena) NewUnit(decls []Node) Node {
	return a.add(record{Kind: Unit, Children: decls})
}

// ----- Accessors over statements and declarations -----

// IfHasElse reports whether an if statement carries an else branch.
func (a *Arena) IfHasElse(n Node) bool {
	return a.records[n].Children[2] != 0
}

// BoundsAmount returns the number of array dimensions of a declaration.
func (a *Arena) BoundsAmount(n Node) int {
	return a.records[n].Member
}

// Bound returns the bound expression of dimension i of a declaration.
func (a *Arena) Bound(n Node, i int) Node {
	return a.records[n].Children[i]
}

// HasInit reports whether a variable declaration has an initializer.
func (a *Arena) HasInit(n Node) bool {
	return a.records[n].Arrow
}

// Init returns the initializer of a variable declaration.
func (a *Arena) Init(n Node) Node {
	c := a.records[n].Children
	return c[len(c)-1]
}

// ParamsOf returns the parameter identifiers of a function definition.
func (a *Arena) ParamsOf(n Node) []IdentID {
	return a.records[n].Params
}
