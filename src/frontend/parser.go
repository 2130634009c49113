// parser.go implements a recursive descent parser over the C subset. The
// parser owns declarations and statements; every expression site is handed
// to the expression builder, which validates types and value categories and
// folds literal operands. After a broken node the parser keeps going to
// surface more errors; the driver never generates code once the error flag
// is set.

package frontend

import (
	"fmt"
	"strings"

	"rvcc/src/ir"
	"rvcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// parser consumes the scanned items and produces the syntax tree.
type parser struct {
	ctx   *ir.Context
	b     *ir.Builder
	items []item
	pos   int
	tags  map[string]ir.TypeID // Declared structure tags.
}

// ---------------------
// ----- Functions -----
// ---------------------

// Parse scans and parses the source string into a translation unit node of
// the given context. A non-nil error reports a lexical or syntactic
// failure; semantic errors are posted to the context's reporter.
func Parse(src string, ctx *ir.Context) (ir.Node, error) {
	l := newLexer(src)
	l.run()
	if len(l.items) > 0 {
		if last := l.items[len(l.items)-1]; last.typ == itemError {
			return ir.Broken, fmt.Errorf("line %d:%d: %s", last.line, last.pos, last.val)
		}
	}

	p := &parser{ctx: ctx, b: ir.NewBuilder(ctx), items: l.items, tags: map[string]ir.TypeID{}}
	decls := make([]ir.Node, 0, 8)
	for p.peek().typ != itemEOF {
		n, err := p.parseDeclaration()
		if err != nil {
			return ir.Broken, err
		}
		if n != 0 {
			decls = append(decls, n)
		}
	}
	return ctx.Nodes.NewUnit(decls), nil
}

// TokenStream outputs the token stream from the given source string.
func TokenStream(src string, wr *util.Writer) error {
	l := newLexer(src)
	l.run()
	sb := strings.Builder{}
	for _, e1 := range l.items {
		if e1.typ == itemError {
			wr.WriteString(sb.String())
			return fmt.Errorf("line %d:%d: %s", e1.line, e1.pos, e1.val)
		}
		sb.WriteString(fmt.Sprintf("%q\tline: %d:%d\n", e1.val, e1.line, e1.pos))
	}
	wr.WriteString(sb.String())
	return nil
}

// peek returns the current item without consuming it.
func (p *parser) peek() item {
	return p.items[p.pos]
}

// next consumes and returns the current item.
func (p *parser) next() item {
	it := p.items[p.pos]
	if it.typ != itemEOF {
		p.pos++
	}
	return it
}

// loc returns the location of the current item.
func (p *parser) loc() ir.Loc {
	return ir.Loc{Line: p.peek().line, Pos: p.peek().pos}
}

// at reports whether the current item is the given symbol or keyword.
func (p *parser) at(val string) bool {
	it := p.peek()
	return (it.typ == itemSym || it.typ == itemKeyword) && it.val == val
}

// accept consumes the current item if it is the given symbol or keyword.
func (p *parser) accept(val string) bool {
	if p.at(val) {
		p.next()
		return true
	}
	return false
}

// expect consumes the given symbol or keyword or fails with a syntax error.
func (p *parser) expect(val string) error {
	if p.accept(val) {
		return nil
	}
	it := p.peek()
	return fmt.Errorf("line %d:%d: expected %q, got %q", it.line, it.pos, val, it.val)
}

// atTypeSpec reports whether the current item starts a type specifier.
func (p *parser) atTypeSpec() bool {
	it := p.peek()
	if it.typ != itemKeyword {
		return false
	}
	switch it.val {
	case "int", "double", "float", "char", "void", "struct":
		return true
	}
	return false
}

// parseTypeSpec parses a type specifier, declaring structure tags on the
// fly.
func (p *parser) parseTypeSpec() (ir.TypeID, error) {
	it := p.next()
	switch it.val {
	case "int":
		return ir.Integer, nil
	case "double", "float":
		return ir.Floating, nil
	case "char":
		return ir.Character, nil
	case "void":
		return ir.Void, nil
	case "struct":
		return p.parseStructSpec()
	}
	return ir.Void, fmt.Errorf("line %d:%d: expected type specifier, got %q", it.line, it.pos, it.val)
}

// parseStructSpec parses a structure specifier after the struct keyword.
func (p *parser) parseStructSpec() (ir.TypeID, error) {
	tag := ""
	if p.peek().typ == itemIdent {
		tag = p.next().val
	}

	if !p.at("{") {
		// Reference to a previously declared tag.
		if typ, ok := p.tags[tag]; ok {
			return typ, nil
		}
		it := p.peek()
		return ir.Void, fmt.Errorf("line %d:%d: undeclared structure tag %q", it.line, it.pos, tag)
	}
	p.next() // Consume '{'.

	members := make([]ir.Member, 0, 4)
	for !p.accept("}") {
		typ, err := p.parseTypeSpec()
		if err != nil {
			return ir.Void, err
		}
		for {
			mtyp := typ
			for p.accept("*") {
				mtyp = p.ctx.Types.Pointer(mtyp)
			}
			name := p.next()
			if name.typ != itemIdent {
				return ir.Void, fmt.Errorf("line %d:%d: expected member name, got %q", name.line, name.pos, name.val)
			}
			members = append(members, ir.Member{Name: name.val, Typ: mtyp})
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect(";"); err != nil {
			return ir.Void, err
		}
	}

	typ := p.ctx.Types.Structure(members)
	if tag != "" {
		p.tags[tag] = typ
	}
	return typ, nil
}

// parseDeclaration parses a global declaration: a variable declaration list
// or a function definition.
func (p *parser) parseDeclaration() (ir.Node, error) {
	begin := p.loc()
	base, err := p.parseTypeSpec()
	if err != nil {
		return ir.Broken, err
	}

	// A bare structure declaration introduces only the tag.
	if p.accept(";") {
		return 0, nil
	}

	typ := base
	for p.accept("*") {
		typ = p.ctx.Types.Pointer(typ)
	}

	name := p.next()
	if name.typ != itemIdent {
		return ir.Broken, fmt.Errorf("line %d:%d: expected identifier, got %q", name.line, name.pos, name.val)
	}

	if p.at("(") {
		return p.parseFunction(typ, name, begin)
	}
	return p.parseVarDeclList(base, typ, name, begin)
}

// parseFunction parses a function definition after its name.
func (p *parser) parseFunction(ret ir.TypeID, name item, begin ir.Loc) (ir.Node, error) {
	_ = p.next() // Consume '('.

	type param struct {
		name string
		typ  ir.TypeID
		loc  ir.Loc
	}
	params := make([]param, 0, 4)
	ptypes := make([]ir.TypeID, 0, 4)
	if !p.at(")") {
		for {
			typ, err := p.parseTypeSpec()
			if err != nil {
				return ir.Broken, err
			}
			for p.accept("*") {
				typ = p.ctx.Types.Pointer(typ)
			}
			pn := p.next()
			if pn.typ != itemIdent {
				return ir.Broken, fmt.Errorf("line %d:%d: expected parameter name, got %q", pn.line, pn.pos, pn.val)
			}
			params = append(params, param{name: pn.val, typ: typ, loc: ir.Loc{Line: pn.line, Pos: pn.pos}})
			ptypes = append(ptypes, typ)
			if !p.accept(",") {
				break
			}
		}
	}
	if err := p.expect(")"); err != nil {
		return ir.Broken, err
	}

	ftyp := p.ctx.Types.Function(ret, ptypes)
	id, ok := p.ctx.Declare(name.val, ftyp)
	if !ok {
		p.ctx.Rep.Error(ir.ErrRedeclaredIdentifier, ir.Loc{Line: name.line, Pos: name.pos}, name.val)
	}

	p.ctx.PushScope()
	ids := make([]ir.IdentID, 0, len(params))
	for _, e1 := range params {
		pid, ok := p.ctx.Declare(e1.name, e1.typ)
		if !ok {
			p.ctx.Rep.Error(ir.ErrRedeclaredIdentifier, e1.loc, e1.name)
		}
		ids = append(ids, pid)
	}

	body, err := p.parseCompound()
	p.ctx.PopScope()
	if err != nil {
		return ir.Broken, err
	}
	return p.ctx.Nodes.NewFuncDecl(id, ids, body, begin), nil
}

// parseVarDeclList parses the declarators following a parsed type and first
// name, producing one declaration node per declarator wrapped in a compound
// when there is more than one.
func (p *parser) parseVarDeclList(base, typ ir.TypeID, name item, begin ir.Loc) (ir.Node, error) {
	decls := make([]ir.Node, 0, 2)
	for {
		n, err := p.parseDeclarator(typ, name, begin)
		if err != nil {
			return ir.Broken, err
		}
		decls = append(decls, n)
		if !p.accept(",") {
			break
		}
		typ = base
		for p.accept("*") {
			typ = p.ctx.Types.Pointer(typ)
		}
		name = p.next()
		if name.typ != itemIdent {
			return ir.Broken, fmt.Errorf("line %d:%d: expected identifier, got %q", name.line, name.pos, name.val)
		}
	}
	if err := p.expect(";"); err != nil {
		return ir.Broken, err
	}
	if len(decls) == 1 {
		return decls[0], nil
	}
	return p.ctx.Nodes.NewDeclList(decls, begin), nil
}

// parseDeclarator parses array bounds and the optional initializer of one
// declarator and declares the identifier.
func (p *parser) parseDeclarator(typ ir.TypeID, name item, begin ir.Loc) (ir.Node, error) {
	bounds := make([]ir.Node, 0, 2)
	for p.accept("[") {
		if p.at("]") {
			bounds = append(bounds, 0)
		} else {
			bounds = append(bounds, p.parseAssignment())
		}
		if err := p.expect("]"); err != nil {
			return ir.Broken, err
		}
		typ = p.ctx.Types.Array(typ)
	}

	id, ok := p.ctx.Declare(name.val, typ)
	if !ok {
		p.ctx.Rep.Error(ir.ErrRedeclaredIdentifier, ir.Loc{Line: name.line, Pos: name.pos}, name.val)
	}

	var init ir.Node
	if p.accept("=") {
		init = p.parseInitializer()
		if init != ir.Broken {
			p.b.CheckAssignment(typ, init)
		}
	}
	return p.ctx.Nodes.NewVarDecl(id, bounds, init, begin), nil
}

// parseInitializer parses an initializer list or an assignment expression.
func (p *parser) parseInitializer() ir.Node {
	if !p.at("{") {
		return p.parseAssignment()
	}
	lLoc := p.loc()
	p.next() // Consume '{'.
	elems := make([]ir.Node, 0, 4)
	if !p.at("}") {
		for {
			elems = append(elems, p.parseInitializer())
			if !p.accept(",") {
				break
			}
		}
	}
	rLoc := p.loc()
	if !p.accept("}") {
		p.ctx.Rep.Error(ir.ErrSyntax, rLoc, "expected '}' in initializer list")
		return ir.Broken
	}
	return p.b.InitList(elems, lLoc, rLoc)
}

// parseCompound parses a braced statement block in its own scope.
func (p *parser) parseCompound() (ir.Node, error) {
	begin := p.loc()
	if err := p.expect("{"); err != nil {
		return ir.Broken, err
	}
	p.ctx.PushScope()
	defer p.ctx.PopScope()

	stmts := make([]ir.Node, 0, 8)
	for !p.at("}") {
		if p.peek().typ == itemEOF {
			return ir.Broken, fmt.Errorf("line %d:%d: unexpected end of file in block", p.peek().line, p.peek().pos)
		}
		n, err := p.parseStatement()
		if err != nil {
			return ir.Broken, err
		}
		if n != 0 {
			stmts = append(stmts, n)
		}
	}
	end := p.loc()
	p.next() // Consume '}'.
	return p.ctx.Nodes.NewCompound(stmts, begin, end), nil
}

// parseStatement parses a single statement.
func (p *parser) parseStatement() (ir.Node, error) {
	begin := p.loc()
	it := p.peek()

	if p.atTypeSpec() {
		base, err := p.parseTypeSpec()
		if err != nil {
			return ir.Broken, err
		}
		typ := base
		for p.accept("*") {
			typ = p.ctx.Types.Pointer(typ)
		}
		name := p.next()
		if name.typ != itemIdent {
			return ir.Broken, fmt.Errorf("line %d:%d: expected identifier, got %q", name.line, name.pos, name.val)
		}
		return p.parseVarDeclList(base, typ, name, begin)
	}

	if it.typ == itemKeyword {
		switch it.val {
		case "if":
			p.next()
			if err := p.expect("("); err != nil {
				return ir.Broken, err
			}
			cond := p.parseExpression()
			if err := p.expect(")"); err != nil {
				return ir.Broken, err
			}
			then, err := p.parseStatement()
			if err != nil {
				return ir.Broken, err
			}
			var els ir.Node
			if p.accept("else") {
				if els, err = p.parseStatement(); err != nil {
					return ir.Broken, err
				}
			}
			return p.ctx.Nodes.NewIf(cond, then, els, begin), nil

		case "while":
			p.next()
			if err := p.expect("("); err != nil {
				return ir.Broken, err
			}
			cond := p.parseExpression()
			if err := p.expect(")"); err != nil {
				return ir.Broken, err
			}
			body, err := p.parseStatement()
			if err != nil {
				return ir.Broken, err
			}
			return p.ctx.Nodes.NewWhile(cond, body, begin), nil

		case "do":
			p.next()
			body, err := p.parseStatement()
			if err != nil {
				return ir.Broken, err
			}
			if err = p.expect("while"); err != nil {
				return ir.Broken, err
			}
			if err = p.expect("("); err != nil {
				return ir.Broken, err
			}
			cond := p.parseExpression()
			if err = p.expect(")"); err != nil {
				return ir.Broken, err
			}
			if err = p.expect(";"); err != nil {
				return ir.Broken, err
			}
			return p.ctx.Nodes.NewDo(body, cond, begin), nil

		case "for":
			return p.parseFor(begin)

		case "switch":
			return p.parseSwitch(begin)

		case "case":
			p.next()
			value := p.parseExpression()
			if err := p.expect(":"); err != nil {
				return ir.Broken, err
			}
			v := 0
			if p.ctx.Nodes.IsLiteral(value) && p.ctx.Types.IsInteger(p.ctx.Nodes.TypeOf(value)) {
				v = p.ctx.Nodes.IntValue(value)
			} else if value != ir.Broken {
				p.ctx.Rep.Error(ir.ErrSyntax, begin, "case value is not an integer constant")
			}
			sub, err := p.parseStatement()
			if err != nil {
				return ir.Broken, err
			}
			return p.ctx.Nodes.NewCase(v, sub, begin), nil

		case "default":
			p.next()
			if err := p.expect(":"); err != nil {
				return ir.Broken, err
			}
			sub, err := p.parseStatement()
			if err != nil {
				return ir.Broken, err
			}
			return p.ctx.Nodes.NewDefault(sub, begin), nil

		case "break":
			p.next()
			if err := p.expect(";"); err != nil {
				return ir.Broken, err
			}
			return p.ctx.Nodes.NewBreak(begin), nil

		case "continue":
			p.next()
			if err := p.expect(";"); err != nil {
				return ir.Broken, err
			}
			return p.ctx.Nodes.NewContinue(begin), nil

		case "return":
			p.next()
			var expr ir.Node
			if !p.at(";") {
				expr = p.parseExpression()
			}
			if err := p.expect(";"); err != nil {
				return ir.Broken, err
			}
			return p.ctx.Nodes.NewReturn(expr, begin), nil
		}
	}

	if p.at("{") {
		return p.parseCompound()
	}
	if p.accept(";") {
		return p.ctx.Nodes.NewNull(begin), nil
	}

	// Expression statement.
	n := p.parseExpression()
	if err := p.expect(";"); err != nil {
		return ir.Broken, err
	}
	return n, nil
}

// parseFor parses a for statement. Init, condition and increment may each
// be empty.
func (p *parser) parseFor(begin ir.Loc) (ir.Node, error) {
	p.next() // Consume 'for'.
	if err := p.expect("("); err != nil {
		return ir.Broken, err
	}

	p.ctx.PushScope()
	defer p.ctx.PopScope()

	var init, cond, incr ir.Node
	var err error
	if !p.accept(";") {
		if p.atTypeSpec() {
			if init, err = p.parseStatement(); err != nil {
				return ir.Broken, err
			}
		} else {
			init = p.parseExpression()
			if err = p.expect(";"); err != nil {
				return ir.Broken, err
			}
		}
	}
	if !p.at(";") {
		cond = p.parseExpression()
	}
	if err = p.expect(";"); err != nil {
		return ir.Broken, err
	}
	if !p.at(")") {
		incr = p.parseExpression()
	}
	if err = p.expect(")"); err != nil {
		return ir.Broken, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return ir.Broken, err
	}
	return p.ctx.Nodes.NewFor(init, cond, incr, body, begin), nil
}

// parseSwitch parses a switch statement with a compound body.
func (p *parser) parseSwitch(begin ir.Loc) (ir.Node, error) {
	p.next() // Consume 'switch'.
	if err := p.expect("("); err != nil {
		return ir.Broken, err
	}
	cond := p.parseExpression()
	if err := p.expect(")"); err != nil {
		return ir.Broken, err
	}
	body, err := p.parseCompound()
	if err != nil {
		return ir.Broken, err
	}
	return p.ctx.Nodes.NewSwitch(cond, body, begin), nil
}
