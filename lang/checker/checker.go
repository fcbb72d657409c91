// Package checker implements the type-check phase: it walks the parsed AST
// post-order, annotates every expression with its computed type from the
// type pool, and rewrites nodes where the language semantics require it
// (coercion inserts, operator-to-method resolution, compound assignment
// lowering, constant folding of case patterns and source paths).
package checker

import (
	"fmt"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

const (
	// maxPipelineLen bounds the number of commands in one pipeline; the
	// compiled stage count is a single byte.
	maxPipelineLen = 250

	// maxGlobFragments bounds the wildcard segments of one command
	// argument.
	maxGlobFragments = 16
)

// Error is a type error with its resolved position and stable code.
type Error struct {
	Pos  token.Position
	Code string
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: [%s] %s", e.Pos, e.Code, e.Msg) }

type bailout struct{ err *Error }

// Symbol is one named binding: a variable, function or environment import.
type Symbol struct {
	Name     string
	Type     *types.Type
	Index    int
	Global   bool
	ReadOnly bool
	Env      bool
}

// scope is one lexical scope level.
type scope struct {
	syms map[string]*Symbol
}

// funcCtx tracks the enclosing callable while checking its body.
type funcCtx struct {
	retType   *types.Type // nil at toplevel
	localNum  int
	maxLocal  int
	scopeBase int // index into c.scopes of the function's outermost scope
	returned  bool
}

// loopCtx gathers break statements of one enclosing loop.
type loopCtx struct {
	breaks []*ast.Break
}

// Checker holds the state of one check run. A Checker is tied to a pool
// and may check several source units against the same global table.
type Checker struct {
	pool *types.Pool
	file *token.File

	scopes  []*scope
	funcs   []funcCtx
	loops   []loopCtx
	aliases map[string]*types.Type
	udcs    map[string]*ast.UdcDecl

	globalNum int
	maxGlobal int
	inFinally int

	// childLoops records the loop depth at each entered child context
	// (substitutions and fork forms); a jump statement must not cross a
	// child boundary it cannot unwind through.
	childLoops []int

	predefined []*Symbol
}

// New creates a checker against the pool, with the predefined global
// variables installed.
func New(pool *types.Pool) *Checker {
	c := &Checker{
		pool:    pool,
		aliases: make(map[string]*types.Type),
		udcs:    make(map[string]*ast.UdcDecl),
	}
	c.scopes = []*scope{{syms: make(map[string]*Symbol)}}
	c.installPredefined()
	return c
}

// Predefined returns the predefined global symbols in index order, so the
// runtime can populate the global table before execution.
func (c *Checker) Predefined() []*Symbol { return c.predefined }

// GlobalNum returns the current global table high-water mark.
func (c *Checker) GlobalNum() int { return c.maxGlobal }

func (c *Checker) installPredefined() {
	p := c.pool
	def := func(name string, t *types.Type, readOnly bool) {
		s := c.define(name, t, readOnly)
		c.predefined = append(c.predefined, s)
	}
	def("true", p.Boolean, true)
	def("false", p.Boolean, true)
	def("?", p.Int, false)
	def("#", p.Int, true)
	def("@", p.StringArray, true)
	def("0", p.String, true)
	for i := 1; i <= 9; i++ {
		def(fmt.Sprintf("%d", i), p.String, true)
	}
	def("$", p.Int, true) // PID
	def("PID", p.Int, true)
	def("PPID", p.Int, true)
	def("IFS", p.String, false)
	def("REPLY", p.String, false)
	def("OSTYPE", p.String, true)
	def("MACHTYPE", p.String, true)
	def("VERSION", p.String, true)
	def("SCRIPT_DIR", p.String, true)
	def("SCRIPT_NAME", p.String, true)
}

// Check annotates and rewrites the AST rooted at root. It returns the
// first type error encountered, nil on success.
func (c *Checker) Check(file *token.File, root *ast.Root) (err error) {
	defer func() {
		if e := recover(); e != nil {
			if b, ok := e.(bailout); ok {
				err = b.err
				return
			}
			panic(e)
		}
	}()

	c.file = file
	c.funcs = append(c.funcs, funcCtx{})
	c.checkStmts(root.Stmts)
	top := c.funcs[len(c.funcs)-1]
	c.funcs = c.funcs[:len(c.funcs)-1]

	root.MaxVarNum = top.maxLocal
	root.MaxGVarNum = c.maxGlobal
	return nil
}

func (c *Checker) errorf(n ast.Node, code, format string, args ...any) {
	start, _ := n.Span()
	panic(bailout{&Error{
		Pos:  c.file.Position(start),
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}})
}

// current returns the enclosing function context.
func (c *Checker) current() *funcCtx { return &c.funcs[len(c.funcs)-1] }

// atToplevel returns true when checking outside any function or command
// body (also before any check run, when the predefined symbols are
// installed).
func (c *Checker) atToplevel() bool { return len(c.funcs) <= 1 }

func (c *Checker) pushScope() {
	c.scopes = append(c.scopes, &scope{syms: make(map[string]*Symbol)})
}

func (c *Checker) popScope() {
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// define creates a new symbol in the innermost scope. At toplevel the
// symbol is a global, otherwise a local of the current function.
func (c *Checker) define(name string, t *types.Type, readOnly bool) *Symbol {
	sc := c.scopes[len(c.scopes)-1]
	s := &Symbol{Name: name, Type: t, ReadOnly: readOnly}
	if c.atToplevel() && len(c.scopes) == 1 {
		s.Global = true
		s.Index = c.globalNum
		c.globalNum++
		if c.globalNum > c.maxGlobal {
			c.maxGlobal = c.globalNum
		}
	} else {
		cur := c.current()
		s.Index = cur.localNum
		cur.localNum++
		if cur.localNum > cur.maxLocal {
			cur.maxLocal = cur.localNum
		}
	}
	sc.syms[name] = s
	return s
}

// declare defines name, raising DefinedSymbol if it already exists in the
// innermost scope.
func (c *Checker) declare(n ast.Node, name string, t *types.Type, readOnly bool) *Symbol {
	sc := c.scopes[len(c.scopes)-1]
	if _, ok := sc.syms[name]; ok {
		c.errorf(n, "DefinedSymbol", "already defined symbol: %s", name)
	}
	return c.define(name, t, readOnly)
}

// lookup resolves a name against the scope stack, outermost last.
func (c *Checker) lookup(name string) *Symbol {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if s, ok := c.scopes[i].syms[name]; ok {
			return s
		}
	}
	return nil
}

// coerce checks that the expression at *ptr is acceptable where expected
// is required, wrapping it in a TypeOp when a coercion must materialize.
func (c *Checker) coerce(expected *types.Type, site types.CoerceSite, ptr *ast.Expr) {
	x := *ptr
	actual := x.ComputedType()
	if actual == nil {
		c.errorf(x, "Required", "expression has no type where %s is required", expected.Name())
	}

	switch c.pool.Coerce(expected, actual, site) {
	case types.NoCoerce:
		return
	case types.CoerceVoid:
		*ptr = c.wrap(x, ast.ToVoid, c.pool.Void)
	case types.CoerceNum:
		*ptr = c.wrap(x, ast.NumCast, expected)
	case types.CoerceOpt:
		elem := expected.Elem(0)
		if actual != elem {
			c.coerce(elem, site, ptr)
			x = *ptr
		}
		*ptr = c.wrap(x, ast.NoCast, expected)
	case types.CoerceBool:
		*ptr = c.wrap(x, ast.ToBool, c.pool.Boolean)
	case types.CoerceString:
		*ptr = c.wrap(x, ast.ToString, c.pool.String)
	default:
		c.errorf(x, "Required", "require %s, but is %s", expected.Name(), actual.Name())
	}
}

func (c *Checker) wrap(x ast.Expr, op ast.CastOp, to *types.Type) *ast.TypeOp {
	t := &ast.TypeOp{X: x, Op: op, To: to}
	t.SetComputedType(to)
	return t
}

// unwrapOption inserts a CHECK_UNWRAP when the expression's type is an
// Option instance, returning the element type.
func (c *Checker) unwrapOption(ptr *ast.Expr) *types.Type {
	x := *ptr
	t := x.ComputedType()
	if !t.IsOption() {
		return t
	}
	elem := t.Elem(0)
	*ptr = c.wrap(x, ast.CheckUnwrap, elem)
	return elem
}

// resolveType resolves a type spec against the pool.
func (c *Checker) resolveType(spec ast.TypeSpec) *types.Type {
	if spec.ResolvedType() != nil {
		return spec.ResolvedType()
	}
	var t *types.Type
	switch n := spec.(type) {
	case *ast.NamedTypeSpec:
		t = c.resolveNamed(n)
	case *ast.ArrayTypeSpec:
		t = c.reify(n, c.pool.Array, c.resolveType(n.Elem))
	case *ast.MapTypeSpec:
		t = c.reify(n, c.pool.Map, c.resolveType(n.Key), c.resolveType(n.Val))
	case *ast.TupleTypeSpec:
		elems := make([]*types.Type, len(n.Elems))
		for i, e := range n.Elems {
			elems[i] = c.resolveType(e)
		}
		t = c.reify(n, c.pool.Tuple, elems...)
	case *ast.FuncTypeSpec:
		elems := make([]*types.Type, 0, len(n.Params)+1)
		elems = append(elems, c.resolveType(n.Ret))
		for _, pm := range n.Params {
			elems = append(elems, c.resolveType(pm))
		}
		t = c.reify(n, c.pool.Func, elems...)
	case *ast.OptionTypeSpec:
		t = c.reify(n, c.pool.Option, c.resolveType(n.Elem))
	case *ast.TypeOfSpec:
		t = c.checkExpr(&n.X)
		if t == c.pool.Void || t == c.pool.Nothing {
			c.errorf(n, "Unacceptable", "unacceptable type: %s", t.Name())
		}
	default:
		c.errorf(spec, "UndefinedType", "cannot resolve type")
	}
	spec.SetResolvedType(t)
	return t
}

func (c *Checker) resolveNamed(n *ast.NamedTypeSpec) *types.Type {
	if len(n.Args) > 0 {
		var tmpl *types.Template
		switch n.Name {
		case "Array":
			tmpl = c.pool.Array
		case "Map":
			tmpl = c.pool.Map
		case "Tuple":
			tmpl = c.pool.Tuple
		case "Option":
			tmpl = c.pool.Option
		case "Func":
			tmpl = c.pool.Func
		default:
			c.errorf(n, "NotTemplate", "not a template type: %s", n.Name)
		}
		elems := make([]*types.Type, len(n.Args))
		for i, a := range n.Args {
			elems[i] = c.resolveType(a)
		}
		return c.reify(n, tmpl, elems...)
	}

	if t, ok := c.aliases[n.Name]; ok {
		return t
	}
	if t := c.pool.Get(n.Name); t != nil {
		return t
	}
	c.errorf(n, "UndefinedType", "undefined type: %s", n.Name)
	return nil
}

func (c *Checker) reify(n ast.Node, tmpl *types.Template, elems ...*types.Type) *types.Type {
	t, err := c.pool.Reify(tmpl, elems...)
	if err != nil {
		c.errorf(n, "InvalidElement", "%s", err)
	}
	return t
}
