package types

// T0 and T1 are the element placeholder types used in template method
// signatures; the checker substitutes them with the receiver instance's
// element types.
var (
	T0 = &Type{id: -1, name: "T0"}
	T1 = &Type{id: -2, name: "T1"}
)

// Substitute replaces the element placeholders in t with the receiver
// instance's element types. Non-placeholder types are returned unchanged.
func Substitute(t, recv *Type) *Type {
	switch t {
	case T0:
		return recv.elems[0]
	case T1:
		return recv.elems[1]
	}
	return t
}

// Names of the operator methods that binary and comparison operators
// desugar to.
//
//nolint:revive
const (
	OpAdd = "__ADD__"
	OpSub = "__SUB__"
	OpMul = "__MUL__"
	OpDiv = "__DIV__"
	OpMod = "__MOD__"
	OpAnd = "__AND__"
	OpOr  = "__OR__"
	OpXor = "__XOR__"
	OpEq  = "__EQ__"
	OpNe  = "__NE__"
	OpLt  = "__LT__"
	OpGt  = "__GT__"
	OpLe  = "__LE__"
	OpGe  = "__GE__"
	OpNeg = "__NEG__"
	OpNot = "__NOT__"

	OpBool = "%BOOL"
	OpStr  = "%STR"

	OpGet = "get"
	OpSet = "set"
)

func (p *Pool) registerBuiltins() {
	// arithmetic, comparison and conversion methods of the numeric types
	for _, t := range []*Type{p.Byte, p.Int16, p.Uint16, p.Int, p.Uint32, p.Int64, p.Uint64} {
		for _, op := range []string{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor} {
			p.DeclMethod(t, op, t, t)
		}
		for _, op := range []string{OpEq, OpNe, OpLt, OpGt, OpLe, OpGe} {
			p.DeclMethod(t, op, p.Boolean, t)
		}
		p.DeclMethod(t, OpNeg, t)
		p.DeclMethod(t, OpNot, t)
		p.DeclMethod(t, OpStr, p.String)
		p.DeclMethod(t, "toFloat", p.Float)
	}

	for _, op := range []string{OpAdd, OpSub, OpMul, OpDiv} {
		p.DeclMethod(p.Float, op, p.Float, p.Float)
	}
	for _, op := range []string{OpEq, OpNe, OpLt, OpGt, OpLe, OpGe} {
		p.DeclMethod(p.Float, op, p.Boolean, p.Float)
	}
	p.DeclMethod(p.Float, OpNeg, p.Float)
	p.DeclMethod(p.Float, OpStr, p.String)
	p.DeclMethod(p.Float, "toInt", p.Int)
	p.DeclMethod(p.Float, "isNan", p.Boolean)
	p.DeclMethod(p.Float, "isInf", p.Boolean)

	p.DeclMethod(p.Boolean, OpEq, p.Boolean, p.Boolean)
	p.DeclMethod(p.Boolean, OpNe, p.Boolean, p.Boolean)
	p.DeclMethod(p.Boolean, OpNot, p.Boolean)
	p.DeclMethod(p.Boolean, OpStr, p.String)

	p.DeclMethod(p.String, OpEq, p.Boolean, p.String)
	p.DeclMethod(p.String, OpNe, p.Boolean, p.String)
	p.DeclMethod(p.String, OpLt, p.Boolean, p.String)
	p.DeclMethod(p.String, OpGt, p.Boolean, p.String)
	p.DeclMethod(p.String, OpLe, p.Boolean, p.String)
	p.DeclMethod(p.String, OpGe, p.Boolean, p.String)
	p.DeclMethod(p.String, OpAdd, p.String, p.Any)
	p.DeclMethod(p.String, "size", p.Int)
	p.DeclMethod(p.String, "empty", p.Boolean)
	p.DeclMethod(p.String, "count", p.Int)
	p.DeclMethod(p.String, OpGet, p.String, p.Int)
	p.DeclMethod(p.String, "slice", p.String, p.Int, p.Int)
	p.DeclMethod(p.String, "from", p.String, p.Int)
	p.DeclMethod(p.String, "to", p.String, p.Int)
	p.DeclMethod(p.String, "startsWith", p.Boolean, p.String)
	p.DeclMethod(p.String, "endsWith", p.Boolean, p.String)
	p.DeclMethod(p.String, "indexOf", p.Int, p.String)
	p.DeclMethod(p.String, "lastIndexOf", p.Int, p.String)
	p.DeclMethod(p.String, "split", p.StringArrayType(), p.String)
	p.DeclMethod(p.String, "replace", p.String, p.String, p.String)
	p.DeclMethod(p.String, "toInt", p.optionOf(p.Int))
	p.DeclMethod(p.String, "toFloat", p.optionOf(p.Float))
	p.DeclMethod(p.String, "lower", p.String)
	p.DeclMethod(p.String, "upper", p.String)
	p.DeclMethod(p.String, "realpath", p.String)
	p.DeclMethod(p.String, OpBool, p.Boolean)
	p.DeclMethod(p.String, OpStr, p.String)

	p.DeclMethod(p.Regex, OpEq, p.Boolean, p.Regex)
	p.DeclMethod(p.Regex, OpNe, p.Boolean, p.Regex)
	p.DeclMethod(p.Regex, "match", p.Boolean, p.String)
	p.DeclMethod(p.Regex, OpStr, p.String)

	p.DeclMethod(p.Signal, OpEq, p.Boolean, p.Signal)
	p.DeclMethod(p.Signal, OpNe, p.Boolean, p.Signal)
	p.DeclMethod(p.Signal, "name", p.String)
	p.DeclMethod(p.Signal, "value", p.Int)
	p.DeclMethod(p.Signal, "kill", p.Void, p.Int)
	p.DeclMethod(p.Signal, OpStr, p.String)

	p.DeclMethod(p.UnixFD, "close", p.Void)
	p.DeclMethod(p.UnixFD, "dup", p.UnixFD)
	p.DeclMethod(p.UnixFD, OpBool, p.Boolean)
	p.DeclMethod(p.UnixFD, OpStr, p.String)

	p.DeclMethod(p.Error, "message", p.String)
	p.DeclMethod(p.Error, "name", p.String)
	p.DeclMethod(p.Error, "backtrace", p.Void)
	p.DeclMethod(p.Error, OpStr, p.String)

	p.DeclMethod(p.Job, "wait", p.Int)
	p.DeclMethod(p.Job, "raise", p.Void, p.Signal)
	p.DeclMethod(p.Job, "detach", p.Void)
	p.DeclMethod(p.Job, "size", p.Int)
	p.DeclMethod(p.Job, "pid", p.Int, p.Int)
	p.DeclMethod(p.Job, OpBool, p.Boolean)
	p.DeclMethod(p.Job, OpStr, p.String)

	p.DeclTemplateMethod(p.Array, "size", p.Int)
	p.DeclTemplateMethod(p.Array, "empty", p.Boolean)
	p.DeclTemplateMethod(p.Array, OpGet, T0, p.Int)
	p.DeclTemplateMethod(p.Array, OpSet, p.Void, p.Int, T0)
	p.DeclTemplateMethod(p.Array, "add", p.Void, T0)
	p.DeclTemplateMethod(p.Array, "push", p.Void, T0)
	p.DeclTemplateMethod(p.Array, "pop", T0)
	p.DeclTemplateMethod(p.Array, "shift", T0)
	p.DeclTemplateMethod(p.Array, "unshift", p.Void, T0)
	p.DeclTemplateMethod(p.Array, "insert", p.Void, p.Int, T0)
	p.DeclTemplateMethod(p.Array, "remove", T0, p.Int)
	p.DeclTemplateMethod(p.Array, "clear", p.Void)
	p.DeclTemplateMethod(p.Array, "slice", T0, p.Int, p.Int) // return re-reified by checker
	p.DeclTemplateMethod(p.Array, "join", p.String, p.String)
	p.DeclTemplateMethod(p.Array, OpStr, p.String)

	p.DeclTemplateMethod(p.Map, "size", p.Int)
	p.DeclTemplateMethod(p.Map, "empty", p.Boolean)
	p.DeclTemplateMethod(p.Map, OpGet, T1, T0)
	p.DeclTemplateMethod(p.Map, OpSet, p.Void, T0, T1)
	p.DeclTemplateMethod(p.Map, "has", p.Boolean, T0)
	p.DeclTemplateMethod(p.Map, "find", T1, T0) // return lifted to Option by checker
	p.DeclTemplateMethod(p.Map, "remove", p.Boolean, T0)
	p.DeclTemplateMethod(p.Map, "clear", p.Void)
	p.DeclTemplateMethod(p.Map, OpStr, p.String)

	p.DeclTemplateMethod(p.Option, "unwrap", T0)
	p.DeclTemplateMethod(p.Option, OpBool, p.Boolean)
	p.DeclTemplateMethod(p.Tuple, OpStr, p.String)

	intArray, err := p.Reify(p.Array, p.Int)
	if err != nil {
		panic(err)
	}
	p.DeclMethod(p.Int, "__RANGE__", intArray, p.Int)
}

// StringArrayType returns the [String] instance, creating it on first use
// (registration order means it may be needed before the field is set).
func (p *Pool) StringArrayType() *Type {
	if p.StringArray != nil {
		return p.StringArray
	}
	t, err := p.Reify(p.Array, p.String)
	if err != nil {
		panic(err)
	}
	p.StringArray = t
	return t
}

func (p *Pool) optionOf(elem *Type) *Type {
	t, err := p.Reify(p.Option, elem)
	if err != nil {
		panic(err)
	}
	return t
}
