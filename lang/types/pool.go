package types

import (
	"errors"
	"fmt"
)

// Pool is the interned set of all types in one run. It is append-only:
// types are never removed and their identities never change.
type Pool struct {
	types   []*Type
	byName  map[string]*Type
	reified map[string]*Type
	methods []*MethodHandle // all registered methods, indexed by MethodHandle.Index

	// Templates.
	Array  *Template
	Map    *Template
	Tuple  *Template
	Option *Template
	Func   *Template

	// Built-in types, in pool order.
	Void    *Type
	Nothing *Type
	Any     *Type
	Byte    *Type
	Int16   *Type
	Uint16  *Type
	Int     *Type
	Uint32  *Type
	Int64   *Type
	Uint64  *Type
	Float   *Type
	Boolean *Type
	String  *Type
	Regex   *Type
	Signal  *Type
	UnixFD  *Type
	Job     *Type

	Error              *Type
	ArithmeticError    *Type
	OutOfRangeError    *Type
	KeyNotFoundError   *Type
	TypeCastError      *Type
	SystemError        *Type
	StackOverflowError *Type
	RegexSyntaxError   *Type
	UnwrappingError    *Type
	AssertionError     *Type

	// Internal sentinels: not subtypes of Error so no catch clause matches
	// them, which keeps finally blocks running on exit.
	ShellExit  *Type
	AssertFail *Type

	StringArray *Type // [String], used by command arguments
}

// NewPool creates a pool populated with the built-in types, templates,
// fields and methods.
func NewPool() *Pool {
	p := &Pool{
		byName:  make(map[string]*Type, 64),
		reified: make(map[string]*Type, 16),
	}

	p.Void = p.newType("Void", nil, 0)
	p.Nothing = p.newType("Nothing", nil, 0)
	p.Any = p.newType("Any", nil, AttrExtendable)

	p.Byte = p.newType("Byte", p.Any, 0)
	p.Int16 = p.newType("Int16", p.Any, 0)
	p.Uint16 = p.newType("Uint16", p.Any, 0)
	p.Int = p.newType("Int", p.Any, 0)
	p.Uint32 = p.newType("Uint32", p.Any, 0)
	p.Int64 = p.newType("Int64", p.Any, 0)
	p.Uint64 = p.newType("Uint64", p.Any, 0)
	p.Float = p.newType("Float", p.Any, 0)
	p.Boolean = p.newType("Boolean", p.Any, 0)
	p.String = p.newType("String", p.Any, 0)
	p.Regex = p.newType("Regex", p.Any, 0)
	p.Signal = p.newType("Signal", p.Any, 0)
	p.UnixFD = p.newType("UnixFD", p.Any, 0)
	p.Job = p.newType("Job", p.Any, 0)

	p.Error = p.newType("Error", p.Any, AttrExtendable)
	p.ArithmeticError = p.newType("ArithmeticError", p.Error, AttrExtendable)
	p.OutOfRangeError = p.newType("OutOfRangeError", p.Error, AttrExtendable)
	p.KeyNotFoundError = p.newType("KeyNotFoundError", p.Error, AttrExtendable)
	p.TypeCastError = p.newType("TypeCastError", p.Error, AttrExtendable)
	p.SystemError = p.newType("SystemError", p.Error, AttrExtendable)
	p.StackOverflowError = p.newType("StackOverflowError", p.Error, AttrExtendable)
	p.RegexSyntaxError = p.newType("RegexSyntaxError", p.Error, AttrExtendable)
	p.UnwrappingError = p.newType("UnwrappingError", p.Error, AttrExtendable)
	p.AssertionError = p.newType("AssertionError", p.Error, AttrExtendable)

	p.ShellExit = p.newType("_ShellExit", p.Any, AttrInternal)
	p.AssertFail = p.newType("_AssertFail", p.Any, AttrInternal)

	notVoid := func(elem *Type) error {
		if elem == p.Void || elem == p.Nothing {
			return fmt.Errorf("unacceptable element type: %s", elem.Name())
		}
		return nil
	}
	p.Array = &Template{Name: "Array", Arity: 1, Accept: notVoid, methods: map[string]*MethodHandle{}}
	p.Map = &Template{Name: "Map", Arity: 2, Accept: notVoid, methods: map[string]*MethodHandle{}}
	p.Tuple = &Template{Name: "Tuple", Arity: -1, Accept: notVoid, methods: map[string]*MethodHandle{}}
	p.Option = &Template{Name: "Option", Arity: 1, Accept: func(elem *Type) error {
		if err := notVoid(elem); err != nil {
			return err
		}
		if elem.IsOption() {
			return errors.New("option type cannot be nested")
		}
		return nil
	}, methods: map[string]*MethodHandle{}}
	p.Func = &Template{Name: "Func", Arity: -1, Accept: nil, methods: map[string]*MethodHandle{}}

	p.registerBuiltins()

	var err error
	p.StringArray, err = p.Reify(p.Array, p.String)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pool) newType(name string, super *Type, attrs Attr) *Type {
	t := &Type{
		id:      len(p.types),
		name:    name,
		super:   super,
		attrs:   attrs,
		fields:  make(map[string]*FieldHandle),
		methods: make(map[string]*MethodHandle),
	}
	p.types = append(p.types, t)
	p.byName[name] = t
	return t
}

// Get looks up a type by display name, returning nil if unknown.
func (p *Pool) Get(name string) *Type { return p.byName[name] }

// ByID returns the type with the given pool identity.
func (p *Pool) ByID(id int) *Type { return p.types[id] }

// Size returns the number of interned types.
func (p *Pool) Size() int { return len(p.types) }

// Methods returns all registered method handles, indexed by their Index.
func (p *Pool) Methods() []*MethodHandle { return p.methods }

// Reify creates or returns the interned instance of a template applied to
// the element types.
func (p *Pool) Reify(tmpl *Template, elems ...*Type) (*Type, error) {
	if tmpl.Arity >= 0 && len(elems) != tmpl.Arity {
		return nil, fmt.Errorf("%s requires %d element type(s), got %d", tmpl.Name, tmpl.Arity, len(elems))
	}
	if tmpl.Accept != nil {
		start := 0
		if tmpl == p.Func {
			start = 1 // return type may be Void
		}
		for _, e := range elems[start:] {
			if err := tmpl.Accept(e); err != nil {
				return nil, err
			}
		}
	}

	key := reifiedKey(tmpl, elems)
	if t, ok := p.reified[key]; ok {
		return t, nil
	}

	var attrs Attr
	switch tmpl {
	case p.Option:
		attrs |= AttrOption
	case p.Func:
		attrs |= AttrFunc
	case p.Tuple:
		attrs |= AttrRecord
	}
	t := p.newType(reifiedName(tmpl, elems), p.Any, attrs)
	t.template = tmpl
	t.elems = append([]*Type(nil), elems...)
	p.reified[key] = t

	if tmpl == p.Tuple {
		for i, e := range elems {
			name := fmt.Sprintf("_%d", i)
			t.fields[name] = &FieldHandle{Type: e, Index: i}
			t.fieldOrder = append(t.fieldOrder, name)
		}
	}
	return t, nil
}

// NewErrorType creates a user-defined error subtype. The super type must be
// Error or one of its extendable subtypes.
func (p *Pool) NewErrorType(name string, super *Type) (*Type, error) {
	if _, ok := p.byName[name]; ok {
		return nil, fmt.Errorf("already defined type: %s", name)
	}
	if super.attrs&AttrExtendable == 0 || !super.IsSubtypeOf(p.Error) {
		return nil, fmt.Errorf("type is not inheritable: %s", super.Name())
	}
	return p.newType(name, super, AttrExtendable), nil
}

// DeclField declares a field on a type.
func (p *Pool) DeclField(t *Type, name string, ft *Type, attrs FieldAttr) *FieldHandle {
	h := &FieldHandle{Type: ft, Index: len(t.fieldOrder), Attrs: attrs}
	t.fields[name] = h
	t.fieldOrder = append(t.fieldOrder, name)
	return h
}

// DeclMethod declares a method on a type and assigns its runtime slot.
func (p *Pool) DeclMethod(t *Type, name string, ret *Type, params ...*Type) *MethodHandle {
	h := &MethodHandle{
		Index:  len(p.methods),
		Name:   name,
		Recv:   t,
		Params: params,
		Return: ret,
	}
	t.methods[name] = h
	p.methods = append(p.methods, h)
	return h
}

// DeclTemplateMethod declares a method on a template, shared by every
// reified instance. Element-dependent parameter and return types are
// expressed with the placeholder types T0 and T1 resolved by the runtime
// against the receiver instance.
func (p *Pool) DeclTemplateMethod(tmpl *Template, name string, ret *Type, params ...*Type) *MethodHandle {
	h := &MethodHandle{
		Index:  len(p.methods),
		Name:   name,
		Params: params,
		Return: ret,
	}
	// template methods resolve Recv lazily against the instance; keep the
	// qualified name stable by storing a synthetic receiver
	h.Recv = &Type{name: tmpl.Name, template: tmpl}
	tmpl.methods[name] = h
	p.methods = append(p.methods, h)
	return h
}
