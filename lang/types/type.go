// Package types implements the type pool: the interned set of all types
// known to one run of the interpreter. Types are created through a Pool and
// compared by identity; the pool is append-only and identities are stable
// for the life of the process.
package types

import (
	"fmt"
	"strings"
)

// Attr is a set of flags attached to a type.
type Attr uint8

//nolint:revive
const (
	AttrExtendable Attr = 1 << iota // user types may inherit from it
	AttrOption                      // reified Option instance
	AttrFunc                        // reified Func instance
	AttrRecord                      // fixed field table (tuples)
	AttrInternal                    // not catchable, not user-visible
)

// FieldAttr is a set of flags attached to a field handle.
type FieldAttr uint16

//nolint:revive
const (
	FieldReadOnly FieldAttr = 1 << iota
	FieldGlobal
	FieldEnv
	FieldSeconds
	FieldRandom
	FieldInterface
	FieldFuncHandle
	FieldModConst
)

// FieldHandle describes a field of a type: its declared type, its slot
// index and its attributes.
type FieldHandle struct {
	Type  *Type
	Index int
	Attrs FieldAttr
}

// MethodHandle describes a method of a type. The Index is the slot of the
// native implementation in the runtime method table; it is assigned by the
// pool at registration time and is stable afterwards.
type MethodHandle struct {
	Index  int
	Name   string
	Recv   *Type
	Params []*Type
	Return *Type
}

// QualifiedName returns the receiver-qualified name of the method, e.g.
// "Array.size".
func (m *MethodHandle) QualifiedName() string {
	return m.Recv.BaseName() + "." + m.Name
}

// Type is one interned type. All types are created by a Pool; two types are
// the same iff they are the same pointer.
type Type struct {
	id         int
	name       string
	super      *Type
	attrs      Attr
	template   *Template
	elems      []*Type
	fields     map[string]*FieldHandle
	methods    map[string]*MethodHandle
	fieldOrder []string
}

// ID returns the stable pool identity of the type.
func (t *Type) ID() int { return t.id }

// Name returns the display name of the type, including element types for
// reified instances (e.g. "[String]").
func (t *Type) Name() string { return t.name }

// BaseName returns the template name for reified instances, the plain name
// otherwise.
func (t *Type) BaseName() string {
	if t.template != nil {
		return t.template.Name
	}
	return t.name
}

// Super returns the super type, or nil for root types.
func (t *Type) Super() *Type { return t.super }

// Attrs returns the attribute flags of the type.
func (t *Type) Attrs() Attr { return t.attrs }

// Template returns the template this type reifies, or nil.
func (t *Type) Template() *Template { return t.template }

// Elem returns the i-th element type of a reified instance.
func (t *Type) Elem(i int) *Type { return t.elems[i] }

// ElemNum returns the number of element types of a reified instance.
func (t *Type) ElemNum() int { return len(t.elems) }

// IsOption returns true for Option<T> instances.
func (t *Type) IsOption() bool { return t.attrs&AttrOption != 0 }

// IsFunc returns true for Func<R, P...> instances.
func (t *Type) IsFunc() bool { return t.attrs&AttrFunc != 0 }

// IsSubtypeOf returns true if t is u or a transitive subtype of u. Nothing
// is a subtype of every type, and every type other than Void is a subtype
// of Any.
func (t *Type) IsSubtypeOf(u *Type) bool {
	if t.name == "Nothing" {
		return true
	}
	if u.IsOption() && !t.IsOption() {
		// T is accepted where Option<T> is expected at specific sites only;
		// that is a coercion, not a subtype relation, except for Nothing
		// handled above.
		return false
	}
	for cur := t; cur != nil; cur = cur.super {
		if cur == u {
			return true
		}
	}
	return false
}

// LookupField resolves a field by name on the type or its super types.
func (t *Type) LookupField(name string) *FieldHandle {
	for cur := t; cur != nil; cur = cur.super {
		if h, ok := cur.fields[name]; ok {
			return h
		}
	}
	return nil
}

// LookupMethod resolves a method by name on the type or its super types.
// For reified instances, methods declared on the template resolve against
// the instance.
func (t *Type) LookupMethod(name string) *MethodHandle {
	for cur := t; cur != nil; cur = cur.super {
		if h, ok := cur.methods[name]; ok {
			return h
		}
		if cur.template != nil {
			if h, ok := cur.template.methods[name]; ok {
				return h
			}
		}
	}
	return nil
}

// FieldNum returns the number of fields declared directly on the type.
func (t *Type) FieldNum() int { return len(t.fields) }

// FieldNames returns the field names in declaration order.
func (t *Type) FieldNames() []string { return t.fieldOrder }

func (t *Type) String() string { return t.name }

// Template describes a parametric type constructor (Array, Map, Tuple,
// Option, Func). Instances are reified by the pool.
type Template struct {
	Name  string
	Arity int // -1 means variadic (Tuple, Func)

	// Accept validates one element type; nil accepts any type.
	Accept func(elem *Type) error

	methods map[string]*MethodHandle
}

func reifiedName(tmpl *Template, elems []*Type) string {
	var sb strings.Builder
	switch tmpl.Name {
	case "Array":
		sb.WriteByte('[')
		sb.WriteString(elems[0].name)
		sb.WriteByte(']')
	case "Map":
		sb.WriteByte('[')
		sb.WriteString(elems[0].name)
		sb.WriteString(" : ")
		sb.WriteString(elems[1].name)
		sb.WriteByte(']')
	case "Tuple":
		sb.WriteByte('(')
		for i, e := range elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.name)
		}
		sb.WriteByte(')')
	case "Option":
		sb.WriteString(elems[0].name)
		sb.WriteByte('?')
	default:
		sb.WriteString(tmpl.Name)
		sb.WriteByte('<')
		for i, e := range elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.name)
		}
		sb.WriteByte('>')
	}
	return sb.String()
}

func reifiedKey(tmpl *Template, elems []*Type) string {
	var sb strings.Builder
	sb.WriteString(tmpl.Name)
	for _, e := range elems {
		fmt.Fprintf(&sb, ",%d", e.id)
	}
	return sb.String()
}
