package types

// numeric widening precedence; a numeric type widens to a wider type: a
// signed type only to wider signed types, an unsigned type to wider types
// of either signedness, and every integer type to Float, per the fixed
// table below. The relation is deterministic but not meant to be composed.
var widenTable = map[[2]string]bool{
	{"Byte", "Int16"}:    true,
	{"Byte", "Uint16"}:   true,
	{"Byte", "Int"}:      true,
	{"Byte", "Uint32"}:   true,
	{"Byte", "Int64"}:    true,
	{"Byte", "Uint64"}:   true,
	{"Byte", "Float"}:    true,
	{"Int16", "Int"}:     true,
	{"Int16", "Int64"}:   true,
	{"Int16", "Float"}:   true,
	{"Uint16", "Int"}:    true,
	{"Uint16", "Uint32"}: true,
	{"Uint16", "Int64"}:  true,
	{"Uint16", "Uint64"}: true,
	{"Uint16", "Float"}:  true,
	{"Int", "Int64"}:     true,
	{"Int", "Float"}:     true,
	{"Uint32", "Int64"}:  true,
	{"Uint32", "Uint64"}: true,
	{"Uint32", "Float"}:  true,
	{"Int64", "Float"}:   true,
	{"Uint64", "Float"}:  true,
}

// IsNumeric returns true for the numeric built-in types.
func (p *Pool) IsNumeric(t *Type) bool {
	switch t {
	case p.Byte, p.Int16, p.Uint16, p.Int, p.Uint32, p.Int64, p.Uint64, p.Float:
		return true
	}
	return false
}

// CanWiden returns true if from implicitly widens to to.
func (p *Pool) CanWiden(from, to *Type) bool {
	return widenTable[[2]string{from.name, to.name}]
}

// Coercion describes how a value of one type is accepted where another type
// is expected.
type Coercion uint8

//nolint:revive
const (
	NoCoerce    Coercion = iota // exact or subtype, nothing to do
	CoerceVoid                  // discard the value
	CoerceNum                   // numeric widening
	CoerceOpt                   // wrap T into Option<T>
	CoerceBool                  // call the %BOOL method
	CoerceString                // call the %STR method (print sites)
	CoerceFail                  // no legal coercion
)

// CoerceSite names the position at which a value of type actual is accepted
// where expected is required. String and Boolean coercions apply only at the specific sites
// that request them (print and condition positions); the caller passes site
// to allow them.
type CoerceSite uint8

//nolint:revive
const (
	SiteDefault CoerceSite = iota
	SiteCond               // condition position, %BOOL allowed
	SitePrint              // print position, %STR allowed
)

// Coerce classifies the conversion from actual to expected at the given
// site.
func (p *Pool) Coerce(expected, actual *Type, site CoerceSite) Coercion {
	if expected == actual || actual.IsSubtypeOf(expected) {
		return NoCoerce
	}
	if expected == p.Void {
		return CoerceVoid
	}
	if expected.IsOption() && !actual.IsOption() {
		elem := expected.Elem(0)
		if actual == elem || actual.IsSubtypeOf(elem) {
			return CoerceOpt
		}
	}
	if p.IsNumeric(expected) && p.IsNumeric(actual) && p.CanWiden(actual, expected) {
		return CoerceNum
	}
	if expected == p.Boolean && site == SiteCond && actual.LookupMethod(OpBool) != nil {
		return CoerceBool
	}
	if expected == p.String && site == SitePrint && actual.LookupMethod(OpStr) != nil {
		return CoerceString
	}
	return CoerceFail
}

// CommonSuper computes the most specific common super type of a and b. Any
// is returned when no type on a's super chain is a super type of b.
func (p *Pool) CommonSuper(a, b *Type) *Type {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.name == "Nothing" {
		return b
	}
	if b.name == "Nothing" {
		return a
	}
	for cur := a; cur != nil; cur = cur.super {
		if b.IsSubtypeOf(cur) {
			return cur
		}
	}
	return p.Any
}
