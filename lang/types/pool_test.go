package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolIdentity(t *testing.T) {
	p := NewPool()
	assert.Same(t, p.Int, p.Get("Int"))
	assert.Same(t, p.String, p.Get("String"))
	assert.NotSame(t, p.Int, p.Int64)

	// identities are stable and dense
	for i := 0; i < p.Size(); i++ {
		require.Equal(t, i, p.ByID(i).ID())
	}
}

func TestReifyInterning(t *testing.T) {
	p := NewPool()
	a1, err := p.Reify(p.Array, p.Int)
	require.NoError(t, err)
	a2, err := p.Reify(p.Array, p.Int)
	require.NoError(t, err)
	assert.Same(t, a1, a2, "reified instances are interned")
	assert.Equal(t, "[Int]", a1.Name())

	m, err := p.Reify(p.Map, p.String, p.Int)
	require.NoError(t, err)
	assert.Equal(t, "[String : Int]", m.Name())

	tp, err := p.Reify(p.Tuple, p.Int, p.String)
	require.NoError(t, err)
	assert.Equal(t, "(Int, String)", tp.Name())
	assert.Equal(t, 2, tp.FieldNum())

	o, err := p.Reify(p.Option, p.Int)
	require.NoError(t, err)
	assert.Equal(t, "Int?", o.Name())
	assert.True(t, o.IsOption())
}

func TestReifyRejects(t *testing.T) {
	p := NewPool()
	_, err := p.Reify(p.Array, p.Void)
	assert.Error(t, err, "Void is not an acceptable element")

	o, err := p.Reify(p.Option, p.Int)
	require.NoError(t, err)
	_, err = p.Reify(p.Option, o)
	assert.Error(t, err, "nested options are rejected")

	_, err = p.Reify(p.Map, p.String)
	assert.Error(t, err, "wrong arity")
}

func TestSubtyping(t *testing.T) {
	p := NewPool()
	assert.True(t, p.ArithmeticError.IsSubtypeOf(p.Error))
	assert.True(t, p.ArithmeticError.IsSubtypeOf(p.Any))
	assert.False(t, p.Error.IsSubtypeOf(p.ArithmeticError))
	assert.True(t, p.Nothing.IsSubtypeOf(p.Int))
	assert.True(t, p.Int.IsSubtypeOf(p.Any))

	// the internal sentinels are not Error subtypes so no catch matches
	assert.False(t, p.ShellExit.IsSubtypeOf(p.Error))
	assert.True(t, p.ShellExit.IsSubtypeOf(p.Any))
}

func TestUserErrorTypes(t *testing.T) {
	p := NewPool()
	ut, err := p.NewErrorType("MyError", p.Error)
	require.NoError(t, err)
	assert.True(t, ut.IsSubtypeOf(p.Error))

	_, err = p.NewErrorType("MyError", p.Error)
	assert.Error(t, err, "duplicate type name")

	_, err = p.NewErrorType("Other", p.Int)
	assert.Error(t, err, "Int is not inheritable")
}

func TestMethodLookup(t *testing.T) {
	p := NewPool()
	h := p.Int.LookupMethod(OpAdd)
	require.NotNil(t, h)
	assert.Same(t, p.Int, h.Return)
	assert.Equal(t, "Int.__ADD__", h.QualifiedName())

	// methods resolve through the template for reified instances
	arr, err := p.Reify(p.Array, p.String)
	require.NoError(t, err)
	get := arr.LookupMethod(OpGet)
	require.NotNil(t, get)
	assert.Same(t, T0, get.Return)
	assert.Same(t, p.String, Substitute(get.Return, arr))

	// subtypes inherit methods
	msg := p.ArithmeticError.LookupMethod("message")
	require.NotNil(t, msg)
}

func TestMethodIndexStable(t *testing.T) {
	p := NewPool()
	for i, h := range p.Methods() {
		require.Equal(t, i, h.Index)
	}
}

func TestWiden(t *testing.T) {
	p := NewPool()
	assert.True(t, p.CanWiden(p.Byte, p.Int))
	assert.True(t, p.CanWiden(p.Int, p.Int64))
	assert.True(t, p.CanWiden(p.Uint32, p.Uint64))
	assert.True(t, p.CanWiden(p.Int64, p.Float))
	assert.False(t, p.CanWiden(p.Int, p.Uint32))
	assert.False(t, p.CanWiden(p.Int64, p.Int))
	assert.False(t, p.CanWiden(p.Float, p.Int64))
}

func TestCoerce(t *testing.T) {
	p := NewPool()
	opt, err := p.Reify(p.Option, p.Int)
	require.NoError(t, err)

	assert.Equal(t, NoCoerce, p.Coerce(p.Int, p.Int, SiteDefault))
	assert.Equal(t, NoCoerce, p.Coerce(p.Any, p.Int, SiteDefault))
	assert.Equal(t, CoerceVoid, p.Coerce(p.Void, p.Int, SiteDefault))
	assert.Equal(t, CoerceNum, p.Coerce(p.Int64, p.Int, SiteDefault))
	assert.Equal(t, CoerceOpt, p.Coerce(opt, p.Int, SiteDefault))
	assert.Equal(t, CoerceFail, p.Coerce(p.Int, p.String, SiteDefault))

	// %STR only applies at print sites, %BOOL only at condition sites
	assert.Equal(t, CoerceString, p.Coerce(p.String, p.Int, SitePrint))
	assert.Equal(t, CoerceFail, p.Coerce(p.String, p.Int, SiteDefault))
	assert.Equal(t, CoerceBool, p.Coerce(p.Boolean, p.String, SiteCond))
	assert.Equal(t, CoerceFail, p.Coerce(p.Boolean, p.String, SiteDefault))
}

func TestCommonSuper(t *testing.T) {
	p := NewPool()
	assert.Same(t, p.Error, p.CommonSuper(p.ArithmeticError, p.OutOfRangeError))
	assert.Same(t, p.Int, p.CommonSuper(p.Int, p.Int))
	assert.Same(t, p.Any, p.CommonSuper(p.Int, p.String))
	assert.Same(t, p.Int, p.CommonSuper(p.Nothing, p.Int))
	assert.Same(t, p.Int, p.CommonSuper(nil, p.Int))
}

func TestAppendOnly(t *testing.T) {
	p := NewPool()
	n := p.Size()
	_, err := p.Reify(p.Array, p.Float)
	require.NoError(t, err)
	assert.Equal(t, n+1, p.Size())
	assert.Same(t, p.Int, p.ByID(p.Int.ID()), "existing identities unchanged")
}
