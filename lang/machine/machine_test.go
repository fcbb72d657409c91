package machine_test

import (
	"testing"

	"github.com/mna/roseau/lang/checker"
	"github.com/mna/roseau/lang/compiler"
	"github.com/mna/roseau/lang/machine"
	"github.com/mna/roseau/lang/parser"
	"github.com/mna/roseau/lang/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run compiles and executes a source unit that uses no external commands,
// returning the runtime and the evaluation error.
func run(t *testing.T, src string) (*machine.Runtime, *checker.Checker, error) {
	t.Helper()
	root, file, err := parser.ParseFile("test.rs", []byte(src))
	require.NoError(t, err)
	pool := types.NewPool()
	chk := checker.New(pool)
	require.NoError(t, chk.Check(file, root))
	code := compiler.Compile(pool, file, root)

	rt := machine.NewRuntime(pool, chk.GlobalNum())
	for _, sym := range chk.Predefined() {
		switch sym.Name {
		case "true":
			rt.Globals[sym.Index] = &machine.Bool{T: pool.Boolean, V: true}
		case "false":
			rt.Globals[sym.Index] = &machine.Bool{T: pool.Boolean, V: false}
		case "?":
			rt.ExitStatusIndex = sym.Index
			rt.Globals[sym.Index] = &machine.Int{T: pool.Int, V: 0}
		default:
			rt.Globals[sym.Index] = &machine.Str{T: pool.String}
		}
	}
	th := machine.NewThread(rt)
	_, err = th.EvalToplevel(code)
	return rt, chk, err
}

// global returns the value of a toplevel variable by declaration order
// offset past the predefined symbols.
func global(t *testing.T, rt *machine.Runtime, chk *checker.Checker, offset int) machine.Value {
	t.Helper()
	idx := len(chk.Predefined()) + offset
	require.Less(t, idx, len(rt.Globals))
	return rt.Globals[idx]
}

func TestEvalArithmetic(t *testing.T) {
	rt, chk, err := run(t, "var x = 1 + 2 * 3")
	require.NoError(t, err)
	v := global(t, rt, chk, 0).(*machine.Int)
	assert.EqualValues(t, 7, v.V)
}

func TestEvalCompare(t *testing.T) {
	rt, chk, err := run(t, "var b = 3 > 2")
	require.NoError(t, err)
	assert.True(t, global(t, rt, chk, 0).(*machine.Bool).V)
}

func TestEvalStringOps(t *testing.T) {
	rt, chk, err := run(t, "var s = 'abc'.upper() + '-' + 'abc'.size()")
	require.NoError(t, err)
	assert.Equal(t, "ABC-3", global(t, rt, chk, 0).(*machine.Str).V)
}

func TestEvalArray(t *testing.T) {
	rt, chk, err := run(t, "var a = [1, 2, 3]\n$a.push(4)\nvar n = $a.size()\nvar e = $a[1]")
	require.NoError(t, err)
	assert.EqualValues(t, 4, global(t, rt, chk, 1).(*machine.Int).V)
	assert.EqualValues(t, 2, global(t, rt, chk, 2).(*machine.Int).V)
}

func TestEvalArrayOutOfRange(t *testing.T) {
	_, _, err := run(t, "var a = [1]\nvar x = $a[5]")
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	assert.Equal(t, "OutOfRangeError", v.VType().Name())
}

func TestEvalMap(t *testing.T) {
	rt, chk, err := run(t, "var m = ['a' : 1, 'b' : 2]\nvar x = $m['b']\n$m['c'] = 3\nvar n = $m.size()")
	require.NoError(t, err)
	assert.EqualValues(t, 2, global(t, rt, chk, 1).(*machine.Int).V)
	assert.EqualValues(t, 3, global(t, rt, chk, 2).(*machine.Int).V)
}

func TestEvalMapKeyNotFound(t *testing.T) {
	_, _, err := run(t, "var m = ['a' : 1]\nvar x = $m['nope']")
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	assert.Equal(t, "KeyNotFoundError", v.VType().Name())
}

func TestEvalDivZeroUncaught(t *testing.T) {
	_, _, err := run(t, "var x = 1 / 0")
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	assert.Equal(t, "ArithmeticError", v.VType().Name())
}

func TestEvalTryCatch(t *testing.T) {
	rt, chk, err := run(t, `var got = ''
try {
	var x = 1 / 0
} catch e {
	$got = $e.name()
}`)
	require.NoError(t, err)
	assert.Equal(t, "ArithmeticError", global(t, rt, chk, 0).(*machine.Str).V)
}

func TestEvalCatchTypeDispatch(t *testing.T) {
	rt, chk, err := run(t, `var got = ''
try {
	var a = [1]
	var x = $a[9]
} catch e: ArithmeticError {
	$got = 'arith'
} catch e: OutOfRangeError {
	$got = 'range'
}`)
	require.NoError(t, err)
	assert.Equal(t, "range", global(t, rt, chk, 0).(*machine.Str).V)
}

func TestEvalFinallyRuns(t *testing.T) {
	rt, chk, err := run(t, `var log = ''
try {
	$log = $log + 'a'
	var x = 1 / 0
} catch e {
	$log = $log + 'b'
} finally {
	$log = $log + 'c'
}
$log = $log + 'd'`)
	require.NoError(t, err)
	assert.Equal(t, "abcd", global(t, rt, chk, 0).(*machine.Str).V)
}

func TestEvalFinallyOnRethrow(t *testing.T) {
	rt, chk, err := run(t, `var log = ''
try {
	try {
		var x = 1 / 0
	} finally {
		$log = $log + 'fin'
	}
} catch e {
	$log = $log + '-caught'
}`)
	require.NoError(t, err)
	assert.Equal(t, "fin-caught", global(t, rt, chk, 0).(*machine.Str).V)
}

func TestEvalThrowCustom(t *testing.T) {
	_, _, err := run(t, "throw new Error('boom')")
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	e := v.(*machine.Error)
	assert.Equal(t, "boom", e.Message)
	assert.NotEmpty(t, e.Trace)
}

func TestEvalFunctionCall(t *testing.T) {
	rt, chk, err := run(t, `function fact(n: Int): Int {
	if $n <= 1 { return 1 }
	return $n * $fact($n - 1)
}
var r = $fact(5)`)
	require.NoError(t, err)
	assert.EqualValues(t, 120, global(t, rt, chk, 1).(*machine.Int).V)
}

func TestEvalWhileLoop(t *testing.T) {
	rt, chk, err := run(t, `var i = 0
var sum = 0
while $i < 5 {
	$sum += $i
	$i += 1
}`)
	require.NoError(t, err)
	assert.EqualValues(t, 10, global(t, rt, chk, 1).(*machine.Int).V)
}

func TestEvalForInRange(t *testing.T) {
	rt, chk, err := run(t, `var sum = 0
for i in 1..3 {
	$sum += $i
}`)
	require.NoError(t, err)
	assert.EqualValues(t, 6, global(t, rt, chk, 0).(*machine.Int).V)
}

func TestEvalBreakDiscarded(t *testing.T) {
	// a break value in statement position is evaluated then discarded
	rt, chk, err := run(t, `var done = false
for i in 1..3 {
	if $i == 2 { break 99 }
}
$done = true`)
	require.NoError(t, err)
	assert.True(t, global(t, rt, chk, 0).(*machine.Bool).V)
}

func TestEvalContinue(t *testing.T) {
	rt, chk, err := run(t, `var sum = 0
for i in 1..5 {
	if $i % 2 == 0 { continue }
	$sum += $i
}`)
	require.NoError(t, err)
	assert.EqualValues(t, 9, global(t, rt, chk, 0).(*machine.Int).V)
}

func TestEvalTernaryAndLogic(t *testing.T) {
	rt, chk, err := run(t, "var x = 2 > 1 ? 'yes' : 'no'\nvar b = $true && !$false")
	require.NoError(t, err)
	assert.Equal(t, "yes", global(t, rt, chk, 0).(*machine.Str).V)
	assert.True(t, global(t, rt, chk, 1).(*machine.Bool).V)
}

func TestEvalStringInterp(t *testing.T) {
	rt, chk, err := run(t, `var n = 6
var s = "n=${n} t=${n * 7}"`)
	require.NoError(t, err)
	assert.Equal(t, "n=6 t=42", global(t, rt, chk, 1).(*machine.Str).V)
}

func TestEvalOption(t *testing.T) {
	rt, chk, err := run(t, `var o: Int?
var isSet = $o as Boolean
$o = 5
var v = $o.unwrap()`)
	require.NoError(t, err)
	assert.False(t, global(t, rt, chk, 1).(*machine.Bool).V)
	assert.EqualValues(t, 5, global(t, rt, chk, 2).(*machine.Int).V)
}

func TestEvalUnwrapError(t *testing.T) {
	_, _, err := run(t, "var o: Int?\nvar v = $o + 1")
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	assert.Equal(t, "UnwrappingError", v.VType().Name())
}

func TestEvalNumCast(t *testing.T) {
	rt, chk, err := run(t, "var f = 3 as Float\nvar i = 3.9 as Int")
	require.NoError(t, err)
	assert.EqualValues(t, 3.0, global(t, rt, chk, 0).(*machine.Float).V)
	assert.EqualValues(t, 3, global(t, rt, chk, 1).(*machine.Int).V)
}

func TestEvalInstanceOf(t *testing.T) {
	rt, chk, err := run(t, "var a = 1 is Int\nvar b = 'x' is Signal")
	require.NoError(t, err)
	assert.True(t, global(t, rt, chk, 0).(*machine.Bool).V)
	assert.False(t, global(t, rt, chk, 1).(*machine.Bool).V)
}

func TestEvalCase(t *testing.T) {
	rt, chk, err := run(t, `var x = 2
var got = ''
case $x {
	1 => $got = 'one'
	2, 3 => $got = 'few'
	else => $got = 'many'
}`)
	require.NoError(t, err)
	assert.Equal(t, "few", global(t, rt, chk, 1).(*machine.Str).V)
}

func TestEvalRegexMatch(t *testing.T) {
	rt, chk, err := run(t, "var m = 'hello' =~ $/^h.*o$/\nvar u = 'x' !~ $/y/")
	require.NoError(t, err)
	assert.True(t, global(t, rt, chk, 0).(*machine.Bool).V)
	assert.True(t, global(t, rt, chk, 1).(*machine.Bool).V)
}

func TestEvalTuple(t *testing.T) {
	rt, chk, err := run(t, "var t = (1, 'a')\nvar f = $t._0\nvar s = $t._1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, global(t, rt, chk, 1).(*machine.Int).V)
	assert.Equal(t, "a", global(t, rt, chk, 2).(*machine.Str).V)
}

func TestEvalAssertFailure(t *testing.T) {
	_, _, err := run(t, "assert 1 == 2 : 'math broke'")
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	assert.Equal(t, "_AssertFail", v.VType().Name())
	assert.Contains(t, v.(*machine.Error).Message, "math broke")
}

func TestEvalAssertDisabled(t *testing.T) {
	root, file, err := parser.ParseFile("test.rs", []byte("assert $false"))
	require.NoError(t, err)
	pool := types.NewPool()
	chk := checker.New(pool)
	require.NoError(t, chk.Check(file, root))
	code := compiler.Compile(pool, file, root)

	rt := machine.NewRuntime(pool, chk.GlobalNum())
	rt.DisableAssert = true
	for _, sym := range chk.Predefined() {
		if sym.Name == "false" {
			rt.Globals[sym.Index] = &machine.Bool{T: pool.Boolean, V: false}
		} else {
			rt.Globals[sym.Index] = &machine.Str{T: pool.String}
		}
	}
	th := machine.NewThread(rt)
	_, err = th.EvalToplevel(code)
	assert.NoError(t, err)
}

func TestEvalAssertNotCatchable(t *testing.T) {
	// _AssertFail is not an Error subtype, no catch clause matches it
	_, _, err := run(t, "try { assert $false } catch e { }")
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	assert.Equal(t, "_AssertFail", v.VType().Name())
}

func TestEvalStackOverflow(t *testing.T) {
	_, _, err := run(t, `function f(n: Int): Int { return $f($n) }
var x = $f(1)`)
	require.Error(t, err)
	v := machine.Raised(err)
	require.NotNil(t, v)
	assert.Equal(t, "StackOverflowError", v.VType().Name())
}

func TestEvalFuncIdentity(t *testing.T) {
	rt, chk, err := run(t, `function f(): Int { return 1 }
function g(): Int { return 2 }
var same = $f == $f
var diff = $f != $g`)
	require.NoError(t, err)
	assert.True(t, global(t, rt, chk, 2).(*machine.Bool).V)
	assert.True(t, global(t, rt, chk, 3).(*machine.Bool).V)
}

func TestEvalCompoundIndexAssign(t *testing.T) {
	rt, chk, err := run(t, "var a = [10, 20]\n$a[1] += 5\nvar v = $a[1]")
	require.NoError(t, err)
	assert.EqualValues(t, 25, global(t, rt, chk, 1).(*machine.Int).V)
}

func TestEvalForInString(t *testing.T) {
	rt, chk, err := run(t, `var out = ''
for ch in 'abc' {
	$out = $out + $ch + '.'
}`)
	require.NoError(t, err)
	assert.Equal(t, "a.b.c.", global(t, rt, chk, 0).(*machine.Str).V)
}
