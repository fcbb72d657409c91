package checker

import (
	"strings"
	"testing"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/parser"
	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(t *testing.T, src string) (*Checker, *ast.Root) {
	t.Helper()
	root, file, err := parser.ParseFile("test.rs", []byte(src))
	require.NoError(t, err)
	c := New(types.NewPool())
	require.NoError(t, c.Check(file, root))
	return c, root
}

func checkErr(t *testing.T, src string) *Error {
	t.Helper()
	root, file, err := parser.ParseFile("test.rs", []byte(src))
	require.NoError(t, err)
	c := New(types.NewPool())
	err = c.Check(file, root)
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	return ce
}

func TestCheckVarDeclInference(t *testing.T) {
	c, root := check(t, "var x = 5\nvar s = 'a'\nvar f = 1.5")
	_ = c
	names := []string{"Int", "String", "Float"}
	for i, want := range names {
		vd := root.Stmts[i].(*ast.VarDecl)
		require.NotNil(t, vd.Type, "decl %d", i)
		assert.Equal(t, want, vd.Type.Name(), "decl %d", i)
		assert.True(t, vd.Global)
	}
}

func TestCheckTypedDecl(t *testing.T) {
	_, root := check(t, "var x: Float = 5")
	vd := root.Stmts[0].(*ast.VarDecl)
	assert.Equal(t, "Float", vd.Type.Name())
	// the Int initializer widened to Float
	top, ok := vd.Init.(*ast.TypeOp)
	require.True(t, ok, "a NUM_CAST coercion materialized")
	assert.Equal(t, ast.NumCast, top.Op)
}

func TestCheckEveryExprTyped(t *testing.T) {
	_, root := check(t, "var x = 1 + 2 * 3\nvar y = [1, 2]\nvar b = $x > 2")
	count := 0
	var v ast.VisitorFunc
	v = func(n ast.Node, dir ast.VisitDirection) ast.Visitor {
		if dir == ast.VisitExit {
			return nil
		}
		if e, ok := n.(ast.Expr); ok {
			count++
			assert.NotNil(t, e.ComputedType(), "%T has no computed type", n)
		}
		return v
	}
	ast.Walk(v, root)
	assert.Positive(t, count)
}

func TestCheckUndefinedSymbol(t *testing.T) {
	e := checkErr(t, "var x = $nope")
	assert.Equal(t, "UndefinedSymbol", e.Code)
}

func TestCheckUndefinedType(t *testing.T) {
	e := checkErr(t, "var x: Wat = 1")
	assert.Equal(t, "UndefinedType", e.Code)
}

func TestCheckDefinedSymbol(t *testing.T) {
	e := checkErr(t, "var x = 1\nvar x = 2")
	assert.Equal(t, "DefinedSymbol", e.Code)
}

func TestCheckReadOnly(t *testing.T) {
	e := checkErr(t, "let x = 1\n$x = 2")
	assert.Equal(t, "ReadOnly", e.Code)
}

func TestCheckRequired(t *testing.T) {
	e := checkErr(t, "var x: String = 5")
	assert.Equal(t, "Required", e.Code)
}

func TestCheckBinaryResolution(t *testing.T) {
	_, root := check(t, "var x = 1 + 2")
	vd := root.Stmts[0].(*ast.VarDecl)
	bin := vd.Init.(*ast.Binary)
	require.NotNil(t, bin.Handle)
	assert.Equal(t, "Int.__ADD__", bin.Handle.QualifiedName())
}

func TestCheckStringConcat(t *testing.T) {
	_, root := check(t, "var x = 'n=' + 42")
	bin := root.Stmts[0].(*ast.VarDecl).Init.(*ast.Binary)
	assert.True(t, bin.StrConcat)
	assert.Equal(t, "String", bin.ComputedType().Name())
	// the Int operand lifted to String
	assert.IsType(t, &ast.TypeOp{}, bin.Right)
}

func TestCheckCompoundLowered(t *testing.T) {
	_, root := check(t, "var x = 1\n$x += 2")
	as := root.Stmts[1].(*ast.Assign)
	assert.Equal(t, token.EQ, as.Op, "compound assignment lowered")
	bin := as.Right.(*ast.Binary)
	require.NotNil(t, bin.Handle)
}

func TestCheckElementSelfAssign(t *testing.T) {
	_, root := check(t, "var a = [1, 2]\n$a[0] += 5")
	as := root.Stmts[1].(*ast.Assign)
	require.NotNil(t, as.Element)
	assert.NotNil(t, as.Element.GetHandle)
	assert.NotNil(t, as.Element.SetHandle)
	assert.NotNil(t, as.Element.Bin.Handle)
}

func TestCheckOptionUnwrapInsert(t *testing.T) {
	_, root := check(t, "var x: Int?\nvar y = $x + 1")
	bin := root.Stmts[1].(*ast.VarDecl).Init.(*ast.Binary)
	top, ok := bin.Left.(*ast.TypeOp)
	require.True(t, ok, "receiver unwrap inserted")
	assert.Equal(t, ast.CheckUnwrap, top.Op)
}

func TestCheckCmdTypes(t *testing.T) {
	_, root := check(t, "var ok = (echo hi)\necho done")
	vd := root.Stmts[0].(*ast.VarDecl)
	assert.Equal(t, "Boolean", vd.Type.Name())

	// a command statement discards its Boolean
	es := root.Stmts[1].(*ast.ExprStmt)
	top := es.X.(*ast.TypeOp)
	assert.Equal(t, ast.ToVoid, top.Op)
}

func TestCheckSubstitutionTypes(t *testing.T) {
	_, root := check(t, "var s = $(echo hi)\necho $(echo a)")
	assert.Equal(t, "String", root.Stmts[0].(*ast.VarDecl).Type.Name())

	// in argument position the substitution word-splits
	cmdStmt := root.Stmts[1].(*ast.ExprStmt).X.(*ast.TypeOp).X.(*ast.Cmd)
	arg := cmdStmt.Args[0].(*ast.CmdArg)
	sub := arg.Segs[0].(*ast.Substitution)
	assert.True(t, sub.Split)
	assert.Equal(t, "[String]", sub.ComputedType().Name())
}

func TestCheckForkType(t *testing.T) {
	_, root := check(t, "var j = (sleep 1 &)")
	assert.Equal(t, "Job", root.Stmts[0].(*ast.VarDecl).Type.Name())
}

func TestCheckForInElem(t *testing.T) {
	_, root := check(t, "for v in ['a', 'b'] { echo $v }")
	fi := root.Stmts[0].(*ast.ForIn)
	assert.GreaterOrEqual(t, fi.VarIndex, 0)
}

func TestCheckRangeType(t *testing.T) {
	_, root := check(t, "for i in 1..3 { echo $i }")
	fi := root.Stmts[0].(*ast.ForIn)
	assert.Equal(t, "[Int]", fi.X.ComputedType().Name())
}

func TestCheckBreakOutsideLoop(t *testing.T) {
	e := checkErr(t, "break")
	assert.Equal(t, "InsideLoop", e.Code)
}

func TestCheckBreakValueGather(t *testing.T) {
	_, root := check(t, "while $true { if $false { break 1 }\nbreak 2.5 }")
	w := root.Stmts[0].(*ast.While)
	require.NotNil(t, w.BreakType)
	// Int and Float unify at their common super type
	assert.Equal(t, "Any", w.BreakType.Name())
}

func TestCheckUnreachable(t *testing.T) {
	e := checkErr(t, "while $true { break\necho dead }")
	assert.Equal(t, "Unreachable", e.Code)
}

func TestCheckReturnOutsideFunc(t *testing.T) {
	e := checkErr(t, "return 1")
	assert.Equal(t, "InsideFunc", e.Code)
}

func TestCheckFuncDecl(t *testing.T) {
	_, root := check(t, `function f(n: Int): Int {
	if $n <= 1 { return 1 }
	return $n * 2
}
var r = $f(5)`)
	fd := root.Stmts[0].(*ast.FuncDecl)
	assert.Equal(t, "Func<Int, Int>", fd.Type.Name())
	assert.Equal(t, 1, fd.MaxVarNum)

	vd := root.Stmts[1].(*ast.VarDecl)
	assert.Equal(t, "Int", vd.Type.Name())
}

func TestCheckUnfoundReturn(t *testing.T) {
	e := checkErr(t, "function f(): Int { echo hi }")
	assert.Equal(t, "UnfoundReturn", e.Code)
}

func TestCheckUnmatchParam(t *testing.T) {
	e := checkErr(t, "function f(n: Int): Int { return $n }\nvar x = $f(1, 2)")
	assert.Equal(t, "UnmatchParam", e.Code)
}

func TestCheckNotCallable(t *testing.T) {
	e := checkErr(t, "var x = 1\nvar y = $x(2)")
	assert.Equal(t, "NotCallable", e.Code)
}

func TestCheckTryRules(t *testing.T) {
	e := checkErr(t, "try { echo a }")
	assert.Equal(t, "MeaninglessTry", e.Code)

	e = checkErr(t, "try { } catch e { }")
	assert.Equal(t, "EmptyTry", e.Code)

	e = checkErr(t, "while $true { try { echo a } finally { break } }")
	assert.Equal(t, "InsideFinally", e.Code)
}

func TestCheckCatchTypes(t *testing.T) {
	_, root := check(t, "try { echo a } catch e: ArithmeticError { echo $e.message() }")
	tr := root.Stmts[0].(*ast.Try)
	assert.Equal(t, "ArithmeticError", tr.Catches[0].Type.Name())

	e := checkErr(t, "try { echo a } catch e: Int { echo no }")
	assert.Equal(t, "Unacceptable", e.Code)
}

func TestCheckCasePatterns(t *testing.T) {
	_, root := check(t, "var x = 1\ncase $x { 1 => echo one\nelse => echo other }")
	cs := root.Stmts[1].(*ast.Case)
	require.NotNil(t, cs.EqHandle)

	e := checkErr(t, "var x = 1\ncase $x { 1 => echo a\n1 => echo b }")
	assert.Equal(t, "DupPattern", e.Code)

	e = checkErr(t, "var x = 1\nvar y = 2\ncase $x { $y => echo a }")
	assert.Equal(t, "Constant", e.Code)
}

func TestCheckInsideChild(t *testing.T) {
	// a jump cannot cross the child boundary of a substitution
	e := checkErr(t, "while $true { $(break) }")
	assert.Equal(t, "InsideChild", e.Code)

	e = checkErr(t, "while $true { $(continue) }")
	assert.Equal(t, "InsideChild", e.Code)

	e = checkErr(t, "function f(): Int { var x = $(return 1)\nreturn 1 }")
	assert.Equal(t, "InsideChild", e.Code)
}

func TestCheckChildOwnLoop(t *testing.T) {
	// a loop opened inside the child keeps break/continue legal
	_, root := check(t, "var x = $(for i in 1..2 { if $i == 1 { break }\necho $i })")
	sub := root.Stmts[0].(*ast.VarDecl).Init.(*ast.Substitution)
	require.NotEmpty(t, sub.Stmts)
}

func TestCheckPipeLimit(t *testing.T) {
	e := checkErr(t, "true"+strings.Repeat(" | true", maxPipelineLen+1))
	assert.Equal(t, "PipeLimit", e.Code)

	_, _ = check(t, "true | true | true")
}

func TestCheckGlobLimit(t *testing.T) {
	e := checkErr(t, "ls "+strings.Repeat("*a", maxGlobFragments+1))
	assert.Equal(t, "GlobLimit", e.Code)

	_, _ = check(t, "ls "+strings.Repeat("*a", maxGlobFragments))
}

func TestCheckNullInPath(t *testing.T) {
	e := checkErr(t, "source a$'\\0'b")
	assert.Equal(t, "NullInPath", e.Code)
}

func TestCheckInterfaceRejected(t *testing.T) {
	e := checkErr(t, "interface Foo { }")
	assert.Equal(t, "OutsideToplevel", e.Code)
}

func TestCheckTypeAlias(t *testing.T) {
	_, root := check(t, "alias Num = Int\nvar x: Num = 3")
	vd := root.Stmts[1].(*ast.VarDecl)
	assert.Equal(t, "Int", vd.Type.Name())
}

func TestCheckThrowNothing(t *testing.T) {
	e := checkErr(t, "function f(): Int { throw new Error('x')\nreturn 1 }")
	assert.Equal(t, "Unreachable", e.Code)
}

func TestCheckCastOps(t *testing.T) {
	_, root := check(t, "var a = 1 as Float\nvar b = 1 as String\nvar c = 1 is Int")
	top := root.Stmts[0].(*ast.VarDecl).Init.(*ast.TypeOp)
	assert.Equal(t, ast.NumCast, top.Op)
	top = root.Stmts[1].(*ast.VarDecl).Init.(*ast.TypeOp)
	assert.Equal(t, ast.ToString, top.Op)
	assert.Equal(t, "Boolean", root.Stmts[2].(*ast.VarDecl).Type.Name())

	e := checkErr(t, "var x = 'a' as Signal")
	assert.Equal(t, "CastOp", e.Code)
}

func TestCheckMaxVarNums(t *testing.T) {
	_, root := check(t, "var a = 1\nwhile $true { var b = 2\nbreak }")
	assert.Equal(t, 1, root.MaxVarNum, "toplevel block locals")
	assert.Positive(t, root.MaxGVarNum)
}

func TestPredefinedSymbols(t *testing.T) {
	c, _ := check(t, "echo $?\necho ${OSTYPE}\necho $0 $1 $@ $#")
	assert.NotEmpty(t, c.Predefined())
}
