package parser

import (
	"testing"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/scanner"
	"github.com/mna/roseau/lang/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *ast.Root {
	t.Helper()
	root, _, err := ParseFile("test.rs", []byte(src))
	require.NoError(t, err)
	return root
}

func parseErr(t *testing.T, src string) error {
	t.Helper()
	_, _, err := ParseFile("test.rs", []byte(src))
	require.Error(t, err)
	return err
}

func TestParseVarDecl(t *testing.T) {
	root := parse(t, "var x = 5")
	require.Len(t, root.Stmts, 1)
	vd := root.Stmts[0].(*ast.VarDecl)
	assert.Equal(t, "x", vd.Name)
	assert.False(t, vd.ReadOnly)
	require.IsType(t, &ast.IntLit{}, vd.Init)
	assert.EqualValues(t, 5, vd.Init.(*ast.IntLit).Val)
}

func TestParseLetWithType(t *testing.T) {
	root := parse(t, "let s: String = 'hello'")
	vd := root.Stmts[0].(*ast.VarDecl)
	assert.True(t, vd.ReadOnly)
	require.IsType(t, &ast.NamedTypeSpec{}, vd.Spec)
	assert.Equal(t, "String", vd.Spec.(*ast.NamedTypeSpec).Name)
	assert.Equal(t, "hello", vd.Init.(*ast.StringLit).Val)
}

func TestParseVarRequiresInit(t *testing.T) {
	err := parseErr(t, "var x")
	assert.Contains(t, err.Error(), "requires a type or an initializer")
}

func TestParseOptionDecl(t *testing.T) {
	root := parse(t, "var x: Int?")
	vd := root.Stmts[0].(*ast.VarDecl)
	require.IsType(t, &ast.OptionTypeSpec{}, vd.Spec)
	assert.Nil(t, vd.Init)
}

func TestParseCommand(t *testing.T) {
	root := parse(t, "echo hello world")
	es := root.Stmts[0].(*ast.ExprStmt)
	cmd := es.X.(*ast.Cmd)
	assert.Equal(t, "echo", cmd.Name)
	require.Len(t, cmd.Args, 2)
	for _, a := range cmd.Args {
		require.IsType(t, &ast.CmdArg{}, a)
	}
}

func TestParsePipeline(t *testing.T) {
	root := parse(t, "echo hello | tr a-z A-Z")
	pl := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Pipeline)
	require.Len(t, pl.Cmds, 2)
	assert.Equal(t, "echo", pl.Cmds[0].(*ast.Cmd).Name)
	assert.Equal(t, "tr", pl.Cmds[1].(*ast.Cmd).Name)
}

func TestParseCmdChain(t *testing.T) {
	root := parse(t, "mkdir d && cd d || echo failed")
	bin := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Binary)
	assert.Equal(t, token.COND_OR, bin.Op)
	left := bin.Left.(*ast.Binary)
	assert.Equal(t, token.COND_AND, left.Op)
}

func TestParseFork(t *testing.T) {
	root := parse(t, "sleep 3 &")
	fork := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Fork)
	assert.Equal(t, token.BACKGROUND, fork.Op)
	require.IsType(t, &ast.Cmd{}, fork.X)
}

func TestParseRedirs(t *testing.T) {
	root := parse(t, "cat < in.txt > out.txt 2>&1")
	cmd := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Cmd)
	var ops []token.Kind
	for _, a := range cmd.Args {
		if r, ok := a.(*ast.Redir); ok {
			ops = append(ops, r.Op)
		}
	}
	assert.Equal(t, []token.Kind{token.REDIR_IN, token.REDIR_OUT, token.REDIR_ERR_2_OUT}, ops)
}

func TestParseHereString(t *testing.T) {
	root := parse(t, "cat <<< hello")
	cmd := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Cmd)
	r := cmd.Args[0].(*ast.Redir)
	assert.Equal(t, token.REDIR_HERE_STR, r.Op)
	require.NotNil(t, r.Target)
}

func TestParseCmdArgSegments(t *testing.T) {
	root := parse(t, `echo pre$x"mid${y}"post`)
	cmd := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Cmd)
	require.Len(t, cmd.Args, 1)
	arg := cmd.Args[0].(*ast.CmdArg)
	require.Len(t, arg.Segs, 4)
	assert.IsType(t, &ast.StringLit{}, arg.Segs[0])
	assert.IsType(t, &ast.Var{}, arg.Segs[1])
	assert.IsType(t, &ast.StringExpr{}, arg.Segs[2])
	assert.IsType(t, &ast.StringLit{}, arg.Segs[3])
}

func TestParseGlobArg(t *testing.T) {
	root := parse(t, "ls *.go")
	cmd := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Cmd)
	arg := cmd.Args[0].(*ast.CmdArg)
	assert.True(t, arg.HasGlob)
	require.IsType(t, &ast.GlobSeg{}, arg.Segs[0])
}

func TestParseTilde(t *testing.T) {
	root := parse(t, "ls ~/src")
	cmd := root.Stmts[0].(*ast.ExprStmt).X.(*ast.Cmd)
	arg := cmd.Args[0].(*ast.CmdArg)
	require.IsType(t, &ast.Tilde{}, arg.Segs[0])
}

func TestParseSubstitution(t *testing.T) {
	root := parse(t, "var out = $(echo hi)")
	vd := root.Stmts[0].(*ast.VarDecl)
	sub := vd.Init.(*ast.Substitution)
	assert.False(t, sub.Proc)
	require.Len(t, sub.Stmts, 1)
	es := sub.Stmts[0].(*ast.ExprStmt)
	require.IsType(t, &ast.Cmd{}, es.X)
}

func TestParseSubstitutionStmts(t *testing.T) {
	// a substitution body is a full statement list
	root := parse(t, "var out = $(var n = 2; echo $n)")
	sub := root.Stmts[0].(*ast.VarDecl).Init.(*ast.Substitution)
	require.Len(t, sub.Stmts, 2)
	require.IsType(t, &ast.VarDecl{}, sub.Stmts[0])
}

func TestParseExprPrecedence(t *testing.T) {
	root := parse(t, "var x = 1 + 2 * 3")
	vd := root.Stmts[0].(*ast.VarDecl)
	add := vd.Init.(*ast.Binary)
	assert.Equal(t, token.PLUS, add.Op)
	mul := add.Right.(*ast.Binary)
	assert.Equal(t, token.STAR, mul.Op)
}

func TestParseTernary(t *testing.T) {
	root := parse(t, "var x = $a ? 1 : 2")
	vd := root.Stmts[0].(*ast.VarDecl)
	require.IsType(t, &ast.Ternary{}, vd.Init)
}

func TestParseRange(t *testing.T) {
	root := parse(t, "for i in 1..3 { echo $i }")
	fi := root.Stmts[0].(*ast.ForIn)
	assert.Equal(t, "i", fi.Name)
	rng := fi.X.(*ast.Binary)
	assert.Equal(t, token.RANGE, rng.Op)
}

func TestParseCStyleFor(t *testing.T) {
	root := parse(t, "for(var i = 0; $i < 3; $i++) { echo $i }")
	f := root.Stmts[0].(*ast.For)
	require.NotNil(t, f.Init)
	require.NotNil(t, f.Cond)
	require.NotNil(t, f.Iter)
	require.IsType(t, &ast.Assign{}, f.Iter)
}

func TestParseWhileBreakValue(t *testing.T) {
	root := parse(t, "while $true { break 99 }")
	w := root.Stmts[0].(*ast.While)
	br := w.Body.Stmts[0].(*ast.Break)
	require.NotNil(t, br.Val)
	assert.EqualValues(t, 99, br.Val.(*ast.IntLit).Val)
}

func TestParseDoWhile(t *testing.T) {
	root := parse(t, "do { echo x } while $false")
	dw := root.Stmts[0].(*ast.DoWhile)
	require.NotNil(t, dw.Cond)
}

func TestParseIfElse(t *testing.T) {
	root := parse(t, "if $x == 1 { echo a } else if $x == 2 { echo b } else { echo c }")
	ifs := root.Stmts[0].(*ast.If)
	elif := ifs.Els.(*ast.If)
	require.IsType(t, &ast.Block{}, elif.Els)
}

func TestParseFunction(t *testing.T) {
	root := parse(t, `function f(n: Int): Int {
	if $n <= 1 { return 1 }
	return $n * 2
}`)
	fd := root.Stmts[0].(*ast.FuncDecl)
	assert.Equal(t, "f", fd.Name)
	require.Len(t, fd.Params, 1)
	assert.Equal(t, "n", fd.Params[0].Name)
	assert.Equal(t, "Int", fd.Params[0].Spec.(*ast.NamedTypeSpec).Name)
	assert.Equal(t, "Int", fd.RetSpec.(*ast.NamedTypeSpec).Name)
	require.Len(t, fd.Body.Stmts, 2)
}

func TestParseTryCatchFinally(t *testing.T) {
	root := parse(t, `try { echo a } catch e { echo b } finally { echo c }`)
	tr := root.Stmts[0].(*ast.Try)
	require.Len(t, tr.Catches, 1)
	assert.Equal(t, "e", tr.Catches[0].Name)
	require.NotNil(t, tr.Finally)
}

func TestParseTryCatchTyped(t *testing.T) {
	root := parse(t, `try {
	echo a
}
catch e: ArithmeticError {
	echo b
}
echo after`)
	tr := root.Stmts[0].(*ast.Try)
	require.Len(t, tr.Catches, 1)
	spec := tr.Catches[0].Spec.(*ast.NamedTypeSpec)
	assert.Equal(t, "ArithmeticError", spec.Name)
	require.Len(t, root.Stmts, 2)
}

func TestParseThrowNew(t *testing.T) {
	root := parse(t, "throw new Error('boom')")
	th := root.Stmts[0].(*ast.Throw)
	nn := th.Val.(*ast.New)
	assert.Equal(t, "Error", nn.Spec.(*ast.NamedTypeSpec).Name)
	require.Len(t, nn.Args, 1)
}

func TestParseAssert(t *testing.T) {
	root := parse(t, "assert $x.size() == 3 : 'oops'")
	as := root.Stmts[0].(*ast.Assert)
	require.NotNil(t, as.Msg)
	mc := as.Cond.(*ast.Binary).Left.(*ast.MethodCall)
	assert.Equal(t, "size", mc.Name)
}

func TestParseIndexAndAccess(t *testing.T) {
	root := parse(t, "var v = $m['k'].field[0]")
	vd := root.Stmts[0].(*ast.VarDecl)
	outer := vd.Init.(*ast.Index)
	acc := outer.Recv.(*ast.Access)
	assert.Equal(t, "field", acc.Name)
	require.IsType(t, &ast.Index{}, acc.Recv)
}

func TestParseContainers(t *testing.T) {
	root := parse(t, "var a = [1, 2, 3]; var m = ['k' : 1]; var t = (1, 'x')")
	require.Len(t, root.Stmts, 3)
	assert.IsType(t, &ast.ArrayLit{}, root.Stmts[0].(*ast.VarDecl).Init)
	assert.IsType(t, &ast.MapLit{}, root.Stmts[1].(*ast.VarDecl).Init)
	assert.IsType(t, &ast.TupleLit{}, root.Stmts[2].(*ast.VarDecl).Init)
}

func TestParseCase(t *testing.T) {
	root := parse(t, `case $x {
	1, 2 => echo low
	else => { echo other }
}`)
	cs := root.Stmts[0].(*ast.Case)
	require.Len(t, cs.Arms, 2)
	assert.Len(t, cs.Arms[0].Pats, 2)
	assert.True(t, cs.Arms[1].Default)
}

func TestParseCastInstanceOf(t *testing.T) {
	root := parse(t, "var a = $x as Int; var b = $x is String")
	assert.IsType(t, &ast.Cast{}, root.Stmts[0].(*ast.VarDecl).Init)
	assert.IsType(t, &ast.InstanceOf{}, root.Stmts[1].(*ast.VarDecl).Init)
}

func TestParseTypeAlias(t *testing.T) {
	root := parse(t, "alias Pair = (Int, Int)")
	ta := root.Stmts[0].(*ast.TypeAlias)
	assert.Equal(t, "Pair", ta.Name)
	require.IsType(t, &ast.TupleTypeSpec{}, ta.Target)
}

func TestParseEnv(t *testing.T) {
	root := parse(t, "import-env HOME; export-env FOO = 'bar'")
	ie := root.Stmts[0].(*ast.ImportEnv)
	assert.Equal(t, "HOME", ie.Name)
	ee := root.Stmts[1].(*ast.ExportEnv)
	assert.Equal(t, "FOO", ee.Name)
}

func TestParseUdc(t *testing.T) {
	root := parse(t, "greet() { echo hi }")
	udc := root.Stmts[0].(*ast.UdcDecl)
	assert.Equal(t, "greet", udc.Name)
	require.Len(t, udc.Body.Stmts, 1)
}

func TestParseInterfaceSurface(t *testing.T) {
	// interfaces still parse; they are rejected later, by the check phase
	root := parse(t, "interface Foo { }\necho ok")
	require.IsType(t, &ast.InterfaceDecl{}, root.Stmts[0])
	require.Len(t, root.Stmts, 2)
}

func TestParseSource(t *testing.T) {
	root := parse(t, "source ./lib.rs")
	src := root.Stmts[0].(*ast.Source)
	require.NotNil(t, src.Path)
}

func TestParseAssignForms(t *testing.T) {
	root := parse(t, "$x = 1; $x += 2; $a[0] = 3; $o.f = 4; $x++")
	require.Len(t, root.Stmts, 5)
	for i, s := range root.Stmts {
		require.IsType(t, &ast.Assign{}, s, "stmt %d", i)
	}
	assert.Equal(t, token.PLUS_EQ, root.Stmts[1].(*ast.Assign).Op)
	assert.Equal(t, token.PLUS_EQ, root.Stmts[4].(*ast.Assign).Op)
}

func TestParseErrorAborts(t *testing.T) {
	err := parseErr(t, "var = 5")
	assert.Contains(t, err.Error(), "invalid name")

	err = parseErr(t, "if { }")
	require.Error(t, err)
}

func TestParseErrorCodes(t *testing.T) {
	codeOf := func(src string) string {
		t.Helper()
		var pe *Error
		require.ErrorAs(t, parseErr(t, src), &pe, src)
		return pe.Code
	}
	assert.Equal(t, ErrNoViableAlter, codeOf("if { }"))
	assert.Equal(t, ErrTokenMismatch, codeOf("var x = (1"))
	assert.Equal(t, ErrTokenFormat, codeOf("echo 'unterminated"))
	assert.Equal(t, ErrTokenFormat, codeOf("var x = 99999999999999999999"))
	assert.Equal(t, scanner.ErrInvalidToken, codeOf("var = 5"))
}

func TestParseSpans(t *testing.T) {
	root := parse(t, "var x = 5")
	start, end := root.Stmts[0].Span()
	assert.Equal(t, token.Pos(0), start)
	assert.Equal(t, token.Pos(9), end)
}
