package compiler

import (
	"strings"
	"testing"

	"github.com/mna/roseau/lang/checker"
	"github.com/mna/roseau/lang/parser"
	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) (*types.Pool, *Code) {
	t.Helper()
	root, file, err := parser.ParseFile("test.rs", []byte(src))
	require.NoError(t, err)
	pool := types.NewPool()
	c := checker.New(pool)
	require.NoError(t, c.Check(file, root))
	return pool, Compile(pool, file, root)
}

func disasm(t *testing.T, code *Code) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, Disasm(&sb, code))
	return sb.String()
}

func TestOperandWidths(t *testing.T) {
	// every opcode has a width entry; argument-less opcodes are width 0
	for op := NOP; op < opcodeMax; op++ {
		assert.GreaterOrEqual(t, op.Width(), 0, op.String())
		assert.LessOrEqual(t, op.Width(), 4, op.String())
		assert.NotEmpty(t, op.String())
	}
	assert.Equal(t, 2, LOAD_CONST.Width())
	assert.Equal(t, 4, GOTO.Width())
	assert.Equal(t, 4, CALL_METHOD.Width())
	assert.Equal(t, 3, FORK.Width())
	assert.Equal(t, 1, CALL_PIPELINE.Width())
}

func TestCompileVarAndArith(t *testing.T) {
	_, code := compile(t, "var x = 1 + 2")
	d := disasm(t, code)
	assert.Contains(t, d, "LOAD_CONST")
	assert.Contains(t, d, "CALL_METHOD")
	assert.Contains(t, d, "STORE_GLOBAL")
	assert.Contains(t, d, "STOP_EVAL")
	assert.Positive(t, code.MaxStackDepth)
}

func TestCompileCommand(t *testing.T) {
	_, code := compile(t, "echo hello world")
	d := disasm(t, code)
	assert.Contains(t, d, "NEW_CMD")
	assert.Contains(t, d, "ADD_CMD_ARG")
	assert.Contains(t, d, "CALL_CMD")
	assert.Contains(t, d, "POP", "statement discards the status")
}

func TestCompilePipeline(t *testing.T) {
	_, code := compile(t, "echo a | tr a b | wc -l")
	d := disasm(t, code)
	assert.Contains(t, d, "CALL_PIPELINE 3")
}

func TestCompileRedir(t *testing.T) {
	_, code := compile(t, "echo x > out.txt 2>&1")
	d := disasm(t, code)
	assert.Contains(t, d, "ADD_REDIR")
	assert.Contains(t, d, "(>)")
	assert.Contains(t, d, "(2>&1)")
}

func TestCompileFork(t *testing.T) {
	_, code := compile(t, "var j = (sleep 1 &)\nvar s = $(echo hi)")
	d := disasm(t, code)
	assert.Contains(t, d, "FORK bg")
	assert.Contains(t, d, "FORK str")
	assert.Contains(t, d, "subshell")
}

func TestCompileIfBranches(t *testing.T) {
	_, code := compile(t, "var x = 1\nif $x == 1 { echo a } else { echo b }")
	d := disasm(t, code)
	assert.Contains(t, d, "BRANCH")
	assert.Contains(t, d, "GOTO")
}

func TestCompileLoopJumps(t *testing.T) {
	_, code := compile(t, "while $true { if $false { break }\necho x }")
	d := disasm(t, code)
	assert.Contains(t, d, "GOTO")
	// no unbound labels survive, all jumps resolve inside the code
	require.NotEmpty(t, code.Insns)
}

func TestCompileForIn(t *testing.T) {
	_, code := compile(t, "for i in 1..3 { echo $i }")
	d := disasm(t, code)
	assert.Contains(t, d, "ITER_INIT")
	assert.Contains(t, d, "ITER_NEXT")
	assert.Contains(t, d, "STORE_LOCAL")
}

func TestCompileFunction(t *testing.T) {
	_, code := compile(t, "function f(n: Int): Int { return $n }\nvar x = $f(1)")
	d := disasm(t, code)
	assert.Contains(t, d, "LOAD_FUNC")
	assert.Contains(t, d, "CALL_FUNC 1")
	assert.Contains(t, d, "function: f")
	assert.Contains(t, d, "RETURN_V")
}

func TestCompileUdcRegistered(t *testing.T) {
	_, code := compile(t, "greet() { echo hi }\ngreet")
	require.Len(t, code.Udcs, 1)
	assert.Equal(t, "greet", code.Udcs[0].Name)
	assert.Equal(t, KindUserDefinedCmd, code.Udcs[0].Kind)
}

func TestCompileTryCatch(t *testing.T) {
	pool, code := compile(t, "try { echo a } catch e { echo b }")
	require.Len(t, code.Exceptions, 1)
	e := code.Exceptions[0]
	assert.Equal(t, pool.Error.ID(), e.TypeID)
	assert.Less(t, e.Begin, e.End)
	assert.True(t, e.Handler >= e.End || e.Handler < e.Begin,
		"handler lies outside its protected range")
	assert.Less(t, int(e.Handler), len(code.Insns))
}

func TestCompileFinally(t *testing.T) {
	pool, code := compile(t, "try { echo a } catch e { echo b } finally { echo c }")
	d := disasm(t, code)
	assert.Contains(t, d, "ENTER_FINALLY")
	assert.Contains(t, d, "EXIT_FINALLY")

	// a catch-all entry reraises through the finally block
	var anyEntry bool
	for _, e := range code.Exceptions {
		if e.TypeID == pool.Any.ID() {
			anyEntry = true
			assert.True(t, e.Handler >= e.End || e.Handler < e.Begin)
		}
	}
	assert.True(t, anyEntry)
}

func TestCompileBreakThroughFinally(t *testing.T) {
	_, code := compile(t, "while $true { try { break } catch e { echo x } finally { echo fin } }")
	d := disasm(t, code)
	// the break enters the pending finally before leaving the loop
	assert.Contains(t, d, "ENTER_FINALLY")
}

func TestCompileThrow(t *testing.T) {
	_, code := compile(t, "throw new Error('boom')")
	d := disasm(t, code)
	assert.Contains(t, d, "NEW")
	assert.Contains(t, d, "CALL_INIT")
	assert.Contains(t, d, "THROW")
}

func TestCompileAssert(t *testing.T) {
	_, code := compile(t, "assert $true : 'must hold'")
	d := disasm(t, code)
	assert.Contains(t, d, "ASSERT")
}

func TestCompileCase(t *testing.T) {
	_, code := compile(t, "var x = 1\ncase $x { 1 => echo a\nelse => echo b }")
	d := disasm(t, code)
	assert.Contains(t, d, "DUP")
	assert.Contains(t, d, "CALL_METHOD")
}

func TestCompileConstInterning(t *testing.T) {
	_, code := compile(t, "var a = 'dup'\nvar b = 'dup'\nvar c = 'other'")
	var strs int
	for _, ct := range code.Constants {
		if ct.Str != nil {
			strs++
		}
	}
	assert.Equal(t, 2, strs, "identical string constants are interned")
}

func TestCompileImportEnv(t *testing.T) {
	_, code := compile(t, "import-env HOME\nexport-env FOO = 'bar'")
	d := disasm(t, code)
	assert.Contains(t, d, "IMPORT_ENV")
	assert.Contains(t, d, "STORE_ENV")
}

func TestCompileStringInterp(t *testing.T) {
	_, code := compile(t, `var x = 1
echo "val=${x}"`)
	d := disasm(t, code)
	assert.Contains(t, d, "NEW_STRING")
	assert.Contains(t, d, "APPEND_STRING")
}

func TestPosTable(t *testing.T) {
	_, code := compile(t, "var x = 1\nvar y = 2")
	require.NotEmpty(t, code.Positions)
	for i := 1; i < len(code.Positions); i++ {
		assert.Less(t, code.Positions[i-1].PC, code.Positions[i].PC)
	}
	assert.Equal(t, 1, code.Positions[0].Line)
	last := code.Positions[len(code.Positions)-1]
	assert.Equal(t, 2, last.Line)
	assert.NotEqual(t, token.NoPos, last.Pos)
}

func TestStackDepthConsistency(t *testing.T) {
	srcs := []string{
		"var x = 1 + 2 * 3 - 4",
		"var a = [1, 2, 3]\nvar m = ['k' : 1]",
		"var t = (1, 'a', 2.5)",
		"echo a | tr a b",
		"var s = 'x' + 1 + 2.5",
	}
	for _, src := range srcs {
		_, code := compile(t, src)
		assert.Positive(t, code.MaxStackDepth, src)
		assert.LessOrEqual(t, code.MaxStackDepth, 16, src)
	}
}

func TestRedirOpNames(t *testing.T) {
	assert.Equal(t, "<", RedirIn.String())
	assert.Equal(t, "<<<", RedirHereStr.String())
	assert.Equal(t, "2>&1", RedirErr2Out.String())
}
