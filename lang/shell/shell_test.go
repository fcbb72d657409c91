package shell

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/roseau/lang/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evalCapture runs src in a fresh interpreter with stdout captured.
func evalCapture(t *testing.T, src string) (string, int, error) {
	t.Helper()
	sh := New(Options{})
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	sh.SetStdio(os.Stdin, pw, os.Stderr)

	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(pr)
		pr.Close()
		done <- string(b)
	}()

	status, evalErr := sh.Eval("test.rs", []byte(src), PhaseRun)
	pw.Close()
	return <-done, status, evalErr
}

func TestEvalEchoBuiltin(t *testing.T) {
	out, status, err := evalCapture(t, "echo hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
	assert.Zero(t, status)
}

func TestEvalArrayScenario(t *testing.T) {
	out, status, err := evalCapture(t, "var x = [1,2,3]; assert $x.size() == 3; echo ${x[1]}")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
	assert.Zero(t, status)
}

func TestEvalTryCatchScenario(t *testing.T) {
	out, status, err := evalCapture(t, "try { var x = 1/0 } catch e { echo caught }")
	require.NoError(t, err)
	assert.Equal(t, "caught\n", out)
	assert.Zero(t, status)
}

func TestEvalUncaughtSetsStatus(t *testing.T) {
	_, status, err := evalCapture(t, "var x = 1/0")
	require.NoError(t, err, "uncaught errors are reported, not returned")
	assert.Equal(t, 1, status)
}

func TestEvalBreakDiscardedScenario(t *testing.T) {
	out, status, err := evalCapture(t, "for i in 1..3 { if $i == 2 { break 99 } }; echo done")
	require.NoError(t, err)
	assert.Equal(t, "done\n", out)
	assert.Zero(t, status)
}

func TestEvalExitRunsFinally(t *testing.T) {
	out, status, err := evalCapture(t, "try { echo start; exit 7 } finally { echo fin }")
	require.Error(t, err)
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 7, ee.Status)
	assert.Equal(t, 7, status)
	assert.Equal(t, "start\nfin\n", out)
}

func TestEvalExitMasksStatus(t *testing.T) {
	_, status, err := evalCapture(t, "exit 256")
	require.Error(t, err)
	assert.Equal(t, 0, status, "exit status masks to N & 0xFF")
}

func TestEvalExitNotCatchable(t *testing.T) {
	out, status, err := evalCapture(t, "try { exit 3 } catch e { echo caught }")
	require.Error(t, err)
	assert.Equal(t, 3, status)
	assert.NotContains(t, out, "caught")
}

func TestEvalPipelineExternal(t *testing.T) {
	if _, err := exec.LookPath("tr"); err != nil {
		t.Skip("tr not available")
	}
	out, status, err := evalCapture(t, "echo hello | tr a-z A-Z")
	require.NoError(t, err)
	assert.Equal(t, "HELLO\n", out)
	assert.Zero(t, status)
}

func TestEvalSubstitution(t *testing.T) {
	out, _, err := evalCapture(t, "var s = $(echo inner)\necho got=$s")
	require.NoError(t, err)
	assert.Equal(t, "got=inner\n", out)
}

func TestEvalFunctionViaSubstitution(t *testing.T) {
	out, _, err := evalCapture(t, `function fact(n: Int): Int {
	if $n <= 1 { return 1 }
	return $n * $fact($n - 1)
}
echo ${fact(5)}`)
	require.NoError(t, err)
	assert.Equal(t, "120\n", out)
}

func TestEvalUdc(t *testing.T) {
	out, _, err := evalCapture(t, "greet() { echo hi there }\ngreet")
	require.NoError(t, err)
	assert.Equal(t, "hi there\n", out)
}

func TestEvalExitStatusVar(t *testing.T) {
	out, _, err := evalCapture(t, "false\necho status=$?\ntrue\necho status=$?")
	require.NoError(t, err)
	assert.Equal(t, "status=1\nstatus=0\n", out)
}

func TestEvalCommandNotFound(t *testing.T) {
	_, status, err := evalCapture(t, "definitely-not-a-command-xyz")
	require.NoError(t, err)
	assert.Equal(t, 127, status)
}

func TestEvalRedirFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")
	_, _, err := evalCapture(t, "echo written > "+target)
	require.NoError(t, err)
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "written\n", string(b))

	// appending keeps the previous content
	_, _, err = evalCapture(t, "echo more >> "+target)
	require.NoError(t, err)
	b, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "written\nmore\n", string(b))
}

func TestEvalHereString(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	out, _, err := evalCapture(t, "cat <<< hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestEvalCondChains(t *testing.T) {
	out, _, err := evalCapture(t, "true && echo yes\nfalse || echo fallback\nfalse && echo never")
	require.NoError(t, err)
	assert.Equal(t, "yes\nfallback\n", out)
}

func TestEvalTestBuiltin(t *testing.T) {
	out, _, err := evalCapture(t, `test 1 -lt 2 && echo lt
true && [ a = a ] && echo eq
test -d / && echo dir`)
	require.NoError(t, err)
	assert.Equal(t, "lt\neq\ndir\n", out)
}

func TestGlobExpansion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.txt", ".hidden.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	wd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	sh := New(Options{})
	got, err := sh.expandGlob("*.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, got)

	sh.Opts.DotGlob = true
	got, err = sh.expandGlob("*.go")
	require.NoError(t, err)
	assert.Contains(t, got, ".hidden.go")

	// no match keeps the literal pattern by default
	sh.Opts.DotGlob = false
	got, err = sh.expandGlob("*.nope")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.nope"}, got)

	sh.Opts.NullGlob = true
	got, err = sh.expandGlob("*.nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTildeExpansion(t *testing.T) {
	sh := New(Options{})
	t.Setenv("HOME", "/home/someone")
	assert.Equal(t, "/home/someone/src", sh.expandTilde("~/src"))
	assert.Equal(t, "/home/someone", sh.expandTilde("~"))
	assert.Equal(t, "plain", sh.expandTilde("plain"))
}

func TestJobTableIds(t *testing.T) {
	tbl := NewJobTable()
	j1, j2, j3 := tbl.NewShellJob(), tbl.NewShellJob(), tbl.NewShellJob()
	assert.Equal(t, 1, tbl.Attach(j1))
	assert.Equal(t, 2, tbl.Attach(j2))
	assert.Equal(t, 3, tbl.Attach(j3))
	assert.Same(t, j3, tbl.Latest())

	tbl.Detach(2)
	j4 := tbl.NewShellJob()
	assert.Equal(t, 2, tbl.Attach(j4), "smallest free id is reused")

	assert.Same(t, j4, tbl.FindEntry(2))
	assert.Nil(t, tbl.FindEntry(9))
}

func TestJobWait(t *testing.T) {
	tbl := NewJobTable()
	j := tbl.NewShellJob()
	tbl.Attach(j)
	go j.finish(4)
	assert.Equal(t, 4, tbl.WaitAndDetach(j))
	assert.Nil(t, tbl.FindEntry(1))
	assert.False(t, j.Running())
}

func TestBackgroundFork(t *testing.T) {
	out, _, err := evalCapture(t, "var j = (echo bg &)\nvar st = $j.wait()\nassert $st == 0")
	require.NoError(t, err)
	assert.Equal(t, "bg\n", out)
}

// evalHooked runs src with a termination hook installed that echoes a
// marker, returning the captured output and the eval result.
func evalHooked(t *testing.T, src string) (string, int, error) {
	t.Helper()
	sh := New(Options{})
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	sh.SetStdio(os.Stdin, pw, os.Stderr)

	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(pr)
		pr.Close()
		done <- string(b)
	}()

	_, evalErr := sh.Eval("hook.rs", []byte("function onTerm(e: Any): Void { echo hooked }"), PhaseRun)
	require.NoError(t, evalErr)
	fn, ok := sh.RT.Globals[len(sh.Checker.Predefined())].(*machine.Function)
	require.True(t, ok)
	sh.RT.SetTermHook(fn)

	status, evalErr := sh.Eval("test.rs", []byte(src), PhaseRun)
	pw.Close()
	return <-done, status, evalErr
}

func TestTermHookOnUncaughtError(t *testing.T) {
	out, status, err := evalHooked(t, "var x = 1/0")
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	assert.Contains(t, out, "hooked")
}

func TestTermHookOnExit(t *testing.T) {
	out, status, err := evalHooked(t, "echo bye\nexit 3")
	require.Error(t, err)
	assert.Equal(t, 3, status)
	assert.Equal(t, "bye\nhooked\n", out)
}

func TestTermHookNotOnSuccess(t *testing.T) {
	out, status, err := evalHooked(t, "echo fine")
	require.NoError(t, err)
	assert.Zero(t, status)
	assert.Equal(t, "fine\n", out)
}

func TestOptionsToggle(t *testing.T) {
	var o Options
	assert.True(t, o.Set("nullglob", true))
	assert.True(t, o.NullGlob)
	assert.False(t, o.Set("bogus", true))

	var sb strings.Builder
	o.Show(&sb)
	assert.Contains(t, sb.String(), "nullglob")
	assert.Contains(t, sb.String(), "on")
}

func TestShctlBuiltin(t *testing.T) {
	out, _, err := evalCapture(t, "shctl set nullglob\nshctl show")
	require.NoError(t, err)
	assert.Contains(t, out, "nullglob    on")
}

func TestEvalSourceBuiltin(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.rs")
	require.NoError(t, os.WriteFile(lib, []byte("echo sourced"), 0o644))
	out, _, err := evalCapture(t, "source "+lib)
	require.NoError(t, err)
	assert.Equal(t, "sourced\n", out)
}

func TestEvalCdPwd(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	wd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(wd) })

	out, _, evalErr := evalCapture(t, "cd "+dir+"\npwd")
	require.NoError(t, evalErr)
	assert.Equal(t, dir+"\n", out)
}

func TestEvalReadBuiltin(t *testing.T) {
	sh := New(Options{})
	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	sh.SetStdio(inR, outW, os.Stderr)

	go func() {
		io.WriteString(inW, "some input\n")
		inW.Close()
	}()
	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(outR)
		done <- string(b)
	}()

	_, evalErr := sh.Eval("test.rs", []byte("read\necho got=$REPLY"), PhaseRun)
	outW.Close()
	require.NoError(t, evalErr)
	assert.Equal(t, "got=some input\n", <-done)
}
