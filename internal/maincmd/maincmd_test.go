package maincmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runMain(t *testing.T, stdin string, args ...string) (mainer.ExitCode, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	stdio := mainer.Stdio{
		Stdin:  strings.NewReader(stdin),
		Stdout: &out,
		Stderr: &errb,
	}
	c := Cmd{BuildVersion: "0.0", BuildDate: "2020-01-01"}
	code := c.Main(append([]string{"roseau"}, args...), stdio)
	return code, out.String(), errb.String()
}

func TestMainVersion(t *testing.T) {
	code, out, _ := runMain(t, "", "--version")
	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out, "roseau 0.0")
}

func TestMainHelp(t *testing.T) {
	code, out, _ := runMain(t, "", "--help")
	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out, "usage: roseau")
}

func TestMainEvalString(t *testing.T) {
	code, out, _ := runMain(t, "", "-c", "echo from-c")
	assert.Equal(t, mainer.ExitCode(0), code)
	assert.Equal(t, "from-c\n", out)
}

func TestMainStdin(t *testing.T) {
	code, out, _ := runMain(t, "echo from-stdin\n", "-s")
	assert.Equal(t, mainer.ExitCode(0), code)
	assert.Equal(t, "from-stdin\n", out)
}

func TestMainScriptFileWithArgs(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "s.rs")
	require.NoError(t, os.WriteFile(script, []byte("echo arg=$1\n"), 0o644))

	code, out, _ := runMain(t, "", script, "hello")
	assert.Equal(t, mainer.ExitCode(0), code)
	assert.Equal(t, "arg=hello\n", out)
}

func TestMainExitStatus(t *testing.T) {
	code, _, _ := runMain(t, "", "-c", "exit 7")
	assert.Equal(t, mainer.ExitCode(7), code)
}

func TestMainParseError(t *testing.T) {
	code, _, errOut := runMain(t, "", "-c", "var = 1")
	assert.Equal(t, mainer.ExitCode(1), code)
	assert.NotEmpty(t, errOut)
}

func TestMainCheckOnly(t *testing.T) {
	code, out, _ := runMain(t, "", "--check-only", "-c", "echo never-runs")
	assert.Equal(t, mainer.ExitCode(0), code)
	assert.Empty(t, out)
}

func TestMainDumpAst(t *testing.T) {
	code, out, _ := runMain(t, "", "--dump-ast", "-c", "var x = 1")
	assert.Equal(t, mainer.ExitCode(0), code)
	assert.Contains(t, out, "var x")
	assert.Contains(t, out, "Int")
	assert.Contains(t, out, "maxGVarNum")
}

func TestMainDumpCode(t *testing.T) {
	code, out, _ := runMain(t, "", "--dump-code", "-c", "var x = 1")
	assert.Equal(t, mainer.ExitCode(0), code)
	assert.Contains(t, out, "STORE_GLOBAL")
	assert.Contains(t, out, "STOP_EVAL")
}

func TestMainStatusLog(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "status.log")
	code, _, _ := runMain(t, "", "--status-log", log, "-c", "echo ok")
	assert.Equal(t, mainer.ExitCode(0), code)

	b, err := os.ReadFile(log)
	require.NoError(t, err)
	line := string(b)
	assert.Contains(t, line, "kind=0")
	assert.Contains(t, line, "lineNum=0")
	assert.Contains(t, line, `fileName="<string>"`)
}

func TestMainDisableAssertion(t *testing.T) {
	code, _, _ := runMain(t, "", "--disable-assertion", "-c", "assert $false")
	assert.Equal(t, mainer.ExitCode(0), code)
}
