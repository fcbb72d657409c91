// Package maincmd implements the launcher of the roseau binary: option
// parsing, source selection (script file, -c string, stdin or an
// interactive prompt), the dump and status-log outputs and the process
// exit code.
package maincmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mna/mainer"
	"github.com/mna/roseau/lang/shell"
)

const binName = "roseau"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<script> [<arg>...]]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<script> [<arg>...]]
       %[1]s -h|--help
       %[1]s --version

Statically-typed shell interpreter.

Valid flag options are:
       -c <str>                  Evaluate <str> and exit.
       -e <cmd>                  Execute <cmd> directly.
       -s                        Read the script from stdin.
       -i                        Force an interactive session.
       -n --compile-only         Compile without executing.
       --parse-only              Stop after the parse phase.
       --check-only              Stop after the check phase.
       --disable-assertion       Skip assert statements.
       --trace-exit              Print the exit value's stack trace.
       --rcfile <path>           Source <path> before an interactive
                                 session.
       --norc                    Skip the rc file.
       --quiet                   Suppress the startup message.
       --status-log <path>       Append an evaluation status line to
                                 <path>.
       --dump-untyped-ast        Print the AST before the check phase.
       --dump-ast                Print the AST after the check phase.
       --dump-code               Print the compiled code.
       --feature                 Print the build features and exit.
       --version                 Print version and exit.
       -h --help                 Show this help and exit.
`, binName)
)

// Cmd is the launcher command, with one field per CLI flag.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	EvalStr   string `flag:"c"`
	ExecCmd   string `flag:"e"`
	UseStdin  bool   `flag:"s"`
	ForceRepl bool   `flag:"i"`

	CompileOnly bool `flag:"n,compile-only"`
	ParseOnly   bool `flag:"parse-only"`
	CheckOnly   bool `flag:"check-only"`

	DisableAssertion bool   `flag:"disable-assertion"`
	TraceExit        bool   `flag:"trace-exit"`
	Rcfile           string `flag:"rcfile"`
	Norc             bool   `flag:"norc"`
	Quiet            bool   `flag:"quiet"`
	StatusLog        string `flag:"status-log"`

	DumpUntypedAst bool `flag:"dump-untyped-ast"`
	DumpAst        bool `flag:"dump-ast"`
	DumpCode       bool `flag:"dump-code"`

	Feature bool `flag:"feature"`
	Version bool `flag:"version"`
	Help    bool `flag:"h,help"`

	args []string

	// stdinSrc holds the script read from stdin, captured before the
	// stdio bridge starts consuming the stream.
	stdinSrc []byte
}

// SetArgs receives the positional arguments from the flag parser.
func (c *Cmd) SetArgs(args []string) { c.args = args }

// Validate checks flag consistency.
func (c *Cmd) Validate() error {
	if c.EvalStr != "" && c.UseStdin {
		return fmt.Errorf("-c and -s are mutually exclusive")
	}
	return nil
}

// phase returns how far the pipeline runs.
func (c *Cmd) phase() shell.Phase {
	switch {
	case c.ParseOnly:
		return shell.PhaseParseOnly
	case c.CheckOnly:
		return shell.PhaseCheckOnly
	case c.CompileOnly:
		return shell.PhaseCompileOnly
	}
	return shell.PhaseRun
}

// Main runs the launcher and returns the process exit code.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false, EnvPrefix: binName + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	case c.Feature:
		fmt.Fprintln(stdio.Stdout, "job-control glob here-string")
		return mainer.Success
	}

	opts, err := shell.OptionsFromEnv()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", binName, err)
		return mainer.Failure
	}
	opts.TraceExit = opts.TraceExit || c.TraceExit
	opts.Interactive = c.ForceRepl

	sh := shell.New(opts)
	sh.RT.DisableAssert = c.DisableAssertion
	bumpShlvl()

	if c.EvalStr == "" && c.ExecCmd == "" &&
		(c.UseStdin || (len(c.args) == 0 && !c.ForceRepl)) {
		b, err := readAll(stdio)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s: %s\n", binName, err)
			return mainer.Failure
		}
		c.stdinSrc = b
	}

	in, out, errf, cleanup, err := bridgeStdio(stdio)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", binName, err)
		return mainer.Failure
	}
	sh.SetStdio(in, out, errf)

	status := c.run(sh, stdio)
	cleanup()
	return mainer.ExitCode(status)
}

func bumpShlvl() {
	lvl, _ := strconv.Atoi(os.Getenv("SHLVL"))
	os.Setenv("SHLVL", strconv.Itoa(lvl+1))
}

func (c *Cmd) run(sh *shell.Shell, stdio mainer.Stdio) int {
	switch {
	case c.ExecCmd != "":
		return c.evalUnit(sh, stdio, "<exec>", []byte(c.ExecCmd+" "+joinArgs(c.args)))

	case c.EvalStr != "":
		sh.SetScript("<string>", c.args)
		return c.evalUnit(sh, stdio, "<string>", []byte(c.EvalStr))

	case c.UseStdin || (len(c.args) == 0 && !c.ForceRepl):
		sh.SetScript("<stdin>", nil)
		return c.evalUnit(sh, stdio, "<stdin>", c.stdinSrc)

	case c.ForceRepl && len(c.args) == 0:
		return c.repl(sh, stdio)
	}

	script := c.args[0]
	b, err := os.ReadFile(script)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", binName, err)
		return 1
	}
	sh.SetScript(script, c.args[1:])
	return c.evalUnit(sh, stdio, script, b)
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
