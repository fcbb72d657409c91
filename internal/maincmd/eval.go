package maincmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mna/mainer"
	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/checker"
	"github.com/mna/roseau/lang/compiler"
	"github.com/mna/roseau/lang/parser"
	"github.com/mna/roseau/lang/shell"
)

func readAll(stdio mainer.Stdio) ([]byte, error) {
	return io.ReadAll(stdio.Stdin)
}

// evalUnit runs one source unit through the requested phases, handling
// the dump options and the status log.
func (c *Cmd) evalUnit(sh *shell.Shell, stdio mainer.Stdio, name string, src []byte) int {
	if c.DumpUntypedAst || c.DumpAst || c.DumpCode {
		return c.dump(sh, stdio, name, src)
	}

	status, err := sh.Eval(name, src, c.phase())
	c.writeStatusLog(err, name)
	if err != nil {
		if _, ok := err.(*shell.ExitError); ok {
			return status
		}
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return 1
	}
	return status
}

// dump runs the phases one at a time, printing the requested
// representations.
func (c *Cmd) dump(sh *shell.Shell, stdio mainer.Stdio, name string, src []byte) int {
	root, file, err := parser.ParseFile(name, src)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return 1
	}
	printer := ast.Printer{Output: stdio.Stdout, Positions: true}
	if c.DumpUntypedAst {
		if err := printer.Print(root, file); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			return 1
		}
	}
	if !c.DumpAst && !c.DumpCode {
		return 0
	}

	if err := sh.Checker.Check(file, root); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return 1
	}
	if c.DumpAst {
		printer.Types = true
		if err := printer.Print(root, file); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			return 1
		}
	}
	if c.DumpCode {
		code := compiler.Compile(sh.Pool, file, root)
		if err := compiler.Disasm(stdio.Stdout, code); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			return 1
		}
	}
	return 0
}

// status-log kinds, mirroring the evaluation outcome classes.
const (
	logSuccess = iota
	logParseError
	logTypeError
	logRuntimeError
	logExit
)

// writeStatusLog appends the one-line key=value record of the evaluation
// outcome.
func (c *Cmd) writeStatusLog(evalErr error, fileName string) {
	if c.StatusLog == "" {
		return
	}
	kind, lineNum, name := logSuccess, 0, ""
	switch e := evalErr.(type) {
	case nil:
	case *parser.Error:
		kind, lineNum, name = logParseError, e.Pos.Line, e.Code
	case *checker.Error:
		kind, lineNum, name = logTypeError, e.Pos.Line, e.Code
	case *shell.ExitError:
		kind = logExit
	default:
		kind, name = logRuntimeError, e.Error()
	}

	f, err := os.OpenFile(c.StatusLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "kind=%d lineNum=%d name=%q fileName=%q\n", kind, lineNum, name, fileName)
}

// repl runs a minimal interactive loop, sourcing the rc file first.
func (c *Cmd) repl(sh *shell.Shell, stdio mainer.Stdio) int {
	if !c.Norc {
		rc := c.Rcfile
		if rc == "" {
			rc = os.Getenv("HOME") + "/.roseaurc"
		}
		if _, err := os.Stat(rc); err == nil {
			sh.EvalFile(rc)
		}
	}
	if !c.Quiet {
		fmt.Fprintf(stdio.Stdout, "%s %s\n", binName, checker.Version)
	}

	sc := bufio.NewScanner(stdio.Stdin)
	status := 0
	for {
		fmt.Fprint(stdio.Stdout, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		st, err := sh.Eval("<repl>", []byte(line), c.phase())
		status = st
		if err != nil {
			if _, ok := err.(*shell.ExitError); ok {
				return st
			}
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
		}
	}
	return status
}
